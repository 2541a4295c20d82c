package dispatch

import "fmt"

// Override map keys accepted by BuildConfig. Any absent key keeps the
// engine default.
const (
	OverrideBatteryCapacity = "owned_battery_capacity_mwh"
	OverrideBatteryCRate    = "batt_power_c_rate"
	OverrideEtaCharge       = "batt_eta_charge"
	OverrideEtaDischarge    = "batt_eta_discharge"
	OverrideFlexibleShare   = "flexible_load_share"
	OverrideMaxShiftHours   = "max_shift_hours"
)

// Config holds the merit-order engine parameters. A Config is immutable for
// the duration of a Run call.
type Config struct {
	// DtHours is the duration of one timestep in hours.
	DtHours float64 `json:"dt_hours"`
	// BatteryEnergyMWh is the usable battery capacity in MWh.
	BatteryEnergyMWh float64 `json:"battery_energy_mwh"`
	// BatteryCRate is the symmetric power limit expressed as a fraction of
	// the energy capacity per hour.
	BatteryCRate float64 `json:"battery_c_rate"`
	// EtaCharge and EtaDischarge are one-way efficiencies in (0,1].
	EtaCharge    float64 `json:"eta_charge"`
	EtaDischarge float64 `json:"eta_discharge"`
	// ExportOnlyFromGeneration forbids exporting storage discharge. It is
	// the fixed policy of this engine and defaults to true.
	ExportOnlyFromGeneration bool `json:"export_only_from_generation"`
	// FlexibleLoadShare is the fraction of the peak load eligible for
	// shifting, in [0,1].
	FlexibleLoadShare float64 `json:"flexible_load_share"`
	// MaxShiftHours bounds how far flexible demand can be moved in time.
	MaxShiftHours float64 `json:"max_shift_hours"`
}

// DefaultConfig returns the engine defaults: 10-minute steps, a 4-hour
// battery with 95% one-way efficiency and no flexible load.
func DefaultConfig() Config {
	return Config{
		DtHours:                  1.0 / 6.0,
		BatteryEnergyMWh:         0,
		BatteryCRate:             0.25,
		EtaCharge:                0.95,
		EtaDischarge:             0.95,
		ExportOnlyFromGeneration: true,
		FlexibleLoadShare:        0,
		MaxShiftHours:            3,
	}
}

// Validate checks that the configuration values are in range.
func (c Config) Validate() error {
	if c.DtHours <= 0 {
		return fmt.Errorf("%w: dt_hours must be positive, got %g", ErrInvalidInput, c.DtHours)
	}
	if c.BatteryEnergyMWh < 0 {
		return fmt.Errorf("%w: battery capacity must be >= 0, got %g", ErrInvalidInput, c.BatteryEnergyMWh)
	}
	if c.BatteryCRate < 0 {
		return fmt.Errorf("%w: battery c-rate must be >= 0, got %g", ErrInvalidInput, c.BatteryCRate)
	}
	if c.EtaCharge <= 0 || c.EtaCharge > 1 {
		return fmt.Errorf("%w: charge efficiency must be in (0,1], got %g", ErrInvalidInput, c.EtaCharge)
	}
	if c.EtaDischarge <= 0 || c.EtaDischarge > 1 {
		return fmt.Errorf("%w: discharge efficiency must be in (0,1], got %g", ErrInvalidInput, c.EtaDischarge)
	}
	if c.FlexibleLoadShare < 0 || c.FlexibleLoadShare > 1 {
		return fmt.Errorf("%w: flexible load share must be in [0,1], got %g", ErrInvalidInput, c.FlexibleLoadShare)
	}
	if c.MaxShiftHours < 0 {
		return fmt.Errorf("%w: max shift hours must be >= 0, got %g", ErrInvalidInput, c.MaxShiftHours)
	}
	return nil
}

// BuildConfig merges a named override map onto the defaults. The step
// duration comes from the caller since it depends on the data, not on the
// scenario.
func BuildConfig(overrides map[string]float64, dtHours float64) Config {
	cfg := DefaultConfig()
	if dtHours > 0 {
		cfg.DtHours = dtHours
	}
	if overrides == nil {
		return cfg
	}
	if v, ok := overrides[OverrideBatteryCapacity]; ok {
		cfg.BatteryEnergyMWh = v
	}
	if v, ok := overrides[OverrideBatteryCRate]; ok {
		cfg.BatteryCRate = v
	}
	if v, ok := overrides[OverrideEtaCharge]; ok {
		cfg.EtaCharge = v
	}
	if v, ok := overrides[OverrideEtaDischarge]; ok {
		cfg.EtaDischarge = v
	}
	if v, ok := overrides[OverrideFlexibleShare]; ok {
		cfg.FlexibleLoadShare = v
	}
	if v, ok := overrides[OverrideMaxShiftHours]; ok {
		cfg.MaxShiftHours = v
	}
	return cfg
}
