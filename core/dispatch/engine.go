package dispatch

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput reports mismatched series or out-of-range configuration
// values. The engine fails before touching any state, so the caller can
// retry with corrected input.
var ErrInvalidInput = errors.New("invalid dispatch input")

// Epsilon guards used to suppress floating-point noise in flow decisions.
// They never feed into reported KPIs.
const (
	capEps  = 1e-9
	flowEps = 1e-12
)

// ratioEps keeps the production ratio finite for zero-demand periods.
const ratioEps = 1e-9

// StepAllocation is the energy breakdown of a single timestep, all
// quantities in MWh and non-negative.
type StepAllocation struct {
	GenToLoad         float64 `json:"gen_to_load_mwh"`
	GenToStorage      float64 `json:"gen_to_storage_mwh"`
	GenExport         float64 `json:"gen_export_mwh"`
	StorageToLoad     float64 `json:"storage_to_load_mwh"`
	DeferredCharge    float64 `json:"deferred_charge_mwh"`
	DeferredDischarge float64 `json:"deferred_discharge_mwh"`
	GridImport        float64 `json:"grid_import_mwh"`
}

// KPIs aggregates a full engine run.
type KPIs struct {
	TotalGenerationMWh   float64 `json:"total_gen_mwh"`
	TotalDemandMWh       float64 `json:"total_demand_mwh"`
	BalanceMWh           float64 `json:"ped_absolute_mwh"`
	Ratio                float64 `json:"ped_ratio"`
	SelfConsumptionMWh   float64 `json:"self_consumption_mwh"`
	ExportMWh            float64 `json:"export_mwh"`
	StorageThroughputMWh float64 `json:"storage_throughput_mwh"`
	GridImportMWh        float64 `json:"grid_import_mwh"`
}

// Run allocates energy flows for the aligned generation and load series
// under the fixed merit order:
//
//	generation -> load > deferred charge > generation -> storage >
//	generation -> export > deferred discharge > storage -> load > grid import
//
// Series are instantaneous MW readings; each step multiplies them by the
// configured step duration and clamps negatives to zero. Empty series
// produce zero-valued KPIs, not an error.
func Run(cfg Config, genMW, loadMW []float64) ([]StepAllocation, KPIs, error) {
	if err := cfg.Validate(); err != nil {
		return nil, KPIs{}, err
	}
	if len(genMW) != len(loadMW) {
		return nil, KPIs{}, fmt.Errorf("%w: generation has %d steps, load has %d",
			ErrInvalidInput, len(genMW), len(loadMW))
	}

	n := len(genMW)
	dt := cfg.DtHours
	eCap := math.Max(0, cfg.BatteryEnergyMWh)
	pCap := eCap * math.Max(0, cfg.BatteryCRate)
	etaC := cfg.EtaCharge
	etaD := cfg.EtaDischarge

	flex := math.Min(1, math.Max(0, cfg.FlexibleLoadShare))
	deferredPowerMW := 0.0
	if flex > 0 {
		peak := 0.0
		for _, l := range loadMW {
			if l > peak {
				peak = l
			}
		}
		deferredPowerMW = peak * flex
	}
	deferredCapMWh := deferredPowerMW * math.Max(0, cfg.MaxShiftHours)

	soc := 0.0
	stored := 0.0
	steps := make([]StepAllocation, n)
	var kpi KPIs

	for t := 0; t < n; t++ {
		genE := math.Max(0, genMW[t]) * dt
		loadE := math.Max(0, loadMW[t]) * dt
		kpi.TotalGenerationMWh += genE
		kpi.TotalDemandMWh += loadE
		alloc := &steps[t]

		// 1) generation serves load directly.
		use := math.Min(genE, loadE)
		alloc.GenToLoad = use
		genE -= use
		loadE -= use

		// 2) flexible demand gets first claim on surplus, ahead of the
		// battery and export.
		if deferredCapMWh > capEps && genE > flowEps && deferredPowerMW > capEps {
			charge := math.Min(deferredPowerMW*dt, math.Min(genE, math.Max(0, deferredCapMWh-stored)))
			if charge > flowEps {
				alloc.DeferredCharge = charge
				stored += charge
				genE -= charge
			}
		}

		// 3) charge the battery, limited by power, remaining surplus and
		// capacity headroom after charge losses.
		if eCap > capEps && pCap > capEps && genE > flowEps {
			input := math.Min(math.Min(pCap*dt, genE), math.Max(0, eCap-soc)/etaC)
			if input > flowEps {
				soc += input * etaC
				alloc.GenToStorage = input
				genE -= input
			}
		}

		// 4) leftover surplus is exported. Storage never feeds this pool.
		if genE > flowEps {
			alloc.GenExport = genE
			genE = 0
		}

		// 5) release previously shifted demand against residual load.
		if loadE > flowEps && stored > flowEps && deferredPowerMW > capEps {
			discharge := math.Min(deferredPowerMW*dt, math.Min(stored, loadE))
			if discharge > flowEps {
				alloc.DeferredDischarge = discharge
				stored -= discharge
				loadE -= discharge
			}
		}

		// 6) discharge the battery into remaining load.
		if loadE > flowEps && soc > flowEps && pCap > capEps {
			output := math.Min(loadE, math.Min(pCap*dt, soc*etaD))
			if output > flowEps {
				alloc.StorageToLoad = output
				soc -= output / etaD
				loadE -= output
			}
		}

		// 7) the grid covers whatever is left.
		if loadE > flowEps {
			alloc.GridImport = loadE
		}

		kpi.SelfConsumptionMWh += alloc.GenToLoad
		kpi.ExportMWh += alloc.GenExport
		kpi.StorageThroughputMWh += alloc.GenToStorage + alloc.StorageToLoad
		kpi.GridImportMWh += alloc.GridImport
	}

	kpi.BalanceMWh = kpi.TotalGenerationMWh - kpi.TotalDemandMWh
	kpi.Ratio = kpi.TotalGenerationMWh / (kpi.TotalDemandMWh + ratioEps)
	return steps, kpi, nil
}
