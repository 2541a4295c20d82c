package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gridtwin/gridtwin/core/dispatch"
	"github.com/gridtwin/gridtwin/infra/data"
	"github.com/gridtwin/gridtwin/pkg/export"
)

var (
	dataPath        string
	outPath         string
	dtHours         float64
	batteryCapacity float64
	batteryCRate    float64
	flexibleShare   float64
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run the merit-order engine over a CSV frame and print KPIs",
	RunE:  runDispatch,
}

func init() {
	dispatchCmd.Flags().StringVarP(&dataPath, "data", "d", "trainingdata.csv", "CSV data file")
	dispatchCmd.Flags().StringVarP(&outPath, "out", "o", "", "write per-step series to this CSV file")
	dispatchCmd.Flags().Float64Var(&dtHours, "dt-hours", 1.0/6.0, "step duration in hours")
	dispatchCmd.Flags().Float64Var(&batteryCapacity, "battery-mwh", 0, "battery capacity in MWh")
	dispatchCmd.Flags().Float64Var(&batteryCRate, "battery-c-rate", 0.25, "battery c-rate")
	dispatchCmd.Flags().Float64Var(&flexibleShare, "flexible-share", 0, "flexible load share")
	rootCmd.AddCommand(dispatchCmd)
}

func runDispatch(cmd *cobra.Command, args []string) error {
	series, err := data.LoadFrame(dataPath)
	if err != nil {
		return fmt.Errorf("load data: %w", err)
	}

	gen := make([]float64, series.Len())
	for i := range gen {
		gen[i] = series.Wind[i] + series.Solar[i] + series.Hydro[i]
	}

	cfg := dispatch.BuildConfig(map[string]float64{
		dispatch.OverrideBatteryCapacity: batteryCapacity,
		dispatch.OverrideBatteryCRate:    batteryCRate,
		dispatch.OverrideFlexibleShare:   flexibleShare,
	}, dtHours)

	result, err := dispatch.Evaluate(cfg, gen, series.Load)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		if err := export.WriteCSV(f, result); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result.KPIs)
}
