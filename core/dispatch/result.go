package dispatch

// Result bundles a full engine run for serialization: the effective
// configuration, aggregate KPIs and the per-step series in both MWh and MW.
type Result struct {
	Config    Config               `json:"config"`
	KPIs      KPIs                 `json:"kpis"`
	SeriesMWh map[string][]float64 `json:"series_mwh"`
	SeriesMW  map[string][]float64 `json:"series_mw"`
	DtHours   float64              `json:"dt_hours"`
}

// Evaluate runs the engine and packages the outcome as a Result. The MW
// series are the MWh series divided by the step duration.
func Evaluate(cfg Config, genMW, loadMW []float64) (Result, error) {
	steps, kpis, err := Run(cfg, genMW, loadMW)
	if err != nil {
		return Result{}, err
	}

	mwh := map[string][]float64{
		"gen_to_load_mwh":        column(steps, func(s StepAllocation) float64 { return s.GenToLoad }),
		"gen_to_storage_mwh":     column(steps, func(s StepAllocation) float64 { return s.GenToStorage }),
		"gen_export_mwh":         column(steps, func(s StepAllocation) float64 { return s.GenExport }),
		"storage_to_load_mwh":    column(steps, func(s StepAllocation) float64 { return s.StorageToLoad }),
		"deferred_charge_mwh":    column(steps, func(s StepAllocation) float64 { return s.DeferredCharge }),
		"deferred_discharge_mwh": column(steps, func(s StepAllocation) float64 { return s.DeferredDischarge }),
		"grid_import_mwh":        column(steps, func(s StepAllocation) float64 { return s.GridImport }),
	}

	mw := make(map[string][]float64, len(mwh))
	for key, series := range mwh {
		scaled := make([]float64, len(series))
		for i, v := range series {
			scaled[i] = v / cfg.DtHours
		}
		mw[key[:len(key)-len("_mwh")]+"_mw"] = scaled
	}

	return Result{Config: cfg, KPIs: kpis, SeriesMWh: mwh, SeriesMW: mw, DtHours: cfg.DtHours}, nil
}

func column(steps []StepAllocation, pick func(StepAllocation) float64) []float64 {
	out := make([]float64, len(steps))
	for i, s := range steps {
		out[i] = pick(s)
	}
	return out
}
