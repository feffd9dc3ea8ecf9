package searcher

// Params tunes one search handle. NumThreads is the nominal per-search
// parallelism used for sizing evaluator concurrency; the handle itself runs
// its playouts cooperatively on the worker's goroutine.
type Params struct {
	MaxVisits           int64   `yaml:"maxVisits"`
	NumThreads          int     `yaml:"numSearchThreads"`
	CPUctExploration    float64 `yaml:"cpuctExploration"`
	CPUctExplorationLog float64 `yaml:"cpuctExplorationLog"`
	WideRootNoise       float64 `yaml:"wideRootNoise"`
	FPUReduction        float64 `yaml:"fpuReduction"`
}

func DefaultParams() Params {
	return Params{
		MaxVisits:           100,
		NumThreads:          1,
		CPUctExploration:    1.0,
		CPUctExplorationLog: 0.45,
		WideRootNoise:       0.0,
		FPUReduction:        0.2,
	}
}
