package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kennyfs/KataCoffee/book"
	"github.com/kennyfs/KataCoffee/game"
	"github.com/kennyfs/KataCoffee/searcher"
)

// Config is the full run configuration of the book generator. The raw file
// contents are retained so the <bookfile>.cfg sidecar reproduces the exact
// text that produced the book.
type Config struct {
	BoardSizeX int     `yaml:"boardSizeX"`
	BoardSizeY int     `yaml:"boardSizeY"`
	RepBound   int     `yaml:"repBound"`
	Komi       float64 `yaml:"komi"`
	RulesLabel string  `yaml:"rulesLabel"`
	RulesLink  string  `yaml:"rulesLink"`

	Book book.Params `yaml:"book"`

	SharpScoreOutlierCap float64 `yaml:"sharpScoreOutlierCap"`

	MinTreeVisitsToRecord int64 `yaml:"minTreeVisitsToRecord"`
	MaxDepthToRecord      int   `yaml:"maxDepthToRecord"`
	MaxVisitsForLeaves    int64 `yaml:"maxVisitsForLeaves"`

	NumGameThreads          int `yaml:"numGameThreads"`
	NumToExpandPerIteration int `yaml:"numToExpandPerIteration"`

	Search                         searcher.Params `yaml:"search"`
	WideRootNoiseBookExplore       float64         `yaml:"wideRootNoiseBookExplore"`
	CpuctExplorationLogBookExplore float64         `yaml:"cpuctExplorationLogBookExplore"`

	LogSearchInfo bool `yaml:"logSearchInfo"`

	// Evaluator selection is passed through to the neural evaluator's own
	// configuration; the built-in heuristic evaluator only uses the seed.
	NNSeed   uint64 `yaml:"nnSeed"`
	NNDevice string `yaml:"nnDevice"`

	MetricsDir string `yaml:"metricsDir"`

	raw []byte
}

func Default() Config {
	return Config{
		BoardSizeX: 19,
		BoardSizeY: 19,
		RepBound:   5,
		Komi:       7.5,
		RulesLabel: "area",
		Book: book.Params{
			ErrorFactor:                    1.0,
			CostPerMove:                    0.5,
			CostPerUCBWinLossLoss:          3.0,
			CostPerUCBWinLossLossPow3:      3.0,
			CostPerUCBWinLossLossPow7:      3.0,
			CostPerUCBScoreLoss:            0.25,
			CostPerLogPolicy:               0.5,
			CostPerMovesExpanded:           1.0,
			CostPerSquaredMovesExpanded:    0.0,
			CostWhenPassFavored:            2.0,
			BonusPerWinLossError:           0.5,
			BonusPerScoreError:             0.1,
			BonusPerSharpScoreDiscrepancy:  0.2,
			BonusPerExcessUnexpandedPolicy: 1.0,
			BonusForWLPV1:                  0.1,
			BonusForWLPV2:                  0.05,
			BonusForBiggestWLCost:          0.2,
			ScoreLossCap:                   10.0,
			UtilityPerScore:                0.1,
			PolicyBoostSoftUtilityScale:    0.03,
			UtilityPerPolicyForSorting:     0.1,
			MaxVisitsForReExpansion:        50,
		},
		SharpScoreOutlierCap:           20.0,
		MinTreeVisitsToRecord:          20,
		MaxDepthToRecord:               2,
		MaxVisitsForLeaves:             50,
		NumGameThreads:                 1,
		NumToExpandPerIteration:        1,
		Search:                         searcher.DefaultParams(),
		WideRootNoiseBookExplore:       0.5,
		CpuctExplorationLogBookExplore: 0.9,
	}
}

// Load reads a YAML config, applying the file's values over the defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.raw = raw
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Raw returns the original file contents, or a YAML rendering of the config
// when it was built in memory.
func (c *Config) Raw() []byte {
	if c.raw != nil {
		return c.raw
	}
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil
	}
	return out
}

func (c *Config) Validate() error {
	checkInt := func(name string, v, lo, hi int) error {
		if v < lo || v > hi {
			return fmt.Errorf("%s = %d out of range [%d, %d]", name, v, lo, hi)
		}
		return nil
	}
	checks := []error{
		checkInt("boardSizeX", c.BoardSizeX, 2, game.MaxBoardSize),
		checkInt("boardSizeY", c.BoardSizeY, 2, game.MaxBoardSize),
		checkInt("repBound", c.RepBound, 3, 1000),
		checkInt("maxDepthToRecord", c.MaxDepthToRecord, 1, 100),
		checkInt("numGameThreads", c.NumGameThreads, 1, 1000),
		checkInt("numToExpandPerIteration", c.NumToExpandPerIteration, 1, 10000000),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	if c.MinTreeVisitsToRecord < 1 {
		return fmt.Errorf("minTreeVisitsToRecord must be at least 1")
	}
	if c.MaxVisitsForLeaves < 1 {
		return fmt.Errorf("maxVisitsForLeaves must be at least 1")
	}
	if c.Search.MaxVisits < 1 {
		return fmt.Errorf("search maxVisits must be at least 1")
	}
	return nil
}

// Rules assembles the game rules from the scalar keys.
func (c *Config) Rules() game.Rules {
	return game.Rules{
		Komi:   c.Komi,
		Label:  c.RulesLabel,
		KoRule: game.KoRulePositional,
	}
}
