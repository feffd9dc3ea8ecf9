// Command katacoffee builds and checks opening books: genbook grows a book
// by iterated search expansion, checkbook verifies a book's integrity.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"

	"github.com/kennyfs/KataCoffee/book"
	"github.com/kennyfs/KataCoffee/config"
	"github.com/kennyfs/KataCoffee/expander"
	"github.com/kennyfs/KataCoffee/game"
	"github.com/kennyfs/KataCoffee/metrics"
	"github.com/kennyfs/KataCoffee/searcher"
	"github.com/kennyfs/KataCoffee/sgf"
)

const (
	exitOK      = 0
	exitArgs    = 1
	exitRuntime = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: katacoffee <genbook|checkbook> [flags]")
		return exitArgs
	}
	switch args[0] {
	case "genbook":
		return runGenBook(args[1:])
	case "checkbook":
		return runCheckBook(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		return exitArgs
	}
}

func newLogger(logFile string) (zerolog.Logger, func(), error) {
	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}}
	cleanup := func() {}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("opening log file: %w", err)
		}
		writers = append(writers, f)
		cleanup = func() { f.Close() }
	}
	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	return logger, cleanup, nil
}

func runGenBook(args []string) int {
	fs := flag.NewFlagSet("genbook", flag.ContinueOnError)
	configFile := fs.String("config", "", "run configuration file (required)")
	bookFile := fs.String("book-file", "", "book file to write to or continue expanding (required)")
	numIters := fs.Int("num-iters", 0, "number of iterations to expand the book")
	saveEvery := fs.Int("save-every", 0, "iterations per save to the book file")
	htmlDir := fs.String("html-dir", "", "HTML directory to export to at the end")
	htmlMinVisits := fs.Float64("html-min-visits", 0, "minimum visits to export a position to html")
	htmlDevMode := fs.Bool("html-dev-mode", false, "denser debug output for html")
	traceBookFile := fs.String("trace-book-file", "", "other book file to copy all lines from")
	traceBookMinVisits := fs.Float64("trace-book-min-visits", 0, "minimum visits for copying from the trace book")
	bonusFile := fs.String("bonus-file", "", "SGF with BONUS annotations")
	allowChangingBookParams := fs.Bool("allow-changing-book-params", false, "allow changing book params")
	logFile := fs.String("log-file", "", "log file to write to")
	if err := fs.Parse(args); err != nil {
		return exitArgs
	}
	if *configFile == "" || *bookFile == "" {
		fmt.Fprintln(os.Stderr, "genbook requires -config and -book-file")
		return exitArgs
	}
	if *traceBookFile != "" && *numIters > 0 {
		fmt.Fprintln(os.Stderr, "cannot specify both -num-iters and -trace-book-file")
		return exitArgs
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitArgs
	}

	logger, closeLog, err := newLogger(*logFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitArgs
	}
	defer closeLog()

	rules := cfg.Rules()

	// Bonus SGF: every annotated position contributes its bonus under every
	// historical hashing rule, so older books keep receiving it.
	bonusByHash := make(map[book.Hash]float64)
	bonusInitialBoard := game.NewBoard(cfg.BoardSizeX, cfg.BoardSizeY)
	bonusInitialPla := game.Black
	if *bonusFile != "" {
		var err error
		bonusInitialBoard, bonusInitialPla, err = loadBonusFile(*bonusFile, cfg, rules, bonusByHash, logger)
		if err != nil {
			logger.Error().Err(err).Msg("failed to load bonus file")
			return exitArgs
		}
	}

	evaluator := searcher.NewHeuristicEvaluator(cfg.NNSeed)
	// Sized for a batched neural evaluator: enough in-flight queries for
	// every worker's search threads, with headroom.
	maxConcurrentEvals := cfg.NumGameThreads*cfg.Search.NumThreads*2 + 16
	logger.Info().
		Str("device", cfg.NNDevice).
		Int("maxConcurrentEvals", maxConcurrentEvals).
		Msg("initialized evaluator")

	rootRng := rand.New(rand.NewSource(cfg.NNSeed ^ 0x60bf1a1c9fed25c3))
	searches := make([]*searcher.Search, cfg.NumGameThreads)
	for i := range searches {
		searches[i] = searcher.NewSearch(cfg.Search, evaluator, rootRng.Uint64())
	}

	var bk *book.Book
	if _, statErr := os.Stat(*bookFile); statErr == nil {
		bk, err = book.LoadFromFile(*bookFile, cfg.SharpScoreOutlierCap)
		if err != nil {
			logger.Error().Err(err).Msg("failed to load book")
			return exitRuntime
		}
		loaded := bk.InitialBoard()
		if loaded.XSize != cfg.BoardSizeX || loaded.YSize != cfg.BoardSizeY ||
			bk.RepBound() != cfg.RepBound || !bk.Rules().Equals(rules) {
			logger.Error().Msg("book parameters do not match config (board size, repBound, or rules)")
			return exitArgs
		}
		if *bonusFile != "" {
			if !bonusInitialBoard.Equals(loaded) || bonusInitialPla != bk.InitialPla() {
				logger.Error().Msg("bonus sgf initial position does not match the book")
				return exitArgs
			}
		}
		if err := bk.CheckParams(cfg.Book, *allowChangingBookParams, func(name string, from, to float64) {
			logger.Info().Str("param", name).Float64("from", from).Float64("to", to).Msg("changing book param")
		}); err != nil {
			if errors.Is(err, book.ErrConfigMismatch) {
				logger.Error().Err(err).Msg("pass -allow-changing-book-params to override")
				return exitArgs
			}
			logger.Error().Err(err).Msg("failed to check book params")
			return exitRuntime
		}
		logger.Info().Int("nodes", bk.Size()).Int("version", bk.BookVersion).Str("file", *bookFile).Msg("loaded preexisting book")
	} else {
		logger.Info().Str("board", "\n"+bonusInitialBoard.String()).Msg("initializing new book with starting position")
		bk = book.New(
			book.LatestBookVersion,
			bonusInitialBoard,
			rules,
			bonusInitialPla,
			cfg.RepBound,
			cfg.Book,
			cfg.SharpScoreOutlierCap,
		)
		logger.Info().Str("file", *bookFile).Msg("creating new book")
		if err := bk.SaveToFile(*bookFile); err != nil {
			logger.Error().Err(err).Msg("failed to save new book")
			return exitRuntime
		}
		if err := os.WriteFile(*bookFile+".cfg", cfg.Raw(), 0644); err != nil {
			logger.Error().Err(err).Msg("failed to write config sidecar")
			return exitRuntime
		}
	}

	var traceBook *book.Book
	if *traceBookFile != "" {
		traceBook, err = book.LoadFromFile(*traceBookFile, cfg.SharpScoreOutlierCap)
		if err != nil {
			logger.Error().Err(err).Msg("failed to load trace book")
			return exitRuntime
		}
		traceBook.RecomputeEverything()
		logger.Info().
			Int("nodes", traceBook.Size()).
			Float64("minVisits", *traceBookMinVisits).
			Str("file", *traceBookFile).
			Msg("loaded trace book")
	}

	bk.SetBonusByHash(bonusByHash)
	bk.RecomputeEverything()

	var stop atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("received signal, stopping")
		stop.Store(true)
	}()

	collector := metrics.NewCollector()
	exp := expander.New(bk, evaluator, cfg.Search, expander.Settings{
		MinTreeVisitsToRecord:          cfg.MinTreeVisitsToRecord,
		MaxDepthToRecord:               cfg.MaxDepthToRecord,
		MaxVisitsForLeaves:             cfg.MaxVisitsForLeaves,
		WideRootNoiseBookExplore:       cfg.WideRootNoiseBookExplore,
		CpuctExplorationLogBookExplore: cfg.CpuctExplorationLogBookExplore,
		LogSearchInfo:                  cfg.LogSearchInfo,
	}, logger, &stop, collector)
	driver := expander.NewDriver(bk, exp, searches, logger, &stop, collector, cfg.NumToExpandPerIteration)

	if traceBook != nil {
		if err := driver.RunTrace(traceBook, *traceBookMinVisits); err != nil {
			logger.Error().Err(err).Msg("trace failed")
			return exitRuntime
		}
	} else {
		if err := driver.RunIterations(*numIters, *saveEvery, *bookFile, cfg.Raw()); err != nil {
			logger.Error().Err(err).Msg("expansion failed")
			return exitRuntime
		}
	}

	if traceBook != nil || *numIters > 0 {
		if err := driver.SaveBook(*bookFile, cfg.Raw()); err != nil {
			logger.Error().Err(err).Msg("final save failed")
			return exitRuntime
		}
	}

	if *htmlDir != "" {
		// HTML export is handled by the separate viewer tooling.
		logger.Info().
			Str("dir", *htmlDir).
			Float64("minVisits", *htmlMinVisits).
			Bool("devMode", *htmlDevMode).
			Msg("html export requested; not performed by this build")
	}

	if cfg.MetricsDir != "" && len(driver.IterationMetrics) > 0 {
		writer, err := metrics.NewWriter(cfg.MetricsDir)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create metrics writer")
		} else if err := writer.WriteIterations(driver.IterationMetrics); err != nil {
			logger.Warn().Err(err).Msg("failed to write iteration metrics")
		}
	}

	logger.Info().Msg("done")
	return exitOK
}

// loadBonusFile scans an SGF for positions whose comment carries a BONUS
// annotation and fills bonusByHash for every historical book version.
func loadBonusFile(
	path string,
	cfg *config.Config,
	rules game.Rules,
	bonusByHash map[book.Hash]float64,
	logger zerolog.Logger,
) (*game.Board, game.Player, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, game.Empty, fmt.Errorf("reading bonus file: %w", err)
	}
	parsed, err := sgf.Parse(string(text))
	if err != nil {
		return nil, game.Empty, err
	}
	x, y, err := parsed.XYSize()
	if err != nil {
		return nil, game.Empty, err
	}
	if x != cfg.BoardSizeX || y != cfg.BoardSizeY {
		return nil, game.Empty, fmt.Errorf("board size in config does not match the bonus file")
	}

	err = parsed.IterUniquePositions(rules, func(hist *game.BoardHistory, comment string) {
		idx := strings.Index(comment, "BONUS")
		if idx < 0 {
			return
		}
		fields := strings.Fields(comment[idx+len("BONUS"):])
		if len(fields) == 0 {
			return
		}
		bonus, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return
		}
		for version := 1; version <= book.LatestBookVersion; version++ {
			hash, _, _ := book.GetHashAndSymmetry(hist, cfg.RepBound, version)
			bonusByHash[hash] = bonus
			logger.Info().Float64("bonus", bonus).Str("hash", hash.String()).Msg("adding bonus")
		}
	})
	if err != nil {
		return nil, game.Empty, err
	}

	board := game.NewBoard(x, y)
	placements, err := parsed.Placements()
	if err != nil {
		return nil, game.Empty, err
	}
	for _, m := range placements {
		if err := board.SetStone(m.Loc, m.Pla); err != nil {
			return nil, game.Empty, fmt.Errorf("invalid placements in sgf: %w", err)
		}
	}
	return board, parsed.FirstPlayerColor(), nil
}

func runCheckBook(args []string) int {
	fs := flag.NewFlagSet("checkbook", flag.ContinueOnError)
	bookFile := fs.String("book-file", "", "book file to check (required)")
	if err := fs.Parse(args); err != nil {
		return exitArgs
	}
	if *bookFile == "" {
		fmt.Fprintln(os.Stderr, "checkbook requires -book-file")
		return exitArgs
	}

	logger, closeLog, err := newLogger("")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitArgs
	}
	defer closeLog()

	const sharpScoreOutlierCap = 2.0
	bk, err := book.LoadFromFile(*bookFile, sharpScoreOutlierCap)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load book")
		return exitRuntime
	}
	logger.Info().Int("nodes", bk.Size()).Int("version", bk.BookVersion).Msg("loaded preexisting book")

	logger.Info().Msg("checking book")
	nodes := bk.AllNodes()
	failures := 0
	for i, node := range nodes {
		hist, _, _, ok := bk.HistoryReachingHere(node)
		if !ok {
			logger.Error().Str("hash", node.Hash().String()).Msg("failed to reconstruct history reaching node")
			failures++
			continue
		}
		hash, _, _ := book.GetHashAndSymmetry(hist, bk.RepBound(), bk.BookVersion)
		if hash != node.Hash() {
			logger.Error().
				Str("hash", node.Hash().String()).
				Str("walked", hash.String()).
				Msg("book failed integrity check")
			failures++
		}
		if checked := i + 1; checked%10000 == 0 {
			logger.Info().Int("checked", checked).Int("total", len(nodes)).Msg("checking nodes")
		}
	}
	if failures > 0 {
		logger.Error().Int("failures", failures).Msg("integrity check failed")
		return exitRuntime
	}
	logger.Info().Msg("done")
	return exitOK
}
