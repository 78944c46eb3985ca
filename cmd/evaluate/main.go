package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"counsellor/config"
	"counsellor/dataset"
	"counsellor/db"
	"counsellor/logging"
	"counsellor/ml"
	"counsellor/registry"
)

type options struct {
	dir        string
	only       string
	testRatio  float64
	seed       int64
	importance string
	exportDir  string
	inspect    string
	dbPath     string
	verbose    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.dir, "dir", "trainingDataSets", "directory of JSON training files")
	flag.StringVar(&opts.only, "dataset", "", "evaluate a single dataset key")
	flag.Float64Var(&opts.testRatio, "test_ratio", 0.2, "share of records held out for evaluation")
	flag.Int64Var(&opts.seed, "seed", 42, "random seed for the holdout split")
	flag.StringVar(&opts.importance, "importance", "gain", "feature importance: gain or static")
	flag.StringVar(&opts.exportDir, "export", "", "write each tree as JSON into this directory")
	flag.StringVar(&opts.inspect, "inspect", "", "print a stored tree and exit")
	flag.StringVar(&opts.dbPath, "db", "", "append results to this sqlite evaluation log")
	flag.BoolVar(&opts.verbose, "v", false, "verbose logging")
	flag.Parse()

	if err := run(opts, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

// run returns every failure so deferred cleanup (logger sync, database
// close) happens before the process exits.
func run(opts options, out io.Writer) error {
	if opts.inspect != "" {
		tree, err := ml.LoadModel("id3", opts.inspect)
		if err != nil {
			return fmt.Errorf("failed to load tree: %w", err)
		}
		return tree.Render(out)
	}

	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	logger, err := logging.New(config.LogConfig{Level: level, Format: "console"})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	reg, err := registry.New(registry.Options{
		Logger:     logger,
		Importance: registry.ImportanceMode(opts.importance),
	})
	if err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	loader := dataset.NewLoader(dataset.LoaderConfig{Dir: opts.dir, TestRatio: opts.testRatio, Seed: opts.seed}, reg.ResolveTarget, logger)
	datasets, err := loader.Load(context.Background())
	if err != nil {
		if len(dataset.FailedKeys(err)) == 0 {
			return fmt.Errorf("failed to load datasets: %w", err)
		}
		logger.Warn("some training files were skipped", zap.Error(err))
	}
	if opts.only != "" {
		datasets = filterDatasets(datasets, opts.only)
		if len(datasets) == 0 {
			return fmt.Errorf("dataset %q not found in %s", opts.only, opts.dir)
		}
	}
	if err := reg.Reinitialize(datasets); err != nil {
		logger.Warn("some datasets failed to build", zap.Error(err))
	}

	var store *db.Store
	if opts.dbPath != "" {
		store, err = db.Open(opts.dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
	}

	for _, key := range reg.Datasets() {
		if err := report(out, reg, key, store, opts.exportDir); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func filterDatasets(datasets []dataset.Dataset, key string) []dataset.Dataset {
	for _, ds := range datasets {
		if ds.Key == key {
			return []dataset.Dataset{ds}
		}
	}
	return nil
}

func report(out io.Writer, reg *registry.Registry, key string, store *db.Store, exportDir string) error {
	stats, err := reg.Stats(key)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "== %s (target %s)\n", key, stats.Target)
	fmt.Fprintf(out, "records: train=%d test=%d attributes=%d depth=%d nodes=%d\n",
		stats.TotalTrain, stats.TotalTest, len(stats.Attributes), stats.TreeDepth, stats.TreeNodes)
	fmt.Fprintf(out, "top label: %s\n", stats.TopLabel)
	for _, imp := range stats.Importance {
		fmt.Fprintf(out, "  %-24s %.4f\n", imp.Attribute, imp.Importance)
	}

	eval, err := reg.Evaluate(key)
	switch {
	case errors.Is(err, registry.ErrNoHoldout):
		fmt.Fprintln(out, "no held-out records, skipping evaluation")
	case err != nil:
		return err
	default:
		fmt.Fprintf(out, "accuracy: %.2f%% (%d/%d)\n", eval.Accuracy, eval.Correct, eval.Total)
		printConfusion(out, eval.Confusion)
		if store != nil {
			if err := store.SaveEvaluation(context.Background(), eval); err != nil {
				return fmt.Errorf("save evaluation: %w", err)
			}
		}
	}

	if exportDir != "" {
		model, err := reg.Model(key)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(exportDir, 0o755); err != nil {
			return err
		}
		path := filepath.Join(exportDir, key+".json")
		if err := model.Tree.Save(path); err != nil {
			return err
		}
		fmt.Fprintf(out, "tree saved to %s\n", path)
	}
	fmt.Fprintln(out)
	return nil
}

func printConfusion(out io.Writer, confusion map[string]map[string]int) {
	actuals := make([]string, 0, len(confusion))
	for actual := range confusion {
		actuals = append(actuals, actual)
	}
	sort.Strings(actuals)
	for _, actual := range actuals {
		row := confusion[actual]
		predicted := make([]string, 0, len(row))
		for p := range row {
			predicted = append(predicted, p)
		}
		sort.Strings(predicted)
		for _, p := range predicted {
			fmt.Fprintf(out, "  %s -> %s: %d\n", actual, p, row[p])
		}
	}
}
