package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/dvloznov/statement-ingest/internal/app"
	"github.com/dvloznov/statement-ingest/internal/categorizer"
	"github.com/dvloznov/statement-ingest/internal/config"
	"github.com/dvloznov/statement-ingest/internal/domain"
)

func main() {
	var (
		dataPath string
		outPath  string
		folds    int
		holdout  float64
		seed     int64
	)
	flag.StringVar(&dataPath, "data", "", "labeled CSV with description and category columns (required)")
	flag.StringVar(&outPath, "out", "", "where to save the model (defaults to ML_MODEL_PATH)")
	flag.IntVar(&folds, "folds", 5, "cross-validation folds")
	flag.Float64Var(&holdout, "holdout", 0.2, "fraction of each category held out for the final evaluation")
	flag.Int64Var(&seed, "seed", 42, "random seed for splits")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if outPath == "" {
		outPath = cfg.MLModelPath
	}
	if dataPath == "" || outPath == "" {
		log.Fatal().Msg("Usage: train -data samples.csv [-out model.gob] [-folds 5] (or set ML_MODEL_PATH)")
	}

	f, err := os.Open(dataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Opening training data failed")
	}
	samples, skipped, err := categorizer.ReadSamples(f)
	f.Close()
	if err != nil {
		log.Fatal().Err(err).Msg("Reading training data failed")
	}
	log.Info().Int("samples", len(samples)).Int("skipped", skipped).Msg("Training data loaded")

	cv, err := categorizer.CrossValidate(samples, folds, seed)
	if err != nil {
		log.Fatal().Err(err).Msg("Cross-validation failed")
	}
	log.Info().Floats64("folds", cv.Folds).Float64("mean_accuracy", cv.Mean).Msg("Cross-validation done")

	train, test := categorizer.StratifiedSplit(samples, holdout, seed)
	heldOut, err := categorizer.Train(train)
	if err != nil {
		log.Fatal().Err(err).Msg("Training failed")
	}
	ev := categorizer.Evaluate(heldOut, test)
	cats := make([]string, 0, len(ev.PerCategory))
	for c := range ev.PerCategory {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	for _, c := range cats {
		fmt.Printf("%-20s %.3f\n", c, ev.PerCategory[domain.Category(c)])
	}
	fmt.Printf("held-out accuracy: %.3f (%d/%d)\n", ev.Accuracy, ev.Correct, ev.Total)

	// The saved model sees every sample.
	model, err := categorizer.Train(samples)
	if err != nil {
		log.Fatal().Err(err).Msg("Training failed")
	}
	if err := model.Save(outPath); err != nil {
		log.Fatal().Err(err).Msg("Saving model failed")
	}
	fmt.Printf("Model saved to %s (cv mean accuracy %.3f)\n", outPath, cv.Mean)
}
