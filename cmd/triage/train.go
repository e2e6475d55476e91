package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/danielpatrickdp/adaptive-triage/internal/dataset"
	"github.com/danielpatrickdp/adaptive-triage/internal/eval"
	"github.com/danielpatrickdp/adaptive-triage/internal/network"
	"github.com/danielpatrickdp/adaptive-triage/internal/state"
	"github.com/danielpatrickdp/adaptive-triage/internal/symptom"
)

// trainMetrics is stored with each registry entry.
type trainMetrics struct {
	Accuracy     float64 `json:"accuracy"`
	NLL          float64 `json:"nll"`
	ECE          float64 `json:"ece"`
	Temperature  float64 `json:"temperature"`
	EpochsRun    int     `json:"epochs_run"`
	EarlyStopped bool    `json:"early_stopped"`
	TrainSize    int     `json:"train_size"`
	TestSize     int     `json:"test_size"`
	Passed       bool    `json:"passed"`
	Reason       string  `json:"reason,omitempty"`
}

func trainCmd() *cobra.Command {
	var (
		dataPath string
		force    bool
		quiet    bool
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a classifier from labelled cases and register it",
		Long: `Train reads a JSONL case file, makes a stratified train/validation/test split,
fits the network with class weighting and early stopping, calibrates the
temperature and scores the held-out test split. A model that passes the
release thresholds becomes the active model; one that fails is recorded as
rejected unless --force is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrain(dataPath, force, quiet)
		},
	}
	cmd.Flags().StringVar(&dataPath, "data", "", "JSONL case file (required)")
	cmd.Flags().String("model-dir", "", "directory for model artifacts")
	cmd.Flags().Int("epochs", 0, "maximum epochs")
	cmd.Flags().Int("hidden", 0, "hidden layer width")
	cmd.Flags().String("optimizer", "", "sgd or adam")
	cmd.Flags().Int64("seed", 0, "random seed for splits and initialisation")
	cmd.Flags().BoolVar(&force, "force", false, "activate the model even if evaluation fails")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "hide the progress bar")
	_ = cmd.MarkFlagRequired("data")

	_ = viper.BindPFlag("model_dir", cmd.Flags().Lookup("model-dir"))
	_ = viper.BindPFlag("epochs", cmd.Flags().Lookup("epochs"))
	_ = viper.BindPFlag("hidden", cmd.Flags().Lookup("hidden"))
	_ = viper.BindPFlag("optimizer", cmd.Flags().Lookup("optimizer"))
	_ = viper.BindPFlag("seed", cmd.Flags().Lookup("seed"))
	return cmd
}

func runTrain(dataPath string, force, quiet bool) error {
	logger := slog.Default().With("component", "train")

	table, err := loadTable()
	if err != nil {
		return err
	}
	cases, err := dataset.LoadCases(dataPath)
	if err != nil {
		return err
	}
	enc := symptom.NewEncoder(cfg.Encoder())
	set, err := dataset.Build(cases, table.Labels(), conditionNames(table), enc)
	if err != nil {
		return err
	}
	splits, err := dataset.StratifiedSplit(set, dataset.DefaultRatios(), cfg.Seed)
	if err != nil {
		return err
	}
	fit := set
	fit.Examples = append(append([]dataset.Example(nil), splits.Train.Examples...), splits.Val.Examples...)
	logger.Info("dataset loaded", "cases", set.Len(), "fit", fit.Len(), "test", splits.Test.Len())

	if fit.Len() == 0 {
		return fmt.Errorf("%s: no cases to train on", dataPath)
	}
	tc := cfg.Train()
	tc.ValidationSplit = float64(splits.Val.Len()) / float64(fit.Len())
	tc.ClassWeights = dataset.ClassWeights(splits.Train)

	var bar *progressbar.ProgressBar
	if !quiet {
		bar = progressbar.NewOptions(tc.Epochs,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("[cyan][bold]Training...[reset]"),
		)
	}
	tc.OnEpoch = func(s network.EpochStats) {
		logger.Debug("epoch", "epoch", s.Epoch, "train_loss", s.TrainLoss, "val_loss", s.ValLoss, "grad_norm", s.GradNorm)
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	model, summary, err := network.Train(fit, tc)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}
	model.KnowledgeVersion = table.Version
	logger.Info("training finished",
		"epochs", summary.EpochsRun,
		"early_stopped", summary.EarlyStopped,
		"best_epoch", summary.BestEpoch,
		"temperature", summary.Calibration.Temperature,
		"duration", summary.Duration.Round(time.Millisecond),
	)

	metrics := trainMetrics{
		Temperature:  model.Temperature,
		EpochsRun:    summary.EpochsRun,
		EarlyStopped: summary.EarlyStopped,
		TrainSize:    summary.TrainSize,
		TestSize:     splits.Test.Len(),
		Passed:       true,
	}
	if splits.Test.Len() > 0 {
		res, err := eval.NewEvalHarness(cfg.Eval()).Run(model, splits.Test)
		if err != nil {
			return err
		}
		metrics.Accuracy, _ = res.Metric("accuracy")
		metrics.NLL, _ = res.Metric("nll")
		metrics.ECE, _ = res.Metric("ece")
		metrics.Passed = res.Passed
		metrics.Reason = res.Reason
		printEval(res)
	} else {
		logger.Warn("no held-out examples, skipping evaluation")
	}

	if err := os.MkdirAll(cfg.ModelDir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	path := filepath.Join(cfg.ModelDir, fmt.Sprintf("model-%s.json", time.Now().UTC().Format("20060102T150405Z")))
	if err := model.Save(path); err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	mj, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	rec := state.ModelRecord{
		ArtifactPath:     path,
		Labels:           model.Labels,
		KnowledgeVersion: table.Version,
		MetricsJSON:      string(mj),
	}
	if metrics.Passed || force {
		rec, err = store.CommitModel(rec)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s (%s)\n", headerStyle.Render("Activated model"), shortID(rec.VersionID), path)
		return nil
	}
	rec, err = store.RecordModel(rec)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s: %s\n", alertStyle.Render("Rejected model"), shortID(rec.VersionID), metrics.Reason)
	return nil
}

func printEval(res eval.EvalResult) {
	fmt.Println(headerStyle.Render(fmt.Sprintf("Evaluation on %d held-out cases", res.Examples)))
	for _, m := range res.Metrics {
		mark := "pass"
		if !m.Pass {
			mark = alertStyle.Render("FAIL")
		}
		fmt.Printf("  %-10s %8.4f  %s\n", m.Name, m.Value, mark)
	}
	for _, c := range res.PerClass {
		if c.Support == 0 {
			continue
		}
		fmt.Println(mutedStyle.Render(fmt.Sprintf("  %-28s n=%-4d precision=%.2f recall=%.2f", c.Label, c.Support, c.Precision, c.Recall)))
	}
}
