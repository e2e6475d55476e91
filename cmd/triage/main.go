package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/danielpatrickdp/adaptive-triage/internal/config"
)

var (
	cfgFile string
	cfg     config.Config
	rootCmd = &cobra.Command{
		Use:   "triage",
		Short: "Adaptive symptom triage",
		Long: `triage trains a symptom classifier, gates its output with clinical rules
and runs adaptive question-and-answer sessions against the active model.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/triage/config.yaml)")
	rootCmd.PersistentFlags().String("db", "", "sqlite database path")
	rootCmd.PersistentFlags().String("knowledge", "", "knowledge table JSON (default: embedded table)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")

	_ = viper.BindPFlag("db_path", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("knowledge_path", rootCmd.PersistentFlags().Lookup("knowledge"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(trainCmd())
	rootCmd.AddCommand(diagnoseCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(inspectCmd())
	rootCmd.AddCommand(rollbackCmd())
	rootCmd.AddCommand(serveCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// #region config
// initConfig layers the config file and flags over the TRIAGE_* environment.
func initConfig(_ *cobra.Command, _ []string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(fmt.Sprintf("%s/.config/triage", home))
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("TRIAGE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	loaded, err := config.Load()
	if err != nil {
		return err
	}
	applyOverrides(&loaded)
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cfg = loaded

	return setupLogging()
}

func applyOverrides(c *config.Config) {
	str := map[string]*string{
		"db_path":        &c.DBPath,
		"model_dir":      &c.ModelDir,
		"knowledge_path": &c.KnowledgePath,
		"log_level":      &c.LogLevel,
		"log_format":     &c.LogFormat,
		"grpc_addr":      &c.GRPCAddr,
		"optimizer":      &c.Optimizer,
	}
	for key, dst := range str {
		if viper.IsSet(key) && viper.GetString(key) != "" {
			*dst = viper.GetString(key)
		}
	}
	if viper.IsSet("max_questions") {
		c.MaxQuestions = viper.GetInt("max_questions")
	}
	if viper.IsSet("confidence_threshold") {
		c.ConfidenceThreshold = viper.GetFloat64("confidence_threshold")
	}
	if viper.IsSet("epochs") {
		c.Epochs = viper.GetInt("epochs")
	}
	if viper.IsSet("hidden") {
		c.Hidden = viper.GetInt("hidden")
	}
	if viper.IsSet("seed") {
		c.Seed = viper.GetInt64("seed")
	}
}

func setupLogging() error {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.LogFormat {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// #endregion config
