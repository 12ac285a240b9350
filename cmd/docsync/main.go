package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/docsync/internal/config"
	"github.com/openmined/docsync/internal/utils"
	"github.com/openmined/docsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	envPrefix      = "DOCSYNC"
)

// cfg is loaded before every command runs. Commands that talk to the remote
// validate it themselves.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "docsync",
	Short:         "Two-way sync between a local markdown tree and a remote document space",
	Version:       version.Detailed(),
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg = loaded
		verbose, _ := cmd.Flags().GetBool("verbose")
		setupLogging(cfg.LogFile, verbose)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.SortFlags = false
	pf.StringP("config", "c", config.DefaultConfigPath, "docsync config file")
	pf.StringP("root", "r", ".", "local sync root")
	pf.String("base-url", "", "remote document service url")
	pf.String("space", "", "remote space id for new documents")
	pf.String("converter", "", "content converter (storage, passthrough)")
	pf.BoolP("verbose", "v", false, "debug logging")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red.Render("Error:"), err)
		os.Exit(1)
	}
}

// loadConfig layers defaults, the config file, a .env file, DOCSYNC_* env vars
// and flags, lowest to highest precedence.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	def := config.Default()
	v.SetDefault("root_dir", def.RootDir)
	v.SetDefault("base_url", def.BaseURL)
	v.SetDefault("space_id", def.SpaceID)
	v.SetDefault("token", def.Token)
	v.SetDefault("concurrency", def.Concurrency)
	v.SetDefault("retry_attempts", def.RetryAttempts)
	v.SetDefault("retry_backoff", def.RetryBackoff)
	v.SetDefault("strategy", string(def.Strategy))
	v.SetDefault("converter", def.Converter)
	v.SetDefault("debounce", def.Debounce)
	v.SetDefault("log_file", def.LogFile)

	if f := cmd.Flag("config"); f != nil && f.Changed {
		v.SetConfigFile(f.Value.String())
	} else {
		v.AddConfigPath(config.DefaultConfigDir)
		v.SetConfigName(config.ConfigName)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	for key, flag := range map[string]string{
		"root_dir":    "root",
		"base_url":    "base-url",
		"space_id":    "space",
		"converter":   "converter",
		"concurrency": "concurrency",
		"strategy":    "strategy",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil {
			v.BindPFlag(key, f)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	out := &config.Config{}
	if err := v.Unmarshal(out); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	out.Path = v.ConfigFileUsed()
	if out.Path == "" {
		out.Path = config.DefaultConfigPath
	}
	return out, nil
}

func setupLogging(logFile string, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handlers := []slog.Handler{
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
			NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		}),
	}
	if logFile != "" {
		if err := utils.EnsureParent(logFile); err == nil {
			rotating := &lumberjack.Logger{
				Filename:   logFile,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
			}
			handlers = append(handlers, slog.NewTextHandler(rotating, &slog.HandlerOptions{Level: slog.LevelDebug}))
		}
	}

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(handlers...)))
}
