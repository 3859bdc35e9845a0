// Package cmd wires the CLI surface: the daemon itself plus the small
// helper commands the editor-side script shells out to.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/kakhl/internal/config"
	"github.com/zjrosen/kakhl/internal/engine"
	"github.com/zjrosen/kakhl/internal/fifo"
	"github.com/zjrosen/kakhl/internal/kak"
	"github.com/zjrosen/kakhl/internal/log"
	"github.com/zjrosen/kakhl/internal/server"
	"github.com/zjrosen/kakhl/internal/tracing"
)

var (
	version = "dev"
	cfgFile string
	debug   bool
	logFile string
	oneshot bool
	reqFifo string
	rspFifo string
)

var rootCmd = &cobra.Command{
	Use:     "kakhl",
	Short:   "Syntax highlighting daemon for kakoune",
	Long: `A per-session daemon that highlights kakoune buffers out of process.
Buffers stream snapshots through named pipes; highlighted ranges come back
as buffer options via kak -p.`,
	Version: version,
	RunE:    runServer,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/kakhl/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"log at debug level")
	rootCmd.PersistentFlags().StringVar(&logFile, "log", "",
		"write a log file at the given path")
	rootCmd.Flags().BoolVar(&oneshot, "oneshot", false,
		"highlight one document from stdin and exit")
	rootCmd.Flags().StringVar(&reqFifo, "fifo", "",
		"read control commands from a named pipe instead of stdin")
	rootCmd.Flags().StringVar(&rspFifo, "resp", "",
		"write control replies to a named pipe instead of stdout")
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("theme", defaults.Theme)
	viper.SetDefault("min_interval", defaults.MinInterval)
	viper.SetDefault("grace_period", defaults.GracePeriod)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	viper.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .kakhl/config.yaml (current directory)
		// 2. ~/.config/kakhl/config.yaml (user config)
		if _, err := os.Stat(".kakhl/config.yaml"); err == nil {
			viper.SetConfigFile(".kakhl/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "kakhl"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - write the default where the user
		// can find and edit it, then continue with built-in defaults.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			home, homeErr := os.UserHomeDir()
			if homeErr == nil {
				defaultPath := filepath.Join(home, ".config", "kakhl", "config.yaml")
				if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
					viper.SetConfigFile(defaultPath)
					_ = viper.ReadInConfig()
				}
			}
		}
	}
}

func loadConfig() (config.Config, error) {
	cfg := config.Defaults()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

func setupLogging() func() {
	if logFile == "" {
		if os.Getenv("KAKHL_DEBUG") == "" && !debug {
			return func() {}
		}
		logFile = filepath.Join(os.TempDir(), "kakhl.log")
	}

	closer, err := log.Init(logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kakhl: cannot open log file: %v\n", err)
		return func() {}
	}
	if !debug {
		log.SetMinLevel(log.LevelInfo)
	}
	return closer
}

func runServer(cmd *cobra.Command, args []string) error {
	closeLog := setupLogging()
	defer closeLog()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store := config.NewStore(cfg)
	if viper.ConfigFileUsed() != "" {
		config.Watch(viper.GetViper(), store)
	}

	eng, err := engine.Load(cfg.ResolveTheme(""))
	if err != nil {
		return fmt.Errorf("engine startup: %w", err)
	}

	if oneshot {
		return server.RunOneshot(os.Stdin, os.Stdout, eng, store)
	}

	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing startup: %w", err)
	}
	defer func() { _ = provider.Shutdown(context.Background()) }()

	guardian, err := server.NewGuardian(cfg.BaseDir)
	if err != nil {
		return fmt.Errorf("provisioning base directory: %w", err)
	}
	defer guardian.Release()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	guardian.NotifySignals(cancel)

	in, out, closeChannels, err := controlChannels()
	if err != nil {
		return err
	}
	defer closeChannels()

	srv := server.New(store, eng, guardian, kak.PipeSender{}, out)
	return srv.Run(ctx, in)
}

// controlChannels resolves the control transport: stdio by default, named
// pipes when --fifo (and optionally --resp) are given. Opening the request
// pipe blocks until the editor side connects, which is the handshake.
func controlChannels() (io.Reader, io.Writer, func(), error) {
	if reqFifo == "" {
		return os.Stdin, os.Stdout, func() {}, nil
	}

	if err := fifo.Create(reqFifo); err != nil {
		return nil, nil, nil, fmt.Errorf("creating control pipe: %w", err)
	}
	in, err := os.OpenFile(reqFifo, os.O_RDONLY, 0)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening control pipe: %w", err)
	}

	var out io.Writer = os.Stdout
	var rsp *os.File
	if rspFifo != "" {
		if err := fifo.Create(rspFifo); err != nil {
			_ = in.Close()
			return nil, nil, nil, fmt.Errorf("creating response pipe: %w", err)
		}
		rsp, err = os.OpenFile(rspFifo, os.O_WRONLY, 0)
		if err != nil {
			_ = in.Close()
			return nil, nil, nil, fmt.Errorf("opening response pipe: %w", err)
		}
		out = rsp
	}

	cleanup := func() {
		_ = in.Close()
		if rsp != nil {
			_ = rsp.Close()
		}
	}
	return in, out, cleanup, nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags).
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
