package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/OCAP2/mocap/internal/config"
	"github.com/OCAP2/mocap/internal/logging"
	mocapotel "github.com/OCAP2/mocap/internal/otel"
	"github.com/OCAP2/mocap/internal/session"
	"github.com/OCAP2/mocap/internal/storage"
)

const appName = "mocap"

// app carries the process-wide state shared by all commands.
type app struct {
	configDir string
	logLevel  string
	stdout    io.Writer

	logs    *logging.SlogManager
	log     *slog.Logger
	dbLog   zerolog.Logger
	session *session.Context
	otel    *mocapotel.Provider
	closers []io.Closer
	store   storage.Backend
	started time.Time
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Record, replay and manage synchronized motion capture takes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.Version = fmt.Sprintf("%s (built %s)", Version, BuildDate)
	root.PersistentFlags().StringVar(&a.configDir, "config", ".", "directory containing "+config.FileName)
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newListCmd(a),
		newInfoCmd(a),
		newDeleteCmd(a),
		newUsageCmd(a),
		newExportCmd(a),
		newUploadCmd(a),
		newServeCmd(a),
		newDemoCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	a.started = time.Now()
	if a.stdout == nil {
		a.stdout = cmd.OutOrStdout()
	}

	if err := config.Load(a.configDir); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		// defaults are complete enough to run without a file
	}
	level := config.GetString("logLevel")
	if a.logLevel != "" {
		level = a.logLevel
	}

	a.session = session.NewContext()
	opts := logging.Options{Level: level, Context: a.session.LogAttrs}

	logsDir := config.GetString("logsDir")
	if logsDir != "" {
		if err := os.MkdirAll(logsDir, 0o755); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}
		f, err := os.OpenFile(logging.LogFilePath(logsDir, appName, a.started), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		a.closers = append(a.closers, f)
		opts.File = f
	}

	if gc := config.GetGraylogConfig(); gc.Enabled {
		w, err := logging.NewGraylogWriter(gc.Address, appName)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, w)
		opts.Graylog = w
	}

	oc := config.GetOTelConfig()
	otelCfg := mocapotel.Config{
		Enabled:      oc.Enabled,
		ServiceName:  oc.ServiceName,
		BatchTimeout: oc.BatchTimeout,
		Endpoint:     oc.Endpoint,
		Insecure:     oc.Insecure,
	}
	if oc.Enabled && logsDir != "" {
		f, err := os.OpenFile(logging.LogFilePath(logsDir, appName+".otel", a.started), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open otel log file: %w", err)
		}
		a.closers = append(a.closers, f)
		otelCfg.LogWriter = f
	}
	provider, err := mocapotel.New(otelCfg)
	if err != nil {
		return err
	}
	a.otel = provider
	opts.Provider = provider.LoggerProvider()

	a.logs = logging.NewSlogManager()
	a.logs.Setup(opts)
	a.log = a.logs.Logger()

	zl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		zl = zerolog.InfoLevel
	}
	var dbOut io.Writer = os.Stderr
	if opts.File != nil {
		dbOut = opts.File
	}
	a.dbLog = zerolog.New(dbOut).Level(zl).With().Timestamp().Str("app", appName).Logger()
	return nil
}

// openStorage creates and initializes the configured backend once.
func (a *app) openStorage() (storage.Backend, error) {
	if a.store != nil {
		return a.store, nil
	}
	b, err := createStorageBackend(config.GetStorageConfig(), a.storageDeps())
	if err != nil {
		return nil, err
	}
	if err := b.Init(); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	a.store = b
	return b, nil
}

func (a *app) shutdown() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	if a.otel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.otel.Shutdown(ctx))
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}
