// Package cmd implements the cloudbox command line.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/koustreak/cloudbox/internal/boxstore"
	"github.com/koustreak/cloudbox/internal/boxstore/file"
	"github.com/koustreak/cloudbox/internal/boxstore/mysql"
	"github.com/koustreak/cloudbox/internal/boxstore/postgres"
	"github.com/koustreak/cloudbox/internal/config"
	"github.com/koustreak/cloudbox/internal/filestore"
	"github.com/koustreak/cloudbox/internal/logger"
	"github.com/koustreak/cloudbox/internal/transport"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{"dev", "none", "unknown"}

var (
	cfgFile  string
	boxName  string
	logLevel string
)

// Hooks replaced by tests.
var (
	openBoxes   = defaultOpenBoxes
	newExecutor = func(cfg *config.Config, log *logger.Logger) transport.Executor {
		return transport.NewHTTPExecutor(cfg.HTTP.TransportOptions(log))
	}
)

var rootCmd = &cobra.Command{
	Use:   "cloudbox",
	Short: "Browse and move files across S3, Azure Blob, GCS, MinIO and SFTP",
	Long: `cloudbox talks to object stores through saved data boxes: named provider
profiles holding credentials and settings.

Examples:
  cloudbox --box reports test
  cloudbox --box reports ls invoices/2024/
  cloudbox --box reports put ./q1.csv invoices/2024/q1.csv
  cloudbox --box reports url invoices/2024/q1.csv --ttl 1h
  cloudbox serve`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./cloudbox.yaml or ~/.config/cloudbox/cloudbox.yaml)")
	rootCmd.PersistentFlags().StringVarP(&boxName, "box", "b", "", "Data box to operate on")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug|info|warn|error)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo records build metadata shown by the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// app is the state one command run works with.
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	boxes boxstore.Store
	env   filestore.Env
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger.SetTimeFormat(cfg.Logging.TimeFormat)
	log := logger.New(cfg.Logging.LoggerConfig())
	logger.SetGlobal(log)

	boxes, err := openBoxes(ctx, cfg)
	if err != nil {
		return nil, err
	}
	env := filestore.Env{Exec: newExecutor(cfg, log), Log: log}
	return &app{cfg: cfg, log: log, boxes: boxes, env: env.Defaults()}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.boxes.Close(ctx); err != nil {
		a.log.WarnWith("closing box store", err, nil)
	}
}

// withStore runs fn against the store of the --box data box.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, st filestore.Store) error) error {
	if boxName == "" {
		return fmt.Errorf("--box is required")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	st, box, err := boxstore.Open(ctx, a.boxes, boxName, a.env)
	if err != nil {
		return err
	}
	a.log.ForBox(box.Name).WithProvider(string(st.Provider())).Debug("opened data box")
	return fn(ctx, st)
}

func defaultOpenBoxes(ctx context.Context, cfg *config.Config) (boxstore.Store, error) {
	switch cfg.Boxes.Source {
	case config.SourceFile:
		st, err := file.Open(cfg.Boxes.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.SourcePostgres:
		st, err := postgres.New(dbConfig(cfg.Boxes))
		if err != nil {
			return nil, err
		}
		if err := st.Connect(ctx); err != nil {
			return nil, err
		}
		return st, nil
	case config.SourceMySQL:
		st, err := mysql.New(dbConfig(cfg.Boxes))
		if err != nil {
			return nil, err
		}
		if err := st.Connect(ctx); err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown boxes.source %q", cfg.Boxes.Source)
}

func dbConfig(b config.BoxesConfig) *boxstore.DBConfig {
	dc := boxstore.DefaultDBConfig(b.DSN)
	if b.Table != "" {
		dc.Table = b.Table
	}
	return dc
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
