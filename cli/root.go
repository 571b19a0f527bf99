// Package cli implements the davi-transit command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nedpals/davi-transit/buildinfo"
	"github.com/nedpals/davi-transit/config"
	"github.com/nedpals/davi-transit/keys"
	"github.com/nedpals/davi-transit/logging"
	"github.com/nedpals/davi-transit/nfc"
	"github.com/nedpals/davi-transit/scan"
	"github.com/nedpals/davi-transit/store"
	"github.com/nedpals/davi-transit/transit/all"
)

// Deps are the outside resources commands reach for. Tests replace them.
type Deps struct {
	NewManager func(backend string, logger *zap.Logger) (nfc.Manager, error)
}

var errNoDatabase = errors.New("no scan archive configured (set database in the config file or pass --db)")

type app struct {
	deps Deps

	configPath string
	device     string
	backend    string
	keysFile   string
	database   string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
}

// Execute runs the root command against the process arguments. Interrupts
// cancel the running command.
func Execute(deps Deps) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd(deps).ExecuteContext(ctx)
}

func NewRootCmd(deps Deps) *cobra.Command {
	a := &app{deps: deps}
	root := &cobra.Command{
		Use:               buildinfo.Name,
		Short:             buildinfo.Description,
		Version:           buildinfo.FullVersion(),
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/"+buildinfo.DirName+"/"+config.FileName+")")
	flags.StringVar(&a.device, "device", "", "reader connection string (default: first reader found)")
	flags.StringVar(&a.backend, "backend", "", "NFC back end: auto, pcsc or libnfc")
	flags.StringVar(&a.keysFile, "keys", "", "MIFARE Classic key file")
	flags.StringVar(&a.database, "db", "", "SQLite scan archive")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		a.newScanCmd(),
		a.newWatchCmd(),
		a.newDumpCmd(),
		a.newParseCmd(),
		a.newDevicesCmd(),
		a.newHistoryCmd(),
		a.newKeysCmd(),
		newVersionCmd(),
	)
	return root
}

// setup loads the config, lays the flags over it and builds the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	override := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	override("device", &cfg.Device, a.device)
	override("backend", &cfg.Backend, a.backend)
	override("keys", &cfg.KeysFile, a.keysFile)
	override("db", &cfg.Database, a.database)
	override("log-level", &cfg.Log.Level, a.logLevel)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) manager() (nfc.Manager, error) {
	m, err := a.deps.NewManager(a.cfg.Backend, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init NFC back end: %w", err)
	}
	return m, nil
}

// keyStore returns nil when no key file is configured.
func (a *app) keyStore() (keys.Store, error) {
	if a.cfg.KeysFile == "" {
		return nil, nil
	}
	s, err := keys.LoadFile(a.cfg.KeysFile)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Loaded key file", zap.String("path", a.cfg.KeysFile), zap.Int("cards", s.Len()))
	return s, nil
}

func (a *app) openArchive() (*store.SQLite, error) {
	if a.cfg.Database == "" {
		return nil, errNoDatabase
	}
	return store.Open(a.cfg.Database)
}

// scanner builds a Scanner. archive may be nil.
func (a *app) scanner(archive *store.SQLite) (*scan.Scanner, error) {
	ks, err := a.keyStore()
	if err != nil {
		return nil, err
	}
	dict, err := a.cfg.DictionaryKeyBytes()
	if err != nil {
		return nil, err
	}

	opts := scan.Options{
		Keys:           ks,
		DictionaryKeys: dict,
		Registry:       all.Registry(),
		Logger:         a.logger,
		Timeout:        a.cfg.ScanTimeout,
		PollInterval:   a.cfg.PollInterval,
	}
	if archive != nil {
		opts.Archive = archive
	}
	return scan.New(opts), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Args:  cobra.NoArgs,
		// Needs no config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.BuildInfo())
		},
	}
}
