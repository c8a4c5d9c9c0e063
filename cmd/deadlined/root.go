package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/deadline-tracker/internal/ai"
	"github.com/nhle/deadline-tracker/internal/credential"
	"github.com/nhle/deadline-tracker/internal/deadline"
	"github.com/nhle/deadline-tracker/internal/logging"
	"github.com/nhle/deadline-tracker/internal/metrics"
	"github.com/nhle/deadline-tracker/internal/model"
	"github.com/nhle/deadline-tracker/internal/notify"
	"github.com/nhle/deadline-tracker/internal/source/email"
	"github.com/nhle/deadline-tracker/internal/store"
	"github.com/nhle/deadline-tracker/internal/sync"
)

// rootOptions holds the global flags and what they load.
type rootOptions struct {
	configPath string
	envFile    string

	cfg    *model.AppConfig
	logger *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "deadlined",
		Short:         "Extract deadlines from email and send reminders before they are due",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", model.DefaultConfigPath(), "config file path")
	pf.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")

	cmd.AddCommand(
		newServeCommand(opts),
		newSyncCommand(opts),
		newScanCommand(opts),
		newCredsCommand(opts),
	)
	return cmd
}

// load reads the dotenv file, the config and builds the logger.
func (o *rootOptions) load() error {
	if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", o.envFile, err)
	}

	cfg, err := model.LoadConfig(o.configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}

	o.cfg = cfg
	o.logger = logger
	return nil
}

// app is the wired component graph shared by the subcommands.
type app struct {
	cfg      *model.AppConfig
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	creds    *credential.Store

	store     store.DocumentStore
	deadlines *deadline.Repository
	history   *notify.History
	generator *ai.Generator
	syncer    *sync.Syncer
	engine    *notify.Engine
}

func newApp(ctx context.Context, o *rootOptions) (*app, error) {
	cfg := o.cfg
	logger := o.logger

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	s, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Storage.Driver, err)
	}

	repo := deadline.NewRepository(s, logger, m, deadline.Options{})
	history := notify.NewHistory(s, cfg.Notify.HistoryLimit, logger)

	client := ai.NewClient(cfg.LLM)
	generator := ai.NewGenerator(client, time.Duration(cfg.LLM.TimeoutSec)*time.Second, logger, m)
	extractor := ai.NewExtractor(client, time.Duration(cfg.LLM.ExtractTimeoutSec)*time.Second, logger)

	engine := notify.NewEngine(repo, history, generator, logger, m, notify.Options{
		ScanInterval:   cfg.Notify.ScanInterval(),
		Cooldown:       cfg.Notify.Cooldown(),
		LookaheadHours: float64(cfg.Notify.LookaheadHours),
	})
	engine.AddHandler(notify.NewLogHandler(logger))
	if cfg.SMTP.Host != "" {
		engine.AddHandler(notify.NewMailHandler(cfg.SMTP))
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		registry:  reg,
		metrics:   m,
		creds:     credential.New(),
		store:     s,
		deadlines: repo,
		history:   history,
		generator: generator,
		syncer:    sync.NewSyncer(extractor, repo, cfg.Email.Limit, logger),
		engine:    engine,
	}, nil
}

// mailFetcher returns an IMAP client for the given credentials, falling
// back to the configured host.
func (a *app) mailFetcher(username, password, host string) sync.Fetcher {
	ec := a.cfg.Email
	if host != "" {
		ec.IMAPHost = host
	}
	ec.Username = username
	ec.Password = password
	return email.NewIMAPClientFromConfig(ec)
}

// configuredFetcher returns an IMAP client for the configured mailbox.
// The password comes from the config or the keyring.
func (a *app) configuredFetcher() (sync.Fetcher, error) {
	ec := a.cfg.Email
	ec.Password = a.creds.Resolve(ec.Password, credential.KeyIMAPPassword)
	if ec.Username == "" || ec.Password == "" {
		return nil, errors.New("email.username and an IMAP password are required")
	}
	return email.NewIMAPClientFromConfig(ec), nil
}

func (a *app) Close() error {
	return a.store.Close()
}
