package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arunshreyas/Marketa/internal/api"
	"github.com/arunshreyas/Marketa/internal/config"
	"github.com/arunshreyas/Marketa/internal/feed"
	"github.com/arunshreyas/Marketa/internal/logging"
	"github.com/arunshreyas/Marketa/internal/session"
	"github.com/arunshreyas/Marketa/internal/store"
	"github.com/arunshreyas/Marketa/internal/validate"
)

// app holds the flags and the services commands share. Services are opened on
// first use so commands like devserver never touch the local database.
type app struct {
	verbose bool
	apiURL  string

	cfg    *config.Config
	logger *zap.Logger

	store     *store.SQLiteStore
	sessions  *session.Manager
	client    *api.Client
	validator *validate.Validator
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "marketa",
		Short: "Marketa - plan marketing campaigns with an AI assistant",
		Long: `Marketa is the terminal client of the Marketa campaign assistant.

Run without arguments to open the full-screen interface, or use the
subcommands to manage your account, brand and campaigns and to chat with
the assistant about a campaign.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
		RunE: a.runTUI,
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().StringVar(&a.apiURL, "api-url", "", "Backend URL (overrides MARKETA_API_URL)")

	root.AddCommand(
		a.signupCmd(),
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.profileCmd(),
		a.brandCmd(),
		a.campaignsCmd(),
		a.chatCmd(),
		a.askCmd(),
		a.assistantCmd(),
		a.devserverCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.apiURL != "" {
		cfg.APIURL = a.apiURL
	}
	a.cfg = cfg

	// The full-screen interface owns the terminal, so it logs to a file.
	logFile := cfg.LogFile
	if cmd.Root() == cmd && logFile == "" {
		logFile = filepath.Join(config.Dir(), "marketa.log")
	}
	a.logger, err = logging.New(logging.Options{Level: cfg.LogLevel, File: logFile, Verbose: a.verbose})
	return err
}

// services opens the local store, restores the session and builds the API
// client.
func (a *app) services(ctx context.Context) error {
	if a.client != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(a.cfg.DBPath), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewSQLiteStore(a.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}
	sessions := session.NewManager(st, a.logger)
	if err := sessions.Load(ctx); err != nil {
		st.Close()
		return err
	}
	validator, err := validate.New(ctx)
	if err != nil {
		st.Close()
		return err
	}

	a.store = st
	a.sessions = sessions
	a.validator = validator
	a.client = api.NewClient(a.cfg.APIURL, sessions,
		api.WithTimeout(a.cfg.HTTPTimeout),
		api.WithLogger(a.logger))
	return nil
}

func (a *app) feedOptions() feed.Options {
	return feed.Options{
		PollInterval:   a.cfg.PollInterval,
		MaxAttempts:    a.cfg.PollMaxAttempts,
		ReconnectDelay: a.cfg.ReconnectDelay,
		DisablePush:    a.cfg.DisablePush,
		Logger:         a.logger,
	}
}

// requireUser returns the signed-in user id.
func (a *app) requireUser() (string, error) {
	id := a.sessions.UserID()
	if id == "" {
		return "", session.ErrNotSignedIn
	}
	return id, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close store", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
