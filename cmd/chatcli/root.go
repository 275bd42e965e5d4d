package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"adichat/backend/client/api"
	"adichat/backend/client/app"
	clientcfg "adichat/backend/client/config"
	"adichat/backend/client/reactions"
	"adichat/backend/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	version = "dev"

	flagConfig  string
	flagServer  string
	flagToken   string
	flagVerbose bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chatcli",
		Short:         "Terminal client for the adichat server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", clientcfg.DefaultPath(), "config file path")
	root.PersistentFlags().StringVar(&flagServer, "server", "", "server base URL (overrides config)")
	root.PersistentFlags().StringVar(&flagToken, "token", "", "session token (overrides config)")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newTokenCmd(),
		newChatsCmd(),
		newNewCmd(),
		newShowCmd(),
		newRenameCmd(),
		newDeleteCmd(),
		newSendCmd(),
		newReactCmd(true),
		newReactCmd(false),
		newCopyCmd(),
		newWatchCmd(),
		newInteractiveCmd(),
	)
	return root
}

func loadConfig() (*clientcfg.Config, error) {
	cfg, err := clientcfg.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagServer != "" {
		cfg.Server.URL = flagServer
	}
	if flagToken != "" {
		cfg.Auth.Token = flagToken
	}
	return cfg, nil
}

func newLogger(cfg *clientcfg.Config) *logger.Logger {
	level := cfg.Log.Level
	if flagVerbose {
		level = "debug"
	}
	return logger.New(logger.Config{Level: level, JSON: cfg.Log.JSON, Output: os.Stderr})
}

// cliSession bundles everything a command needs to talk to the server
type cliSession struct {
	cfg    *clientcfg.Config
	log    *logger.Logger
	client *api.Client
	store  *reactions.Store
	app    *app.App
}

func openSession(ctx context.Context) (*cliSession, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg)

	if err := os.MkdirAll(cfg.Reactions.Path, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create reactions directory: %w", err)
	}
	store, err := reactions.Open(cfg.Reactions.Path, log)
	if err != nil {
		return nil, err
	}

	client := api.New(api.Config{
		BaseURL:     cfg.Server.URL,
		Token:       cfg.Auth.Token,
		Timeout:     cfg.Timeout(),
		ReadRetries: cfg.Server.ReadRetries,
		Logger:      log,
	})
	a := app.New(client, store, app.Options{RevealInterval: cfg.RevealInterval(), Logger: log})

	s := &cliSession{cfg: cfg, log: log, client: client, store: store, app: a}
	if err := a.Bootstrap(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *cliSession) Close() {
	s.app.Close()
	if err := s.store.Close(); err != nil {
		s.log.Warn("closing reactions store", "error", err)
	}
}

// drainNotices prints the notices queued so far
func drainNotices(a *app.App, w io.Writer) {
	for {
		select {
		case n := <-a.Notices():
			fmt.Fprintf(w, "[%s] %s\n", n.Level, n.Text)
		default:
			return
		}
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func shortTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
