// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"

	"github.com/agentvault/a2a"
	"github.com/agentvault/a2a/auth"
	"github.com/agentvault/a2a/client"
	"github.com/agentvault/a2a/task"
)

// envPrefix prefixes every environment variable that overrides a flag.
const envPrefix = "A2ACTL"

var errNoAgent = errors.New("no agent given")

// app is the state shared by every subcommand of one invocation.
type app struct {
	v *viper.Viper

	logger  *slog.Logger
	client  *client.Client
	store   task.Store
	closers []func() error
	tracker *task.Tracker

	outMu sync.Mutex
}

func newRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:          "a2actl",
		Short:        "Talk to A2A agents",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd); err != nil {
				return errors.Join(err, a.teardown())
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (default ./a2actl.yaml, then $XDG_CONFIG_HOME/a2actl/a2actl.yaml)")
	pf.StringP("agent", "a", "", "agent base URL, or path to a JSON or YAML agent card")
	pf.String("log-level", "warn", "log level: debug, info, warn or error")
	pf.Duration("timeout", client.DefaultTimeout, "deadline of each unary request")
	pf.String("credentials", "", "YAML credentials file")
	pf.String("env-prefix", auth.DefaultEnvPrefix, "prefix of credential environment variables")
	pf.String("cache", "", "SQLite file caching task state (default in memory)")
	pf.Int("retries", 3, "attempts of idempotent requests")

	root.AddCommand(
		newCardCommand(a),
		newSendCommand(a),
		newGetCommand(a),
		newCancelCommand(a),
		newWatchCommand(a),
		newTasksCommand(a),
	)
	return root
}

// setup reads the configuration and builds the logger, client and task cache.
func (a *app) setup(cmd *cobra.Command) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if path := a.v.GetString("config"); path != "" {
		a.v.SetConfigFile(path)
	} else {
		a.v.SetConfigName("a2actl")
		a.v.SetConfigType("yaml")
		a.v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			a.v.AddConfigPath(filepath.Join(dir, "a2actl"))
		}
	}
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	zl, err := newZapLogger(a.v.GetString("log-level"))
	if err != nil {
		return err
	}
	a.logger = slog.New(zapslog.NewHandler(zl.Core()))
	a.closers = append(a.closers, func() error {
		// Sync fails on terminals and pipes on some platforms.
		_ = zl.Sync()
		return nil
	})

	resolver := auth.ChainResolver{&auth.EnvResolver{Prefix: a.v.GetString("env-prefix")}}
	if path := a.v.GetString("credentials"); path != "" {
		fr, err := auth.LoadFileResolver(path)
		if err != nil {
			return err
		}
		resolver = append(resolver, fr)
	}

	a.client, err = client.New(
		client.WithLogger(a.logger),
		client.WithResolver(resolver),
		client.WithTimeout(a.v.GetDuration("timeout")),
	)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.client.Close)

	if path := a.v.GetString("cache"); path != "" {
		db, err := task.OpenSQLite(cmd.Context(), path)
		if err != nil {
			return err
		}
		a.store = db
		a.closers = append(a.closers, db.Close)
	} else {
		a.store = task.NewMemoryStore()
	}
	a.tracker = task.NewTracker(a.store, task.WithLogger(a.logger))

	a.logger.Debug("a2actl configured",
		slog.String("config", a.v.ConfigFileUsed()),
		slog.String("agent", a.v.GetString("agent")),
	)
	return nil
}

// teardown releases what setup acquired, newest first.
func (a *app) teardown() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// run wraps a subcommand so that teardown always runs after it.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			err = errors.Join(err, a.teardown())
		}()
		return fn(cmd, args)
	}
}

func newZapLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func (a *app) retryPolicy() client.RetryPolicy {
	return client.RetryPolicy{MaxAttempts: a.v.GetInt("retries")}
}

// agent returns the card of the configured agent, fetched from its well-known path or read
// from a local file.
func (a *app) agent(ctx context.Context) (*a2a.AgentCard, error) {
	ref := a.v.GetString("agent")
	switch {
	case ref == "":
		return nil, fmt.Errorf("%w: set --agent or %s_AGENT", errNoAgent, envPrefix)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return client.Retry(ctx, a.retryPolicy(), func(ctx context.Context) (*a2a.AgentCard, error) {
			return a.client.FetchAgentCard(ctx, ref)
		})
	}
	return client.LoadAgentCard(ref)
}

func (a *app) printJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v, jsontext.WithIndent("  "))
	if err != nil {
		return err
	}
	a.outMu.Lock()
	defer a.outMu.Unlock()
	_, err = w.Write(append(data, '\n'))
	return err
}

func (a *app) printf(w io.Writer, format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(w, format, args...)
}
