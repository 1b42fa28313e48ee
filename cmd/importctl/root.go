package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/institution-import/internal/config"
	"github.com/JonMunkholm/institution-import/internal/core"
	"github.com/JonMunkholm/institution-import/internal/database"
	"github.com/JonMunkholm/institution-import/internal/logging"
	"github.com/JonMunkholm/institution-import/internal/memstore"
	"github.com/JonMunkholm/institution-import/internal/reference"
)

// app carries state shared by the subcommands.
type app struct {
	cfg    *config.Config
	stdin  io.Reader
	memory bool
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "importctl",
		Short:         "Validate and import institution CSV files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return withCode(exitUsage, err)
			}
			logging.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
			a.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().BoolVar(&a.memory, "memory", false, "Use an empty in-memory store instead of Postgres")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return withCode(exitUsage, err)
	})

	cmd.AddCommand(newTemplateCmd())
	cmd.AddCommand(newValidateCmd(a))
	cmd.AddCommand(newImportCmd(a))
	return cmd
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{stdin: stdin}
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "importctl:", err)
		return exitCode(err)
	}
	return exitOK
}

// exactArgs is cobra.ExactArgs with the usage exit code.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return withCode(exitUsage, cobra.ExactArgs(n)(cmd, args))
	}
}

// openService builds a Service over the in-memory store or Postgres. The
// returned close func releases the pool.
func (a *app) openService(ctx context.Context) (*core.Service, func(), error) {
	svcCfg := core.ServiceConfig{
		MaxConcurrentImports: a.cfg.Import.MaxConcurrent,
		MaxWaitTime:          a.cfg.Import.MaxWaitTime,
		ImportTimeout:        a.cfg.Import.Timeout,
		CandidateLimit:       a.cfg.Import.CandidateLimit,
		ValidationWorkers:    a.cfg.Import.ValidationWorkers,
	}
	if a.cfg.Reference.Enabled {
		client, err := reference.New(a.cfg.Reference)
		if err != nil {
			return nil, nil, withCode(exitUsage, err)
		}
		svcCfg.Reference = client
	}

	if a.memory {
		return core.NewService(memstore.New(), svcCfg), func() {}, nil
	}

	if err := a.cfg.RequireDatabase(); err != nil {
		return nil, nil, withCode(exitUsage, fmt.Errorf("%w (or pass --memory)", err))
	}
	pool, err := database.Connect(ctx, a.cfg.Database)
	if err != nil {
		return nil, nil, withCode(exitDB, err)
	}
	if a.cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, withCode(exitDB, err)
		}
	}
	return core.NewService(database.New(pool), svcCfg), pool.Close, nil
}
