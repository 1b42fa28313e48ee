package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/institution-import/internal/core"
)

func newTemplateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "template",
		Short: "Print the CSV import template",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := io.WriteString(cmd.OutOrStdout(), core.GenerateTemplate())
			return err
		},
	}
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Dry-run a CSV file: report row errors and duplicates without writing",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			text, err := a.readInput(args[0])
			if err != nil {
				return err
			}
			svc, closeFn, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			report, err := svc.Validate(ctx, text)
			if err != nil {
				return classify(err)
			}
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if len(report.Errors) > 0 {
				return withCode(exitRowErrors, fmt.Errorf("%d row error(s) in %d row(s)", len(report.Errors), report.TotalRows))
			}
			return nil
		},
	}
}

type importFlags struct {
	validateOnly    bool
	skipDuplicates  bool
	mergeDuplicates bool
	owner           string
}

func newImportCmd(a *app) *cobra.Command {
	var flags importFlags

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a CSV file of institutions",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			opts, err := flags.options()
			if err != nil {
				return err
			}
			text, err := a.readInput(args[0])
			if err != nil {
				return err
			}
			svc, closeFn, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := svc.Import(ctx, text, opts)
			if err != nil {
				return classify(err)
			}
			if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Success {
				return withCode(exitRowErrors, fmt.Errorf("%d of %d row(s) failed", result.FailedImports, result.TotalRows))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&flags.validateOnly, "validate-only", false, "Run every stage except writes")
	cmd.Flags().BoolVar(&flags.skipDuplicates, "skip-duplicates", false, "Leave rows matching an existing institution untouched")
	cmd.Flags().BoolVar(&flags.mergeDuplicates, "merge-duplicates", false, "Merge rows into the institution they match")
	cmd.Flags().StringVar(&flags.owner, "owner", "", "Owner UUID stamped on created institutions")
	return cmd
}

func (f importFlags) options() (core.ImportOptions, error) {
	opts := core.ImportOptions{
		ValidateOnly:    f.validateOnly,
		SkipDuplicates:  f.skipDuplicates,
		MergeDuplicates: f.mergeDuplicates,
	}
	if raw := strings.TrimSpace(f.owner); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return opts, withCode(exitUsage, fmt.Errorf("invalid --owner: %w", err))
		}
		opts.AssignedOwnerID = uuid.NullUUID{UUID: id, Valid: true}
	}
	return opts, nil
}

// readInput reads path, or stdin for "-", up to the configured file size.
func (a *app) readInput(path string) (string, error) {
	var r io.Reader
	if path == "-" {
		r = a.stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return "", withCode(exitUsage, err)
		}
		defer f.Close()
		r = f
	}

	limit := a.cfg.Import.MaxFileSize
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", withCode(exitUsage, fmt.Errorf("read %s: %w", path, err))
	}
	if int64(len(data)) > limit {
		return "", withCode(exitUsage, fmt.Errorf("%s: file too large (limit %d bytes)", path, limit))
	}
	return string(data), nil
}

// classify assigns an exit code to a whole-run failure.
func classify(err error) error {
	switch {
	case errors.Is(err, core.ErrMalformedCSV):
		return withCode(exitRowErrors, fmt.Errorf("%s: %w", core.FormatUserError(err), err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return withCode(exitFailure, err)
	default:
		return withCode(exitDB, err)
	}
}
