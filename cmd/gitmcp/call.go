package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gomantics/gitmcp/domains/executor"
	"github.com/gomantics/gitmcp/domains/toolerr"
	"github.com/gomantics/gitmcp/domains/tools"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newCallCommand() *cobra.Command {
	var cwd string
	var invocationID string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "call <tool> [arguments-json]",
		Short: "Invoke one tool and print its result or events",
		Long: `Invoke one tool locally. Unary tools print one JSON result; streaming
and progress tools print one NDJSON event per line. Arguments are read
from stdin when given as "-".`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := "{}"
			if len(args) == 2 {
				raw = args[1]
			}
			if raw == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read arguments: %w", err)
				}
				raw = string(data)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runCall(ctx, cmd.OutOrStdout(), tools.Call{
				Name:         args[0],
				Arguments:    json.RawMessage(raw),
				InvocationID: invocationID,
				WorkDir:      cwd,
				Timeout:      timeout,
			})
		},
	}

	cmd.Flags().StringVar(&cwd, "cwd", "", "Directory relative paths resolve against")
	cmd.Flags().StringVar(&invocationID, "id", "", "Invocation id (generated when empty)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Invocation timeout (configured default when zero)")
	return cmd
}

func runCall(ctx context.Context, w io.Writer, call tools.Call) error {
	var d *tools.Dispatcher
	app := fx.New(
		components(),
		fx.Populate(&d),
		fx.NopLogger,
	)
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	enc := json.NewEncoder(w)

	out, err := d.Dispatch(ctx, call)
	if err != nil {
		return printError(enc, err)
	}

	if out.Stream == nil {
		return enc.Encode(map[string]any{
			"invocation_id": out.InvocationID,
			"tool":          out.Tool,
			"result":        out.Result,
		})
	}

	var failed *toolerr.Error
	for ev, ok := out.Stream.Next(); ok; ev, ok = out.Stream.Next() {
		if err := enc.Encode(ev); err != nil {
			out.Stream.Cancel()
			return err
		}
		if ev.Type == executor.EventError {
			failed = ev.Err
		}
	}
	if failed != nil {
		return failed
	}
	return nil
}

func printError(enc *json.Encoder, err error) error {
	var te *toolerr.Error
	if !errors.As(err, &te) {
		return err
	}
	if encErr := enc.Encode(map[string]any{"error": te}); encErr != nil {
		return encErr
	}
	return te
}
