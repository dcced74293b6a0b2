package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raskyld/tvio"
	"github.com/spf13/cobra"
)

// CallOptions holds the flags of the call command.
type CallOptions struct {
	All     bool
	Expect  int
	Timeout time.Duration
}

// CallResult is printed for every answer received.
type CallResult struct {
	ID     string `json:"id"`
	Result any    `json:"result"`
}

// NewCallCommand creates the call command.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{}

	cmd := &cobra.Command{
		Use:   "call <descriptor-file> <function> [params]",
		Short: "Call a function and print its result",
		Long: `Call a function on one matching Output and print its result.

With --all every matching Output is called, and answers are printed as
they arrive until --expect answers were received or --timeout elapses.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params []byte
			if len(args) == 3 {
				params = []byte(args[2])
			}
			return runCall(cmd, rootOpts, opts, args[0], args[1], params)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "call every matching Output")
	cmd.Flags().IntVar(&opts.Expect, "expect", 0, "with --all, stop after that many answers")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "how long to wait for answers")

	return cmd
}

func openInput(ctx context.Context, cmd *cobra.Command, rootOpts *RootOptions, path string) (*environment, *tvio.Input, error) {
	text, err := readDescriptor(path, cmd.InOrStdin())
	if err != nil {
		return nil, nil, err
	}
	env, err := openEnvironment(ctx, rootOpts, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	h, err := env.rt.NewInput(text)
	if err != nil {
		env.close()
		return nil, nil, err
	}
	in, err := env.rt.Input(h)
	if err != nil {
		env.close()
		return nil, nil, err
	}
	return env, in, nil
}

func runCall(cmd *cobra.Command, rootOpts *RootOptions, opts *CallOptions, path, fn string, params []byte) error {
	ctx, cancel := signalContext(cmd.Context(), opts.Timeout)
	defer cancel()

	env, in, err := openInput(ctx, cmd, rootOpts, path)
	if err != nil {
		return err
	}
	defer env.close()
	f := newFormatter(rootOpts, cmd.OutOrStdout())

	if !opts.All {
		id, err := in.Call(fn, params)
		if err != nil {
			return err
		}
		result, err := in.WaitResult(ctx, id)
		if err != nil {
			return fmt.Errorf("waiting for %s: %w", fn, err)
		}
		return f.Emit(CallResult{ID: id, Result: payload(result)}, string(result))
	}

	// Outputs missing when the call goes out would never hear of it.
	if err := waitFor(ctx, in, func() (bool, error) { return in.Connected(), nil }); err != nil {
		return fmt.Errorf("no output for %s: %w", fn, err)
	}
	id, err := in.CallAll(fn, params)
	if err != nil {
		return err
	}
	defer func() { _ = in.ClearRequest(id) }()

	received := 0
	err = waitFor(ctx, in, func() (bool, error) {
		for {
			result, err := in.NextResultParams(id)
			if errors.Is(err, tvio.ErrNoResultAvailable) {
				return opts.Expect > 0 && received >= opts.Expect, nil
			} else if err != nil {
				return false, err
			}
			if err := f.Emit(CallResult{ID: id, Result: payload(result)}, string(result)); err != nil {
				return false, err
			}
			received++
			if err := in.ClearNextResult(id); err != nil {
				return false, err
			}
		}
	})
	if errors.Is(err, context.DeadlineExceeded) && opts.Expect == 0 {
		return nil
	}
	return err
}
