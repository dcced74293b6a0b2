package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ServeOptions holds the flags of the serve command.
type ServeOptions struct {
	Replies    []string
	Properties []string
	Count      int
}

// ServedRequest is printed for every request answered.
type ServedRequest struct {
	ID       string `json:"id"`
	Function string `json:"function"`
	Kind     string `json:"kind"`
	Params   any    `json:"params"`
	Reply    any    `json:"reply"`
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve <descriptor-file>",
		Short: "Run an Output answering every request",
		Long: `Run an Output for the descriptor until interrupted.

Requests are answered with the reply configured for their function with
--reply, or with their own parameters otherwise.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, rootOpts, opts, args[0])
		},
	}

	cmd.Flags().StringArrayVar(&opts.Replies, "reply", nil, "fixed reply of a function, as Function=payload")
	cmd.Flags().StringArrayVar(&opts.Properties, "set", nil, "initial value of a property, as Property=value")
	cmd.Flags().IntVar(&opts.Count, "count", 0, "exit after serving that many requests")

	return cmd
}

func splitAssignments(assignments []string) (map[string]string, error) {
	out := make(map[string]string, len(assignments))
	for _, a := range assignments {
		name, value, ok := strings.Cut(a, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("expected Name=value, got %q", a)
		}
		out[name] = value
	}
	return out, nil
}

func runServe(cmd *cobra.Command, rootOpts *RootOptions, opts *ServeOptions, path string) error {
	text, err := readDescriptor(path, cmd.InOrStdin())
	if err != nil {
		return err
	}
	replies, err := splitAssignments(opts.Replies)
	if err != nil {
		return err
	}
	props, err := splitAssignments(opts.Properties)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context(), 0)
	defer cancel()

	env, err := openEnvironment(ctx, rootOpts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer env.close()

	h, err := env.rt.NewOutput(text)
	if err != nil {
		return err
	}
	out, err := env.rt.Output(h)
	if err != nil {
		return err
	}
	for name, value := range props {
		if err := out.SetProperty(name, []byte(value)); err != nil {
			return err
		}
	}
	env.logger.Info("serving", "uuid", out.UUID())

	f := newFormatter(rootOpts, cmd.OutOrStdout())
	for served := 0; opts.Count == 0 || served < opts.Count; served++ {
		id, err := out.WaitRequest(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		} else if err != nil {
			return err
		}

		fn, err := out.RequestFunction(id)
		if err != nil {
			return err
		}
		params, err := out.RequestParams(id)
		if err != nil {
			return err
		}
		kind, err := out.RequestKind(id)
		if err != nil {
			return err
		}

		reply := params
		if fixed, ok := replies[fn]; ok {
			reply = []byte(fixed)
		}
		if err := out.Reply(id, reply); err != nil {
			return err
		}

		res := ServedRequest{
			ID:       id,
			Function: fn,
			Kind:     kind.String(),
			Params:   payload(params),
			Reply:    payload(reply),
		}
		if err := f.Emit(res, fmt.Sprintf("%s %s(%s) -> %s", kind, fn, params, reply)); err != nil {
			return err
		}
	}
	return nil
}
