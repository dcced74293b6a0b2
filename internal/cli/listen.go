package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raskyld/tvio"
	"github.com/spf13/cobra"
)

// ListenOptions holds the flags shared by the listen and observe commands.
type ListenOptions struct {
	Count   int
	Timeout time.Duration
}

// Heard is printed for every listen result.
type Heard struct {
	ID            string `json:"id"`
	Function      string `json:"function"`
	RequestParams any    `json:"request_params"`
	Params        any    `json:"params"`
}

// NewListenCommand creates the listen command.
func NewListenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListenOptions{}

	cmd := &cobra.Command{
		Use:   "listen <descriptor-file> <function>...",
		Short: "Print the results of triggers and emits of functions",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context(), opts.Timeout)
			defer cancel()

			env, in, err := openInput(ctx, cmd, rootOpts, args[0])
			if err != nil {
				return err
			}
			defer env.close()

			for _, fn := range args[1:] {
				if err := in.StartListen(fn); err != nil {
					return err
				}
			}

			f := newFormatter(rootOpts, cmd.OutOrStdout())
			heard := 0
			err = waitFor(ctx, in, func() (bool, error) {
				for opts.Count == 0 || heard < opts.Count {
					res, err := in.ListenResult()
					if errors.Is(err, tvio.ErrNoResultAvailable) {
						return false, nil
					} else if err != nil {
						return false, err
					}
					text := fmt.Sprintf("%s(%s) -> %s", res.Function, res.RequestParams, res.Params)
					if err := f.Emit(Heard{
						ID:            res.ID,
						Function:      res.Function,
						RequestParams: payload(res.RequestParams),
						Params:        payload(res.Params),
					}, text); err != nil {
						return false, err
					}
					heard++
					if err := in.ClearListenResult(); err != nil {
						return false, err
					}
				}
				return true, nil
			})
			return quietEnd(err)
		},
	}

	cmd.Flags().IntVar(&opts.Count, "count", 0, "exit after that many results")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "exit after that long")

	return cmd
}

// quietEnd treats the end of a watch as success.
func quietEnd(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
