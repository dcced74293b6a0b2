package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// TriggerOptions holds the flags of the trigger command.
type TriggerOptions struct {
	All     bool
	Timeout time.Duration
}

// NewTriggerCommand creates the trigger command.
func NewTriggerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TriggerOptions{}

	cmd := &cobra.Command{
		Use:   "trigger <descriptor-file> <function> [params]",
		Short: "Trigger a function; its result goes to the listeners",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params []byte
			if len(args) == 3 {
				params = []byte(args[2])
			}

			ctx, cancel := signalContext(cmd.Context(), opts.Timeout)
			defer cancel()

			env, in, err := openInput(ctx, cmd, rootOpts, args[0])
			if err != nil {
				return err
			}
			defer env.close()

			if err := waitFor(ctx, in, func() (bool, error) { return in.Connected(), nil }); err != nil {
				return fmt.Errorf("no output for %s: %w", args[1], err)
			}
			if opts.All {
				err = in.TriggerAll(args[1], params)
			} else {
				err = in.Trigger(args[1], params)
			}
			if err != nil {
				return err
			}

			f := newFormatter(rootOpts, cmd.OutOrStdout())
			return f.Emit(map[string]string{"function": args[1]}, "triggered "+args[1])
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "trigger every matching Output")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "how long to wait for an Output")

	return cmd
}
