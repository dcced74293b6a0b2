package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/raskyld/tvio"
	"github.com/spf13/cobra"
)

// PropertyValue is printed for every property value or change.
type PropertyValue struct {
	Property string `json:"property"`
	Value    any    `json:"value"`
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "get <descriptor-file> <property>",
		Short: "Fetch the current value of a property",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context(), timeout)
			defer cancel()

			env, in, err := openInput(ctx, cmd, rootOpts, args[0])
			if err != nil {
				return err
			}
			defer env.close()

			prop := args[1]
			if err := in.UpdateProperty(prop); err != nil {
				return err
			}
			err = waitFor(ctx, in, func() (bool, error) {
				return in.PropertyUpdateAvailable(prop)
			})
			if err != nil {
				return fmt.Errorf("waiting for %s: %w", prop, err)
			}
			value, err := in.PropertyUpdate(prop)
			if err != nil {
				return err
			}

			f := newFormatter(rootOpts, cmd.OutOrStdout())
			return f.Emit(PropertyValue{Property: prop, Value: payload(value)}, string(value))
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for a value")

	return cmd
}

// NewObserveCommand creates the observe command.
func NewObserveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListenOptions{}

	cmd := &cobra.Command{
		Use:   "observe <descriptor-file> <property>...",
		Short: "Print the changes of properties",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context(), opts.Timeout)
			defer cancel()

			env, in, err := openInput(ctx, cmd, rootOpts, args[0])
			if err != nil {
				return err
			}
			defer env.close()

			for _, prop := range args[1:] {
				if err := in.StartObservation(prop); err != nil {
					return err
				}
			}

			f := newFormatter(rootOpts, cmd.OutOrStdout())
			seen := 0
			err = waitFor(ctx, in, func() (bool, error) {
				for opts.Count == 0 || seen < opts.Count {
					change, err := in.Change()
					if errors.Is(err, tvio.ErrNoUpdate) {
						return false, nil
					} else if err != nil {
						return false, err
					}
					text := fmt.Sprintf("%s = %s", change.Property, change.Value)
					if err := f.Emit(PropertyValue{Property: change.Property, Value: payload(change.Value)}, text); err != nil {
						return false, err
					}
					seen++
					if err := in.ClearChange(); err != nil {
						return false, err
					}
				}
				return true, nil
			})
			return quietEnd(err)
		},
	}

	cmd.Flags().IntVar(&opts.Count, "count", 0, "exit after that many changes")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "exit after that long")

	return cmd
}
