package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raskyld/tvio"
	"github.com/raskyld/tvio/pkg/descriptor"
	"github.com/spf13/cobra"
)

// CheckResult describes a valid descriptor.
type CheckResult struct {
	File      string   `json:"file"`
	Interface string   `json:"interface"`
	Topics    []string `json:"topics"`
	// Matches lists the other checked files whose handles would connect
	// to this one.
	Matches []string `json:"matches,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <descriptor-file>...",
		Short: "Validate descriptors and print their bus topics",
		Long: `Validate descriptors and print their bus topics.

When several descriptors are given, each valid one also lists the others
it would connect to.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout())
			var errs []error
			var results []CheckResult
			var ifaces []*descriptor.Interface
			for _, path := range args {
				text, err := readDescriptor(path, cmd.InOrStdin())
				if err != nil {
					errs = append(errs, err)
					continue
				}
				if err := tvio.CheckDescriptor(text); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", path, err))
					continue
				}
				iface, _ := descriptor.Parse(text)
				results = append(results, CheckResult{File: path, Interface: iface.String(), Topics: iface.Topics()})
				ifaces = append(ifaces, iface)
			}

			for i := range results {
				for j := range results {
					if i != j && ifaces[i].Compatible(ifaces[j]) {
						results[i].Matches = append(results[i].Matches, results[j].File)
					}
				}
				if err := f.Emit(results[i], checkText(results[i])); err != nil {
					return err
				}
			}
			return errors.Join(errs...)
		},
	}
	return cmd
}

func checkText(res CheckResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "✓ %s\n", res.File)
	for _, line := range strings.Split(strings.TrimSpace(res.Interface), "\n") {
		fmt.Fprintf(&sb, "  %s\n", line)
	}
	sb.WriteString("  topics:")
	for _, topic := range res.Topics {
		fmt.Fprintf(&sb, "\n    %s", topic)
	}
	if len(res.Matches) > 0 {
		sb.WriteString("\n  connects to:")
		for _, match := range res.Matches {
			fmt.Fprintf(&sb, "\n    %s", match)
		}
	}
	return sb.String()
}
