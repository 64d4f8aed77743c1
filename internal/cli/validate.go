package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newValidateCmd(opts *registryOptions) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse the endpoints file and report problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, w := range reg.warnings {
				_, _ = fmt.Fprintf(out, "warning: %s\n", w)
			}
			// template warnings were already reported while loading
			n := len(reg.warnings)
			for _, alias := range reg.q.Aliases() {
				m, _ := reg.q.Miner(alias)
				n += len(m.Warnings())
			}
			if strict && n > 0 {
				return fmt.Errorf("%s: %d warning(s)", reg.file, n)
			}
			_, err = fmt.Fprintf(out, "ok: %s (%d endpoints, base_url=%q)\n", reg.file, len(reg.q.Aliases()), reg.q.BaseURL())
			return err
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "treat warnings as errors")
	return cmd
}

func newAliasesCmd(opts *registryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "aliases",
		Short: "List endpoint aliases",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ALIAS\tMETHOD\tURI")
			for _, alias := range reg.q.Aliases() {
				m, _ := reg.q.Miner(alias)
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", alias, m.Method(), m.URI())
			}
			return tw.Flush()
		},
	}
}
