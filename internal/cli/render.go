package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/r9s-ai/quarry/pkg/quarry"
)

type bindOptions struct {
	set  []string
	args []string
	json bool
}

func (b *bindOptions) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringArrayVarP(&b.set, "set", "s", nil, "named placeholder binding key=value (repeatable)")
	fs.StringArrayVarP(&b.args, "arg", "a", nil, "positional placeholder value, ${1} first (repeatable)")
	fs.BoolVar(&b.json, "json", false, "print JSON instead of text")
}

func (b *bindOptions) placeholders() (quarry.Placeholders, error) {
	p := quarry.Placeholders{Positional: b.args}
	for _, kv := range b.set {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return quarry.Placeholders{}, fmt.Errorf("invalid --set %q, want key=value", kv)
		}
		if p.Named == nil {
			p.Named = map[string]string{}
		}
		p.Named[k] = v
	}
	return p, nil
}

func newRenderCmd(opts *registryOptions) *cobra.Command {
	bind := &bindOptions{}
	cmd := &cobra.Command{
		Use:   "render <alias>",
		Short: "Print the request an alias renders to without sending it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := bind.placeholders()
			if err != nil {
				return err
			}
			reg, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			req, ok := reg.q.Render(args[0], p)
			if !ok {
				return fmt.Errorf("unknown alias %q", args[0])
			}
			if bind.json {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"alias":   args[0],
					"method":  req.Method.String(),
					"url":     req.URI,
					"headers": req.Headers,
					"body":    req.Body,
				})
			}
			return writeRequest(cmd.OutOrStdout(), req)
		},
	}
	bind.register(cmd)
	return cmd
}

func newMineCmd(opts *registryOptions) *cobra.Command {
	bind := &bindOptions{}
	cmd := &cobra.Command{
		Use:   "mine <alias>",
		Short: "Render an alias and send it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := bind.placeholders()
			if err != nil {
				return err
			}
			reg, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if _, ok := reg.q.Miner(args[0]); !ok {
				return fmt.Errorf("unknown alias %q", args[0])
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			resp, err := reg.q.Mine(ctx, args[0], p)
			if err != nil {
				return err
			}
			if resp.Err != nil {
				return fmt.Errorf("mine %s: %w", args[0], resp.Err)
			}
			if bind.json {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"alias":   args[0],
					"status":  resp.Status,
					"headers": resp.Headers,
					"body":    resp.Body,
				})
			}
			return writeResponse(cmd.OutOrStdout(), resp)
		},
	}
	bind.register(cmd)
	return cmd
}

func writeRequest(w io.Writer, req quarry.Request) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", req.Method, req.URI)
	writeHeaders(&b, req.Headers)
	if req.Body != "" {
		b.WriteString("\n")
		b.WriteString(req.Body)
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeResponse(w io.Writer, resp quarry.Response) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%d\n", resp.Status)
	writeHeaders(&b, resp.Headers)
	if resp.Body != "" {
		b.WriteString("\n")
		b.WriteString(resp.Body)
		if !strings.HasSuffix(resp.Body, "\n") {
			b.WriteString("\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeHeaders(b *strings.Builder, h map[string]string) {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s: %s\n", k, h[k])
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
