package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/r9s-ai/quarry/internal/config"
	"github.com/r9s-ai/quarry/pkg/quarry"
	"github.com/r9s-ai/quarry/pkg/quarryconf"
)

const (
	defaultConfigPath    = "quarry.yaml"
	defaultEndpointsPath = "./endpoints.yaml"
)

// Execute runs quarry-admin with os.Args.
func Execute() error {
	return newRootCmd().Execute()
}

// registryOptions locate the endpoints file. Explicit flags win over the
// quarry section of the config file, which is optional.
type registryOptions struct {
	cfgPath   string
	endpoints string
	format    string
	baseURL   string
}

func newRootCmd() *cobra.Command {
	opts := &registryOptions{}
	root := &cobra.Command{
		Use:           "quarry-admin",
		Short:         "Inspect, render and send quarry endpoint templates",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&opts.cfgPath, "config", "c", defaultConfigPath, "config yaml path (optional)")
	pf.StringVarP(&opts.endpoints, "endpoints", "f", "", "endpoints file path (overrides quarry.file)")
	pf.StringVar(&opts.format, "format", "", "endpoints file format: native or openapi (overrides quarry.format)")
	pf.StringVar(&opts.baseURL, "base-url", "", "override base url")

	root.AddCommand(
		newVersionCmd(),
		newValidateCmd(opts),
		newAliasesCmd(opts),
		newRenderCmd(opts),
		newMineCmd(opts),
		newTUICmd(opts),
	)
	return root
}

func loadConfigIfExists(path string) (*config.Config, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, nil
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return config.Load(p)
}

type loadedRegistry struct {
	q        *quarry.Quarry
	file     string
	warnings []quarryconf.Warning
	tree     quarry.Tree
}

func (o *registryOptions) load(stderr io.Writer) (*loadedRegistry, error) {
	cfg, err := loadConfigIfExists(o.cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", o.cfgPath, err)
	}

	file, format, baseURL := defaultEndpointsPath, string(quarryconf.FormatNative), ""
	timeout := time.Duration(0)
	var baseHeaders map[string]string
	if cfg != nil {
		file, format, baseURL = cfg.Quarry.File, cfg.Quarry.Format, cfg.Quarry.BaseURL
		timeout = time.Duration(cfg.Quarry.TimeoutMs) * time.Millisecond
		baseHeaders = cfg.Quarry.BaseHeaders
	}
	if v := strings.TrimSpace(o.endpoints); v != "" {
		file = v
	}
	if v := strings.TrimSpace(o.format); v != "" {
		format = v
	}
	if v := strings.TrimSpace(o.baseURL); v != "" {
		baseURL = v
	}

	f, err := quarryconf.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	tree, warnings, err := quarryconf.LoadFile(file, f)
	if err != nil {
		return nil, err
	}
	if baseURL != "" {
		tree.BaseURL = baseURL
	}
	if tree.Defaults.Timeout <= 0 {
		tree.Defaults.Timeout = timeout
	}
	if len(baseHeaders) > 0 {
		h := make(map[string]string, len(tree.Defaults.Headers)+len(baseHeaders))
		for k, v := range tree.Defaults.Headers {
			h[k] = v
		}
		for k, v := range baseHeaders {
			h[k] = v
		}
		tree.Defaults.Headers = h
	}

	warnf := func(format string, args ...any) {
		_, _ = fmt.Fprintf(stderr, "warning: "+format+"\n", args...)
	}
	q, err := quarry.Load(tree, quarry.WithWarnf(warnf))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return &loadedRegistry{q: q, file: file, warnings: warnings, tree: tree}, nil
}
