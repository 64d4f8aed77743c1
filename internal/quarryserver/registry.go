package quarryserver

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/r9s-ai/quarry/internal/config"
	"github.com/r9s-ai/quarry/internal/logx"
	"github.com/r9s-ai/quarry/pkg/quarry"
	"github.com/r9s-ai/quarry/pkg/quarryconf"
)

// state holds the registry currently served. Reloads swap it whole.
type state struct {
	mu sync.RWMutex
	q  *quarry.Quarry
}

func (s *state) Quarry() *quarry.Quarry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q
}

func (s *state) SetQuarry(q *quarry.Quarry) {
	s.mu.Lock()
	s.q = q
	s.mu.Unlock()
}

type reloadResult struct {
	Warnings       []quarryconf.Warning
	ChangedAliases []string
}

// buildQuarry loads the endpoints file and applies the process config over it.
func buildQuarry(cfg *config.Config, transport quarry.Transport) (*quarry.Quarry, []quarryconf.Warning, error) {
	if cfg == nil {
		return nil, nil, errors.New("build registry: nil config")
	}
	format, err := quarryconf.ParseFormat(cfg.Quarry.Format)
	if err != nil {
		return nil, nil, err
	}
	tree, warnings, err := quarryconf.LoadFile(cfg.Quarry.File, format)
	if err != nil {
		return nil, nil, err
	}
	if v := strings.TrimSpace(cfg.Quarry.BaseURL); v != "" {
		tree.BaseURL = v
	}
	if tree.Defaults.Timeout <= 0 {
		tree.Defaults.Timeout = time.Duration(cfg.Quarry.TimeoutMs) * time.Millisecond
	}
	if len(cfg.Quarry.BaseHeaders) > 0 {
		h := make(map[string]string, len(tree.Defaults.Headers)+len(cfg.Quarry.BaseHeaders))
		for k, v := range tree.Defaults.Headers {
			h[k] = v
		}
		for k, v := range cfg.Quarry.BaseHeaders {
			h[k] = v
		}
		tree.Defaults.Headers = h
	}
	if strings.TrimSpace(tree.BaseURL) == "" {
		return nil, warnings, fmt.Errorf("endpoints file %q: no base url (set base_url in the file or quarry.base_url)", cfg.Quarry.File)
	}

	opts := []quarry.Option{quarry.WithWarnf(log.Printf)}
	if transport != nil {
		opts = append(opts, quarry.WithTransport(transport))
	}
	q, err := quarry.Load(tree, opts...)
	if err != nil {
		return nil, warnings, fmt.Errorf("endpoints file %q: %w", cfg.Quarry.File, err)
	}
	return q, warnings, nil
}

func reloadRegistry(cfg *config.Config, st *state, transport quarry.Transport) (reloadResult, error) {
	if cfg == nil || st == nil {
		return reloadResult{}, errors.New("reload: nil cfg/state")
	}
	next, warnings, err := buildQuarry(cfg, transport)
	if err != nil {
		return reloadResult{}, err
	}
	before := snapshotMinerFingerprints(st.Quarry())
	st.SetQuarry(next)
	return reloadResult{
		Warnings:       warnings,
		ChangedAliases: diffChangedAliases(before, snapshotMinerFingerprints(next)),
	}, nil
}

func logWarnings(file string, warnings []quarryconf.Warning, reloading bool) {
	if len(warnings) == 0 {
		return
	}
	phase := "load"
	if reloading {
		phase = "reload"
	}
	warn := logx.Warning(logx.ColorEnabled())
	for _, w := range warnings {
		log.Printf("[quarry] %s [endpoints/%s] file=%q %s", warn, phase, file, w.String())
	}
}

func aliasNamesForLog(names []string) string {
	if len(names) == 0 {
		return "<none>"
	}
	return strings.Join(names, ",")
}

func snapshotMinerFingerprints(q *quarry.Quarry) map[string]string {
	if q == nil {
		return map[string]string{}
	}
	aliases := q.Aliases()
	out := make(map[string]string, len(aliases))
	for _, alias := range aliases {
		m, ok := q.Miner(alias)
		if !ok {
			continue
		}
		out[alias] = minerFingerprint(m)
	}
	return out
}

func minerFingerprint(m *quarry.Miner) string {
	var b strings.Builder
	b.WriteString(m.Method().String())
	b.WriteByte(0)
	b.WriteString(m.URI())
	b.WriteByte(0)
	b.WriteString(m.Body())
	writeSorted(&b, m.Headers())
	d := m.Defaults()
	writeSorted(&b, d.Named)
	for _, v := range d.Positional {
		b.WriteByte(0)
		b.WriteString(v)
	}
	return b.String()
}

func writeSorted(b *strings.Builder, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(m[k])
	}
}

func diffChangedAliases(before map[string]string, after map[string]string) []string {
	changed := make([]string, 0)
	for name, prev := range before {
		next, ok := after[name]
		if !ok || next != prev {
			changed = append(changed, name)
		}
	}
	for name := range after {
		if _, ok := before[name]; !ok {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed
}
