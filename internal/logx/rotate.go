package logx

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const archiveTimeLayout = "20060102-150405.000"

type RotateOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
	// Now is replaced in tests.
	Now func() time.Time
}

// RotateWriter appends to a file and archives it when it would outgrow
// MaxSizeMB or when the local day changes. At most MaxBackups archives are kept.
type RotateWriter struct {
	opts    RotateOptions
	maxSize int64

	mu     sync.Mutex
	f      *os.File
	size   int64
	day    string
	closed bool
}

func NewRotateWriter(opts RotateOptions) (*RotateWriter, error) {
	opts.Path = strings.TrimSpace(opts.Path)
	switch {
	case opts.Path == "":
		return nil, errors.New("rotate: path is empty")
	case opts.MaxSizeMB <= 0:
		return nil, errors.New("rotate: max_size_mb must be > 0")
	case opts.MaxBackups <= 0:
		return nil, errors.New("rotate: max_backups must be > 0")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}
	w := &RotateWriter{opts: opts, maxSize: int64(opts.MaxSizeMB) << 20}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotateWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, os.ErrClosed
	}
	now := w.opts.Now()
	if w.size == 0 {
		w.day = dayOf(now)
	} else if w.size+int64(len(p)) > w.maxSize || dayOf(now) != w.day {
		if err := w.rotate(now); err != nil {
			return 0, err
		}
	}
	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotateWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.f.Close()
}

func (w *RotateWriter) open() error {
	// #nosec G304 -- path comes from trusted config.
	f, err := os.OpenFile(w.opts.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.size = st.Size()
	w.day = dayOf(w.opts.Now())
	return nil
}

func (w *RotateWriter) rotate(now time.Time) error {
	if err := w.f.Close(); err != nil {
		return err
	}
	archive := w.opts.Path + "." + now.Format(archiveTimeLayout)
	renameErr := os.Rename(w.opts.Path, archive)
	if err := w.open(); err != nil {
		return err
	}
	if renameErr != nil {
		return fmt.Errorf("rotate: %w", renameErr)
	}
	if w.opts.Compress {
		if err := gzipFile(archive); err != nil {
			return fmt.Errorf("rotate: compress %s: %w", archive, err)
		}
	}
	w.prune()
	return nil
}

// prune removes the oldest archives beyond MaxBackups.
func (w *RotateWriter) prune() {
	archives := w.archives()
	if len(archives) <= w.opts.MaxBackups {
		return
	}
	for _, p := range archives[:len(archives)-w.opts.MaxBackups] {
		_ = os.Remove(p)
	}
}

// archives returns archive paths sorted oldest first.
func (w *RotateWriter) archives() []string {
	dir, base := filepath.Split(w.opts.Path)
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	type archive struct {
		path string
		when time.Time
	}
	var out []archive
	for _, e := range entries {
		ts, ok := strings.CutPrefix(e.Name(), base+".")
		if e.IsDir() || !ok {
			continue
		}
		when, err := time.ParseInLocation(archiveTimeLayout, strings.TrimSuffix(ts, ".gz"), time.Local)
		if err != nil {
			continue
		}
		out = append(out, archive{path: filepath.Join(dir, e.Name()), when: when})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].when.Before(out[j].when) })
	paths := make([]string, len(out))
	for i, a := range out {
		paths[i] = a.path
	}
	return paths
}

func gzipFile(path string) (err error) {
	// #nosec G304 -- archive path is derived from the configured log path.
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	tmp := path + ".gz.tmp"
	dst, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()
	zw := gzip.NewWriter(dst)
	if _, err = io.Copy(zw, src); err != nil {
		_ = zw.Close()
		_ = dst.Close()
		return err
	}
	if err = zw.Close(); err != nil {
		_ = dst.Close()
		return err
	}
	if err = dst.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp, path+".gz"); err != nil {
		return err
	}
	return os.Remove(path)
}

func dayOf(t time.Time) string {
	return t.In(time.Local).Format("20060102")
}
