package logx

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
)

const timeLayout = "2006/01/02 - 15:04:05"

const (
	ansiReset  = "\033[0m"
	ansiGreen  = "\033[97;42m"
	ansiWhite  = "\033[90;47m"
	ansiYellow = "\033[90;43m"
	ansiRed    = "\033[97;41m"
	ansiCyan   = "\033[97;46m"
)

// ColorEnabled reports whether stdout is a terminal and NO_COLOR is unset.
func ColorEnabled() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// ColorizeStatusWith renders status, wrapped in ANSI colors when color is set.
// A zero status means no upstream call happened and renders as "-".
func ColorizeStatusWith(status int, color bool) string {
	s := fmt.Sprintf("%3d", status)
	if status == 0 {
		s = "  -"
	}
	if !color {
		return s
	}
	var c string
	switch {
	case status == 0:
		c = ansiCyan
	case status >= 200 && status < 300:
		c = ansiGreen
	case status >= 300 && status < 400:
		c = ansiWhite
	case status >= 400 && status < 500:
		c = ansiYellow
	default:
		c = ansiRed
	}
	return c + " " + s + " " + ansiReset
}

// Warning renders a highlighted WARNING tag.
func Warning(color bool) string {
	if !color {
		return "WARNING"
	}
	return ansiYellow + " WARNING " + ansiReset
}

// FormatRequestLineWithColor is the default access line used when no
// access_log_format is configured.
func FormatRequestLineWithColor(
	ts time.Time,
	status int,
	latency time.Duration,
	clientIP string,
	method string,
	path string,
	fields map[string]any,
	color bool,
) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s | %s | %13v | %15s | %-7s %s",
		ts.Format(timeLayout),
		ColorizeStatusWith(status, color),
		latency,
		clientIP,
		method,
		path,
	)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := strings.TrimSpace(fieldString(fields[k]))
		if v == "" {
			continue
		}
		if strings.ContainsAny(v, " \t\"") {
			v = fmt.Sprintf("%q", v)
		}
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(v)
	}
	return b.String()
}
