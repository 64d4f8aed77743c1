package quarryconf

import (
	"fmt"
	"strings"
)

// Warning is a non-fatal diagnostic produced while reading a source.
type Warning struct {
	File     string
	Line     int
	Endpoint string
	Message  string
}

func (w Warning) String() string {
	file := strings.TrimSpace(w.File)
	if file == "" {
		file = "<unknown>"
	}
	msg := strings.TrimSpace(w.Message)
	if w.Endpoint != "" {
		msg = fmt.Sprintf("endpoint %q: %s", w.Endpoint, msg)
	}
	if w.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", file, w.Line, msg)
	}
	return fmt.Sprintf("%s: %s", file, msg)
}
