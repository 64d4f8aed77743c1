package logx

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Access log field names filled by request handlers.
const (
	FieldRequestID      = "request_id"
	FieldAlias          = "alias"
	FieldRoute          = "route"
	FieldUpstreamURL    = "upstream_url"
	FieldUpstreamStatus = "upstream_status"
	FieldUpstreamMs     = "upstream_ms"
	FieldError          = "error"
)

var accessLogFormatPresets = map[string]string{
	"quarry_combined": "$time_local | $status | $latency | $client_ip | $method $path | request_id=$request_id route=$route alias=$alias upstream_status=$upstream_status upstream_ms=$upstream_ms upstream_url=$upstream_url error=$error",
	"quarry_minimal":  "$time_local | $status | $latency | $method $path | alias=$alias upstream_status=$upstream_status",
}

// builtin vars are computed from the request itself, the rest come from fields.
var builtinAccessLogVars = []string{"time_local", "status", "latency", "latency_ms", "client_ip", "method", "path"}

var fieldAccessLogVars = []string{
	FieldRequestID,
	FieldAlias,
	FieldRoute,
	FieldUpstreamURL,
	FieldUpstreamStatus,
	FieldUpstreamMs,
	FieldError,
}

var allowedAccessLogVars = func() map[string]struct{} {
	m := make(map[string]struct{}, len(builtinAccessLogVars)+len(fieldAccessLogVars))
	for _, v := range builtinAccessLogVars {
		m[v] = struct{}{}
	}
	for _, v := range fieldAccessLogVars {
		m[v] = struct{}{}
	}
	return m
}()

type formatPart struct {
	literal string
	varName string
}

// AccessLogFormatter renders access log lines from a compiled $var template.
type AccessLogFormatter struct {
	parts []formatPart
}

// ResolveAccessLogFormat returns format when set, otherwise the named preset.
func ResolveAccessLogFormat(format string, preset string) (string, error) {
	if strings.TrimSpace(format) != "" {
		return format, nil
	}
	p := strings.ToLower(strings.TrimSpace(preset))
	if p == "" {
		return "", nil
	}
	out, ok := accessLogFormatPresets[p]
	if !ok {
		return "", fmt.Errorf("invalid access_log_format_preset: %q", preset)
	}
	return out, nil
}

// CompileAccessLogFormat parses a template such as "$method $path alias=$alias".
// "$$" is a literal dollar. A blank template compiles to a nil formatter.
func CompileAccessLogFormat(format string) (*AccessLogFormatter, error) {
	if strings.TrimSpace(format) == "" {
		return nil, nil
	}
	var parts []formatPart
	rest := format
	for rest != "" {
		i := strings.IndexByte(rest, '$')
		if i < 0 {
			parts = appendLiteral(parts, rest)
			break
		}
		parts = appendLiteral(parts, rest[:i])
		rest = rest[i+1:]
		if strings.HasPrefix(rest, "$") {
			parts = appendLiteral(parts, "$")
			rest = rest[1:]
			continue
		}
		n := varNameLen(rest)
		if n == 0 {
			return nil, fmt.Errorf("invalid access_log_format: missing variable name after '$' at pos %d", len(format)-len(rest)-1)
		}
		name := rest[:n]
		if _, ok := allowedAccessLogVars[name]; !ok {
			return nil, fmt.Errorf("invalid access_log_format: unknown variable $%s", name)
		}
		parts = append(parts, formatPart{varName: name})
		rest = rest[n:]
	}
	return &AccessLogFormatter{parts: parts}, nil
}

func appendLiteral(parts []formatPart, s string) []formatPart {
	if s == "" {
		return parts
	}
	if n := len(parts); n > 0 && parts[n-1].varName == "" {
		parts[n-1].literal += s
		return parts
	}
	return append(parts, formatPart{literal: s})
}

func varNameLen(s string) int {
	n := 0
	for n < len(s) {
		c := s[n]
		if c != '_' && (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			break
		}
		n++
	}
	return n
}

// Format renders one line. Missing or empty values render as "-".
func (f *AccessLogFormatter) Format(
	ts time.Time,
	status int,
	latency time.Duration,
	clientIP string,
	method string,
	path string,
	fields map[string]any,
	color bool,
) string {
	if f == nil || len(f.parts) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range f.parts {
		if p.varName == "" {
			b.WriteString(p.literal)
			continue
		}
		var v string
		switch p.varName {
		case "time_local":
			v = ts.Format(timeLayout)
		case "status":
			v = ColorizeStatusWith(status, color)
		case "latency":
			v = latency.String()
		case "latency_ms":
			v = strconv.FormatInt(latency.Milliseconds(), 10)
		case "client_ip":
			v = clientIP
		case "method":
			v = method
		case "path":
			v = path
		default:
			v = fieldString(fields[p.varName])
		}
		v = strings.TrimSpace(v)
		if v == "" {
			v = "-"
		}
		b.WriteString(v)
	}
	return b.String()
}

func fieldString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		if x == 0 {
			return ""
		}
		return strconv.Itoa(x)
	case time.Duration:
		return strconv.FormatInt(x.Milliseconds(), 10)
	case error:
		return x.Error()
	default:
		return fmt.Sprintf("%v", x)
	}
}

// AccessLogAllowedVars lists the variable names CompileAccessLogFormat accepts.
func AccessLogAllowedVars() []string {
	keys := make([]string, 0, len(allowedAccessLogVars))
	for k := range allowedAccessLogVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AccessLogPresets lists the preset names ResolveAccessLogFormat accepts.
func AccessLogPresets() []string {
	keys := make([]string, 0, len(accessLogFormatPresets))
	for k := range accessLogFormatPresets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
