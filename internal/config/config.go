package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/r9s-ai/quarry/pkg/quarry"
	"github.com/r9s-ai/quarry/pkg/quarryconf"
)

const (
	defaultListen         = ":3400"
	defaultPidFile        = "/var/run/quarry.pid"
	defaultEndpointsFile  = "./endpoints.yaml"
	defaultQuarryTimeout  = 10000
	defaultReloadDebounce = 300

	defaultAccessLogRotateMaxSizeMB  = 100
	defaultAccessLogRotateMaxBackups = 7
)

type AccessLogRotateConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	Compress   bool `yaml:"compress"`
}

type LoggingConfig struct {
	AccessLog             bool                  `yaml:"access_log"`
	AccessLogPath         string                `yaml:"access_log_path"`
	AccessLogFormat       string                `yaml:"access_log_format"`
	AccessLogFormatPreset string                `yaml:"access_log_format_preset"`
	AccessLogRotate       AccessLogRotateConfig `yaml:"access_log_rotate"`

	accessLogSet bool `yaml:"-"`
}

func (c *LoggingConfig) UnmarshalYAML(value *yaml.Node) error {
	type rawLogging LoggingConfig
	var raw rawLogging
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*c = LoggingConfig(raw)
	c.accessLogSet = false
	if value.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		if strings.TrimSpace(value.Content[i].Value) == "access_log" {
			c.accessLogSet = true
		}
	}
	return nil
}

// RouteConfig declares a static inbound route served by the restserver router.
type RouteConfig struct {
	Method  string            `yaml:"method"`
	Path    string            `yaml:"path"`
	Status  int               `yaml:"status"`
	Text    string            `yaml:"text"`
	JSON    any               `yaml:"json"`
	Headers map[string]string `yaml:"headers"`
}

type Config struct {
	Server struct {
		Listen          string `yaml:"listen"`
		ReadTimeoutMs   int    `yaml:"read_timeout_ms"`
		WriteTimeoutMs  int    `yaml:"write_timeout_ms"`
		PidFile         string `yaml:"pid_file"`
		ServerHeader    string `yaml:"server_header"`
		RequestIDHeader string `yaml:"request_id_header"`
	} `yaml:"server"`

	Quarry struct {
		// File holds the endpoint definitions.
		File string `yaml:"file"`
		// Format is "native" (default) or "openapi".
		Format string `yaml:"format"`
		// BaseURL overrides the base URL declared in File.
		BaseURL string `yaml:"base_url"`
		// BaseHeaders are merged over the default headers declared in File.
		BaseHeaders map[string]string `yaml:"base_headers"`
		TimeoutMs   int               `yaml:"timeout_ms"`
		AutoReload  struct {
			Enabled    bool `yaml:"enabled"`
			DebounceMs int  `yaml:"debounce_ms"`
		} `yaml:"auto_reload"`
	} `yaml:"quarry"`

	Routes []RouteConfig `yaml:"routes"`

	Logging LoggingConfig `yaml:"logging"`
}

func Load(path string) (*Config, error) {
	// #nosec G304 -- path is provided by trusted config/flag.
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes, completes and validates a config document.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Server.Listen) == "" {
		cfg.Server.Listen = defaultListen
	}
	if cfg.Server.ReadTimeoutMs <= 0 {
		cfg.Server.ReadTimeoutMs = 60000
	}
	if cfg.Server.WriteTimeoutMs <= 0 {
		cfg.Server.WriteTimeoutMs = 60000
	}
	if strings.TrimSpace(cfg.Server.PidFile) == "" {
		cfg.Server.PidFile = defaultPidFile
	}
	if strings.TrimSpace(cfg.Quarry.File) == "" {
		cfg.Quarry.File = defaultEndpointsFile
	}
	if strings.TrimSpace(cfg.Quarry.Format) == "" {
		cfg.Quarry.Format = string(quarryconf.FormatNative)
	}
	if cfg.Quarry.TimeoutMs <= 0 {
		cfg.Quarry.TimeoutMs = defaultQuarryTimeout
	}
	if cfg.Quarry.AutoReload.DebounceMs <= 0 {
		cfg.Quarry.AutoReload.DebounceMs = defaultReloadDebounce
	}
	if cfg.Quarry.BaseHeaders == nil {
		cfg.Quarry.BaseHeaders = map[string]string{}
	}
	for i := range cfg.Routes {
		if cfg.Routes[i].Status == 0 {
			cfg.Routes[i].Status = http.StatusOK
		}
	}
	// access_log defaults to true unless set explicitly
	if !cfg.Logging.accessLogSet {
		cfg.Logging.AccessLog = true
	}
	if cfg.Logging.AccessLogRotate.MaxSizeMB == 0 {
		cfg.Logging.AccessLogRotate.MaxSizeMB = defaultAccessLogRotateMaxSizeMB
	}
	if cfg.Logging.AccessLogRotate.MaxBackups == 0 {
		cfg.Logging.AccessLogRotate.MaxBackups = defaultAccessLogRotateMaxBackups
	}
}

func applyEnvOverrides(cfg *Config) {
	applyEnvServerOverrides(cfg)
	applyEnvQuarryOverrides(cfg)
	applyBaseHeaderEnvOverrides(cfg)
	applyEnvLoggingOverrides(cfg)
}

func applyEnvServerOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("QUARRY_LISTEN")); v != "" {
		cfg.Server.Listen = v
	}
	if n, ok := envInt("QUARRY_READ_TIMEOUT_MS"); ok && n > 0 {
		cfg.Server.ReadTimeoutMs = n
	}
	if n, ok := envInt("QUARRY_WRITE_TIMEOUT_MS"); ok && n > 0 {
		cfg.Server.WriteTimeoutMs = n
	}
	if v := strings.TrimSpace(os.Getenv("QUARRY_PID_FILE")); v != "" {
		cfg.Server.PidFile = v
	}
	if v := strings.TrimSpace(os.Getenv("QUARRY_SERVER_HEADER")); v != "" {
		cfg.Server.ServerHeader = v
	}
}

func applyEnvQuarryOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("QUARRY_ENDPOINTS_FILE")); v != "" {
		cfg.Quarry.File = v
	}
	if v := strings.TrimSpace(os.Getenv("QUARRY_ENDPOINTS_FORMAT")); v != "" {
		cfg.Quarry.Format = v
	}
	if v := strings.TrimSpace(os.Getenv("QUARRY_BASE_URL")); v != "" {
		cfg.Quarry.BaseURL = v
	}
	if n, ok := envInt("QUARRY_TIMEOUT_MS"); ok && n > 0 {
		cfg.Quarry.TimeoutMs = n
	}
	cfg.Quarry.AutoReload.Enabled = envBool("QUARRY_AUTO_RELOAD_ENABLED", cfg.Quarry.AutoReload.Enabled)
	if n, ok := envInt("QUARRY_AUTO_RELOAD_DEBOUNCE_MS"); ok {
		cfg.Quarry.AutoReload.DebounceMs = n
	}
}

var envBaseHeaderPattern = regexp.MustCompile(`^QUARRY_BASE_HEADER_([A-Z0-9_]+)$`)

// applyBaseHeaderEnvOverrides maps QUARRY_BASE_HEADER_X_API_KEY=v to base header X-Api-Key: v.
// An empty value removes the header.
func applyBaseHeaderEnvOverrides(cfg *Config) {
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		m := envBaseHeaderPattern.FindStringSubmatch(strings.TrimSpace(k))
		if m == nil {
			continue
		}
		name := http.CanonicalHeaderKey(strings.ReplaceAll(m[1], "_", "-"))
		v = strings.TrimSpace(v)
		if v == "" {
			delete(cfg.Quarry.BaseHeaders, name)
			continue
		}
		cfg.Quarry.BaseHeaders[name] = v
	}
}

func applyEnvLoggingOverrides(cfg *Config) {
	cfg.Logging.AccessLog = envBool("QUARRY_ACCESS_LOG", cfg.Logging.AccessLog)
	if v := strings.TrimSpace(os.Getenv("QUARRY_ACCESS_LOG_PATH")); v != "" {
		cfg.Logging.AccessLogPath = v
	}
	if v := os.Getenv("QUARRY_ACCESS_LOG_FORMAT"); strings.TrimSpace(v) != "" {
		cfg.Logging.AccessLogFormat = v
	}
	if v := strings.TrimSpace(os.Getenv("QUARRY_ACCESS_LOG_FORMAT_PRESET")); v != "" {
		cfg.Logging.AccessLogFormatPreset = v
	}
	cfg.Logging.AccessLogRotate.Enabled = envBool("QUARRY_ACCESS_LOG_ROTATE_ENABLED", cfg.Logging.AccessLogRotate.Enabled)
	if n, ok := envInt("QUARRY_ACCESS_LOG_ROTATE_MAX_SIZE_MB"); ok {
		cfg.Logging.AccessLogRotate.MaxSizeMB = n
	}
	if n, ok := envInt("QUARRY_ACCESS_LOG_ROTATE_MAX_BACKUPS"); ok {
		cfg.Logging.AccessLogRotate.MaxBackups = n
	}
	cfg.Logging.AccessLogRotate.Compress = envBool("QUARRY_ACCESS_LOG_ROTATE_COMPRESS", cfg.Logging.AccessLogRotate.Compress)
}

func envInt(name string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func validate(cfg *Config) error {
	if _, err := quarryconf.ParseFormat(cfg.Quarry.Format); err != nil {
		return fmt.Errorf("quarry.format: %w", err)
	}
	if v := strings.TrimSpace(cfg.Quarry.BaseURL); v != "" {
		u, err := url.Parse(v)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("quarry.base_url must be an absolute URL, got %q", v)
		}
	}
	if cfg.Quarry.AutoReload.Enabled && cfg.Quarry.AutoReload.DebounceMs <= 0 {
		return errors.New("quarry.auto_reload.debounce_ms must be > 0 when quarry.auto_reload.enabled=true")
	}
	for i, r := range cfg.Routes {
		if _, err := quarry.ParseMethod(r.Method); err != nil {
			return fmt.Errorf("routes[%d]: %w", i, err)
		}
		if strings.TrimSpace(r.Path) == "" {
			return fmt.Errorf("routes[%d]: path is required", i)
		}
		if r.Status < 100 || r.Status > 599 {
			return fmt.Errorf("routes[%d]: status %d out of range", i, r.Status)
		}
		if r.Text != "" && r.JSON != nil {
			return fmt.Errorf("routes[%d]: text and json are mutually exclusive", i)
		}
	}
	if cfg.Logging.AccessLogRotate.Enabled {
		if !cfg.Logging.AccessLog {
			return errors.New("logging.access_log must be true when logging.access_log_rotate.enabled=true")
		}
		if strings.TrimSpace(cfg.Logging.AccessLogPath) == "" {
			return errors.New("logging.access_log_path is required when logging.access_log_rotate.enabled=true")
		}
	}
	if cfg.Logging.AccessLogRotate.MaxSizeMB <= 0 {
		return errors.New("logging.access_log_rotate.max_size_mb must be > 0")
	}
	if cfg.Logging.AccessLogRotate.MaxBackups <= 0 {
		return errors.New("logging.access_log_rotate.max_backups must be > 0")
	}
	return nil
}
