package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/field-attendance/internal/calendar"
	"github.com/example/field-attendance/internal/window"
)

const envPrefix = "ATTENDANCE_"

// Storage backends selectable through ATTENDANCE_STORAGE.
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Config captures environment driven configuration values for the attendance service.
type Config struct {
	HTTPPort          int
	SQLiteDSN         string
	Storage           string
	TokenSecret       string
	Location          *time.Location
	DefaultWindow     window.TimeWindow
	GraceMinutes      int
	Workdays          []time.Weekday
	MarkRateLimit     float64
	MarkRateBurst     int
	MigrationsEnabled bool
	LogLevel          slog.Level
}

// AgentConfig configures the agent console.
type AgentConfig struct {
	ServerURL    string
	Token        string
	AgentID      string
	Email        string
	GroupName    string
	PollInterval time.Duration
	Location     *time.Location
}

// Load parses configuration values from the process environment.
//
// When ATTENDANCE_CONFIG_FILE names a YAML file its keys (e.g. http_port,
// window_start) provide base values; environment variables override them.
func Load() (Config, error) {
	values, err := newSource()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		HTTPPort:          8080,
		SQLiteDSN:         "file:attendance.db",
		Storage:           StorageSQLite,
		Location:          time.UTC,
		DefaultWindow:     window.TimeWindow{Start: window.MustClock(6, 0), End: window.MustClock(9, 0)},
		GraceMinutes:      15,
		Workdays:          calendar.DefaultWorkdays,
		MarkRateLimit:     1,
		MarkRateBurst:     5,
		MigrationsEnabled: true,
		LogLevel:          slog.LevelInfo,
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 4)

	if portValue := values.get("HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, envPrefix+"HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := values.get("SQLITE_DSN"); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if storage := strings.ToLower(values.get("STORAGE")); storage != "" {
		switch storage {
		case StorageSQLite, StorageMemory:
			cfg.Storage = storage
		default:
			invalid = append(invalid, envPrefix+"STORAGE")
		}
	}

	if secret := values.get("TOKEN_SECRET"); secret == "" {
		missing = append(missing, envPrefix+"TOKEN_SECRET")
	} else {
		cfg.TokenSecret = secret
	}

	if tz := values.get("TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			invalid = append(invalid, envPrefix+"TIMEZONE")
		} else {
			cfg.Location = loc
		}
	}

	start, end := cfg.DefaultWindow.Start, cfg.DefaultWindow.End
	if value := values.get("WINDOW_START"); value != "" {
		c, err := window.ParseClock(value)
		if err != nil {
			invalid = append(invalid, envPrefix+"WINDOW_START")
		} else {
			start = c
		}
	}
	if value := values.get("WINDOW_END"); value != "" {
		c, err := window.ParseClock(value)
		if err != nil {
			invalid = append(invalid, envPrefix+"WINDOW_END")
		} else {
			end = c
		}
	}
	if w, err := window.New(start, end); err != nil {
		invalid = append(invalid, envPrefix+"WINDOW_END")
	} else {
		cfg.DefaultWindow = w
	}

	if value := values.get("GRACE_MINUTES"); value != "" {
		grace, err := strconv.Atoi(value)
		if err != nil || grace < 0 {
			invalid = append(invalid, envPrefix+"GRACE_MINUTES")
		} else {
			cfg.GraceMinutes = grace
		}
	}
	if cfg.GraceMinutes > cfg.DefaultWindow.Length() {
		invalid = append(invalid, envPrefix+"GRACE_MINUTES")
	}

	if value := values.get("WORKDAYS"); value != "" {
		days, err := calendar.ParseWeekdays(value)
		if err != nil || len(days) == 0 {
			invalid = append(invalid, envPrefix+"WORKDAYS")
		} else {
			cfg.Workdays = days
		}
	}

	if value := values.get("MARK_RATE_LIMIT"); value != "" {
		limit, err := strconv.ParseFloat(value, 64)
		if err != nil || limit <= 0 {
			invalid = append(invalid, envPrefix+"MARK_RATE_LIMIT")
		} else {
			cfg.MarkRateLimit = limit
		}
	}

	if value := values.get("MARK_RATE_BURST"); value != "" {
		burst, err := strconv.Atoi(value)
		if err != nil || burst <= 0 {
			invalid = append(invalid, envPrefix+"MARK_RATE_BURST")
		} else {
			cfg.MarkRateBurst = burst
		}
	}

	if value := values.get("MIGRATIONS_ENABLED"); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			invalid = append(invalid, envPrefix+"MIGRATIONS_ENABLED")
		} else {
			cfg.MigrationsEnabled = enabled
		}
	}

	if value := values.get("LOG_LEVEL"); value != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(value)); err != nil {
			invalid = append(invalid, envPrefix+"LOG_LEVEL")
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// LoadAgent parses the agent console configuration from the environment.
func LoadAgent() (AgentConfig, error) {
	cfg := AgentConfig{
		ServerURL:    "http://localhost:8080",
		PollInterval: 60 * time.Second,
		Location:     time.Local,
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if raw := env("SERVER_URL"); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			invalid = append(invalid, envPrefix+"SERVER_URL")
		} else {
			cfg.ServerURL = strings.TrimRight(raw, "/")
		}
	}

	if token := env("TOKEN"); token == "" {
		missing = append(missing, envPrefix+"TOKEN")
	} else {
		cfg.Token = token
	}

	cfg.AgentID = env("AGENT_ID")
	cfg.Email = env("AGENT_EMAIL")
	cfg.GroupName = env("GROUP_NAME")

	if value := env("POLL_INTERVAL"); value != "" {
		interval, err := time.ParseDuration(value)
		if err != nil || interval < time.Second {
			invalid = append(invalid, envPrefix+"POLL_INTERVAL")
		} else {
			cfg.PollInterval = interval
		}
	}

	if tz := env("TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			invalid = append(invalid, envPrefix+"TIMEZONE")
		} else {
			cfg.Location = loc
		}
	}

	if len(missing) > 0 {
		return AgentConfig{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return AgentConfig{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", "))
	}
	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}

// source resolves a key from the environment, falling back to the config file.
type source struct {
	file map[string]string
}

func newSource() (source, error) {
	path := env("CONFIG_FILE")
	if path == "" {
		return source{}, nil
	}
	file, err := readFile(path)
	if err != nil {
		return source{}, err
	}
	return source{file: file}, nil
}

func (s source) get(key string) string {
	if value := env(key); value != "" {
		return value
	}
	return s.file[key]
}

// readFile flattens a YAML mapping into upper-cased keys. Sequences are joined
// with commas so lists such as workdays read like their environment form.
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	out := make(map[string]string, len(raw))
	for key, value := range raw {
		name := strings.ToUpper(strings.TrimSpace(key))
		switch v := value.(type) {
		case nil:
			continue
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			out[name] = strings.Join(parts, ",")
		case map[string]any:
			return nil, errors.New("config file: nested key " + key + " is not supported")
		default:
			out[name] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return out, nil
}
