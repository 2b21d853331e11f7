// Package config loads and validates the satchel server configuration.
//
// Configuration is a YAML file (satchel.yaml by convention). After decoding,
// the result is unified against an embedded CUE schema so that typos, out of
// range values, and unknown enum members are rejected with positional error
// messages instead of surfacing later as runtime misbehavior.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	_ "embed"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource []byte

// Feed holds live change feed settings.
type Feed struct {
	// HeartbeatSeconds is the interval between SSE keep-alive comments.
	HeartbeatSeconds int `yaml:"heartbeat_seconds" json:"heartbeat_seconds"`
}

// Log holds structured logging settings.
type Log struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Session holds login session settings.
type Session struct {
	LifetimeHours int `yaml:"lifetime_hours" json:"lifetime_hours"`
}

// Config is the full server configuration.
type Config struct {
	ListenAddr      string  `yaml:"listen_addr" json:"listen_addr"`
	DatabasePath    string  `yaml:"database_path" json:"database_path"`
	AllowAnonReads  bool    `yaml:"allow_anon_reads" json:"allow_anon_reads"`
	AllowAnonWrites bool    `yaml:"allow_anon_writes" json:"allow_anon_writes"`
	Feed            Feed    `yaml:"feed" json:"feed"`
	Log             Log     `yaml:"log" json:"log"`
	Session         Session `yaml:"session" json:"session"`
}

// Default returns the configuration used when no file is given. It also
// serves as the base that a loaded file is decoded over, so omitted fields
// keep these values.
func Default() Config {
	return Config{
		ListenAddr:      "127.0.0.1:8088",
		DatabasePath:    "satchel.db",
		AllowAnonReads:  false,
		AllowAnonWrites: false,
		Feed:            Feed{HeartbeatSeconds: 30},
		Log:             Log{Level: "info", Format: "text"},
		Session:         Session{LifetimeHours: 24},
	}
}

// Load reads a YAML config file, applies defaults for omitted fields, and
// validates the result. Unknown keys are an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes raw YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate unifies the configuration with the embedded CUE schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("looking up config schema: %w", err)
	}

	val := ctx.Encode(c)
	if err := val.Err(); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	unified := def.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// SlogLevel maps the configured level string to a slog.Level.
func (c Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// HeartbeatInterval returns the SSE keep-alive interval as a duration.
func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Feed.HeartbeatSeconds) * time.Second
}

// SessionLifetime returns the login session lifetime as a duration.
func (c Config) SessionLifetime() time.Duration {
	return time.Duration(c.Session.LifetimeHours) * time.Hour
}

// formatCUEError flattens a CUE validation error into a single message
// listing every violated constraint.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	msg := errs[0].Error()
	for _, e := range errs[1:] {
		msg += "; " + e.Error()
	}
	return fmt.Errorf("invalid config: %s", msg)
}
