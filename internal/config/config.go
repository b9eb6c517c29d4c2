// Package config loads the espalier settings: defaults, then an optional
// YAML file, then ESPALIER_* environment variables. The result is validated
// before use.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Controller kinds.
const (
	ControllerActor    = "actor"
	ControllerBlock    = "block"
	ControllerNotBlock = "notblock"
)

type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	GraphsDir  string           `mapstructure:"graphs_dir" validate:"required"`
	Commands   string           `mapstructure:"commands"`
	Store      StoreConfig      `mapstructure:"store"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Controller ControllerConfig `mapstructure:"controller"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Events     EventsConfig     `mapstructure:"events"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// StoreConfig selects the state repository. Address applies to redis, Path
// to sqlite and DSN to postgres.
type StoreConfig struct {
	Driver   string        `mapstructure:"driver" validate:"oneof=memory redis sqlite postgres"`
	Address  string        `mapstructure:"address" validate:"required_if=Driver redis"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"min=0"`
	Path     string        `mapstructure:"path" validate:"required_if=Driver sqlite"`
	DSN      string        `mapstructure:"dsn" validate:"required_if=Driver postgres"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`

	// Lock serializes submissions across processes (redis only).
	Lock bool `mapstructure:"lock"`
}

type HTTPConfig struct {
	Addr    string `mapstructure:"addr" validate:"required"`
	CORS    bool   `mapstructure:"cors"`
	Metrics bool   `mapstructure:"metrics"`
	Events  bool   `mapstructure:"events"`
}

type ControllerConfig struct {
	Kind string   `mapstructure:"kind" validate:"oneof=actor block notblock"`
	Keys []string `mapstructure:"keys" validate:"required_if=Kind actor,dive,required"`
}

type WorkflowConfig struct {
	// MaxJumpHops bounds jumps; 0 means graph size plus one.
	MaxJumpHops int `mapstructure:"max_jump_hops" validate:"min=0"`

	// Parallelism bounds gateway fan-out; 0 walks branches sequentially.
	Parallelism int `mapstructure:"parallelism" validate:"min=0"`
}

type EventsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Topic   string `mapstructure:"topic"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name" validate:"required_if=Enabled true"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		Log:        LogConfig{Level: "info", Format: "text"},
		GraphsDir:  ".",
		Store:      StoreConfig{Driver: DriverMemory},
		HTTP:       HTTPConfig{Addr: ":8080", Metrics: true, Events: true},
		Controller: ControllerConfig{Kind: ControllerActor, Keys: []string{"actor"}},
		Tracing:    TracingConfig{ServiceName: "espalier"},
	}
}

// envBindings maps environment variables to config keys.
var envBindings = map[string]string{
	"ESPALIER_LOG_LEVEL":              "log.level",
	"ESPALIER_LOG_FORMAT":             "log.format",
	"ESPALIER_GRAPHS_DIR":             "graphs_dir",
	"ESPALIER_COMMANDS":               "commands",
	"ESPALIER_STORE_DRIVER":           "store.driver",
	"ESPALIER_STORE_ADDRESS":          "store.address",
	"ESPALIER_STORE_PASSWORD":         "store.password",
	"ESPALIER_STORE_DB":               "store.db",
	"ESPALIER_STORE_PATH":             "store.path",
	"ESPALIER_STORE_DSN":              "store.dsn",
	"ESPALIER_STORE_PREFIX":           "store.prefix",
	"ESPALIER_STORE_TTL":              "store.ttl",
	"ESPALIER_STORE_LOCK":             "store.lock",
	"ESPALIER_HTTP_ADDR":              "http.addr",
	"ESPALIER_HTTP_CORS":              "http.cors",
	"ESPALIER_HTTP_METRICS":           "http.metrics",
	"ESPALIER_HTTP_EVENTS":            "http.events",
	"ESPALIER_CONTROLLER_KIND":        "controller.kind",
	"ESPALIER_CONTROLLER_KEYS":        "controller.keys",
	"ESPALIER_WORKFLOW_MAX_JUMP_HOPS": "workflow.max_jump_hops",
	"ESPALIER_WORKFLOW_PARALLELISM":   "workflow.parallelism",
	"ESPALIER_EVENTS_ENABLED":         "events.enabled",
	"ESPALIER_EVENTS_TOPIC":           "events.topic",
	"ESPALIER_TRACING_ENABLED":        "tracing.enabled",
	"ESPALIER_TRACING_SERVICE_NAME":   "tracing.service_name",
}

// Load builds the config from the defaults, the YAML file at path (skipped
// when path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if err := decode(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
		}
	}

	if err := decode(environ(), cfg); err != nil {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// decode merges raw into cfg; keys absent from raw keep their value.
func decode(raw map[string]any, cfg *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// environ nests the bound ESPALIER_* variables into a map keyed like the
// YAML file.
func environ() map[string]any {
	out := make(map[string]any)
	for env, key := range envBindings {
		v, ok := os.LookupEnv(env)
		if !ok {
			continue
		}
		m := out
		parts := strings.Split(key, ".")
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = make(map[string]any)
				m[p] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = v
	}
	return out
}
