package runtime

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"reflect"
	"regexp"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	goyaml "gopkg.in/yaml.v3"

	"screenloom/device"
	"screenloom/llm"
)

// Package-level validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
	registerCustomValidators()
}

// AppConfig is the whole application configuration, loaded from a YAML file
// with ${VAR:default} environment resolution.
type AppConfig struct {
	Server   ServerConfig  `yaml:"server"`
	FlowsDir string        `yaml:"flows_dir" default:"flows" validate:"required"`
	Session  SessionConfig `yaml:"session"`
	Redis    *RedisConfig  `yaml:"redis,omitempty"`
	LLM      *llm.Config   `yaml:"llm,omitempty"`
	Devices  DevicesConfig `yaml:"devices"`
	LogLevel string        `yaml:"log_level" default:"info" validate:"oneof=debug info warn error"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" default:"0.0.0.0:8080" validate:"required,hostname_port"`
}

// SessionConfig seeds the read-only system variables of a session.
type SessionConfig struct {
	Player string `yaml:"player" default:"Player"`
	Char   string `yaml:"char" default:"Char"`
	Gender string `yaml:"gender,omitempty"`
}

// RedisConfig enables the redis-backed variable store. Addr or URL must be
// set; URL wins when both are.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty" validate:"omitempty,hostname_port"`
	URL      string `yaml:"url,omitempty" validate:"omitempty,dsn"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db" default:"0" validate:"gte=0,lte=15"`
	Prefix   string `yaml:"prefix" default:"screenloom"`
}

// DevicesConfig wires vendor adapters. Each present section registers its
// devices with the gateway; mock adds the simulated target.
type DevicesConfig struct {
	Mock  bool                `yaml:"mock" default:"true"`
	Kasa  *device.KasaConfig  `yaml:"kasa,omitempty"`
	Tapo  *device.TapoConfig  `yaml:"tapo,omitempty"`
	Wyze  *device.WyzeConfig  `yaml:"wyze,omitempty"`
	Tuya  *device.TuyaConfig  `yaml:"tuya,omitempty"`
	Govee *device.GoveeConfig `yaml:"govee,omitempty"`
}

// LoadConfig reads, env-expands, defaults and validates the app config.
func LoadConfig(path string) (*AppConfig, error) {
	return LoadConfigWithOverrides(path, nil)
}

// LoadConfigWithOverrides additionally merges flat dotted-path overrides
// (from --set flags) over the file before validation, so
// "server.addr=:9090" beats whatever the file says.
func LoadConfigWithOverrides(path string, overrides map[string]string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	expanded, err := expandEnv(string(data))
	if err != nil {
		return nil, err
	}

	cfg := &AppConfig{}
	if err := goyaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if err := InitializeConfig(cfg, expandOverrides(overrides)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandOverrides turns {"redis.db": "3"} into the nested map shape the
// YAML tags expect. Values go through a YAML scalar parse so numbers and
// booleans land in typed fields; anything unparseable stays a string.
func expandOverrides(flat map[string]string) map[string]any {
	if len(flat) == 0 {
		return nil
	}
	out := map[string]any{}
	for key, raw := range flat {
		var value any
		if err := goyaml.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}

		parts := strings.Split(key, ".")
		m := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = map[string]any{}
				m[p] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = value
	}
	return out
}

// envVarPattern matches ${VAR} and ${VAR:default} syntax
var envVarPattern = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)(:[^}]*)?\}`)

// expandEnv resolves every ${VAR} and ${VAR:default} occurrence. A missing
// variable without a default is an error, not a silent empty string.
func expandEnv(s string) (string, error) {
	var missing []string
	out := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, defaultPart := groups[1], groups[2]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		if defaultPart != "" {
			return strings.TrimPrefix(defaultPart, ":")
		}
		missing = append(missing, name)
		return match
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// InitializeConfig prepares an arbitrary config struct in one call:
// defaults, then raw value merging, then validation.
func InitializeConfig(config any, rawValues map[string]any) error {
	if err := ApplyDefaults(config); err != nil {
		slog.Error("config: failed to apply defaults",
			"config_type", reflect.TypeOf(config).String(),
			"error", err)
		return fmt.Errorf("failed to apply defaults: %w", err)
	}

	// Merge raw values through YAML so the same tags drive both file and
	// programmatic configuration.
	if len(rawValues) > 0 {
		data, err := goyaml.Marshal(rawValues)
		if err != nil {
			return fmt.Errorf("failed to apply config values: %w", err)
		}
		if err := goyaml.Unmarshal(data, config); err != nil {
			slog.Error("config: failed to apply config values",
				"config_type", reflect.TypeOf(config).String(),
				"raw_values", rawValues,
				"error", err)
			return fmt.Errorf("failed to apply config values: %w", err)
		}
	}

	configValue := reflect.ValueOf(config)
	if configValue.Kind() == reflect.Ptr {
		configValue = configValue.Elem()
	}
	if err := validateConfig(configValue.Interface()); err != nil {
		slog.Error("config validation failed",
			"config_type", reflect.TypeOf(config).String(),
			"error", err)
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// registerCustomValidators registers framework-provided custom validation functions
func registerCustomValidators() {
	// hostname_port validates "host:port" format with numeric port
	validate.RegisterValidation("hostname_port", func(fl validator.FieldLevel) bool {
		addr := fl.Field().String()
		host, port, err := net.SplitHostPort(addr)
		if err != nil || host == "" || port == "" {
			return false
		}
		// Verify port is a valid number in range 1-65535
		_, err = net.LookupPort("tcp", port)
		return err == nil
	})

	// url_format validates URL structure
	validate.RegisterValidation("url_format", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		u, err := url.Parse(s)
		return err == nil && u.Scheme != "" && u.Host != ""
	})

	// dsn validates connection string format: either URL form (scheme://...)
	// or traditional user@host/db form
	validate.RegisterValidation("dsn", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if strings.Contains(s, "://") {
			_, err := url.Parse(s)
			return err == nil
		}
		return strings.Contains(s, "@") && strings.Contains(s, "/")
	})
}

func ApplyDefaults(config any) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := defaults.Set(config); err != nil {
		return fmt.Errorf("failed to apply default values: %w", err)
	}

	return nil
}

func validateConfig(config any) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validate.Struct(config); err != nil {
		// Format validation errors for better readability
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var errMessages []string
			for _, fieldErr := range validationErrors {
				errMessages = append(errMessages, fmt.Sprintf(
					"field '%s' failed validation: %s (rule: %s)",
					fieldErr.Field(),
					fieldErr.Error(),
					fieldErr.Tag(),
				))
			}
			return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errMessages, "\n  - "))
		}
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}
