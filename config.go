package dispatch

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the driver configuration.
type Config struct {
	Port            int           `yaml:"port" env:"PORT" default:"3000"`
	Host            string        `yaml:"host" env:"HOST" default:"localhost"`
	CreateServer    *bool         `yaml:"createServer" env:"CREATE_SERVER" default:"true"`
	Environment     string        `yaml:"environment" env:"ENV" default:"development"`
	Debug           bool          `yaml:"debug" env:"DEBUG" default:"false"`
	PoweredBy       string        `yaml:"poweredBy" env:"POWERED_BY" default:"Dispatch/Mux"`
	ReadTimeout     time.Duration `yaml:"readTimeout" env:"READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" env:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `yaml:"idleTimeout" env:"IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// StartOptions are the options recognized by Driver.Start.
type StartOptions struct {
	Port int
	Host string
	// CreateServer defaults to true. Setting it to false keeps routes
	// registered but never binds a socket.
	CreateServer *bool
}

// Bool returns a pointer to v, for StartOptions.CreateServer.
func Bool(v bool) *bool {
	return &v
}

func (o StartOptions) withDefaults() StartOptions {
	if o.Port == 0 {
		o.Port = 3000
	}
	if o.Host == "" {
		o.Host = "localhost"
	}
	if o.CreateServer == nil {
		o.CreateServer = Bool(true)
	}
	return o
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:            3000,
		Host:            "localhost",
		CreateServer:    Bool(true),
		Environment:     "development",
		Debug:           false,
		PoweredBy:       "Dispatch/Mux",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// StartOptions extracts the start options from the configuration.
func (c *Config) StartOptions() StartOptions {
	return StartOptions{
		Port:         c.Port,
		Host:         c.Host,
		CreateServer: c.CreateServer,
	}
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// LoadConfig builds a Config from defaults, then the YAML file at path
// (skipped when path is empty), then environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv fills a struct from environment variables named by the `env`
// tag. A variable that is unset leaves the field alone unless the field is
// still zero, in which case the `default` tag applies.
//
// Supported types: string, bool, ints, uints, floats, time.Duration,
// []string (comma separated) and pointers to those.
func LoadFromEnv(cfg interface{}) error {
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("cfg must be a non-nil pointer to a struct")
	}

	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("cfg must be a pointer to a struct")
	}

	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldValue := v.Field(i)

		if !fieldValue.CanSet() {
			continue
		}

		envKey := field.Tag.Get("env")
		if envKey == "" {
			if fieldValue.Kind() == reflect.Struct {
				if err := LoadFromEnv(fieldValue.Addr().Interface()); err != nil {
					return err
				}
			}
			continue
		}

		value, ok := os.LookupEnv(envKey)
		if !ok || value == "" {
			if !fieldValue.IsZero() {
				continue
			}
			value = field.Tag.Get("default")
		}

		if value == "" {
			continue
		}

		if err := setField(fieldValue, value); err != nil {
			return fmt.Errorf("failed to set field %s: %w", field.Name, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.Ptr:
		elem := reflect.New(field.Type().Elem())
		if err := setField(elem.Elem(), value); err != nil {
			return err
		}
		field.Set(elem)

	case reflect.String:
		field.SetString(value)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Env returns an environment variable with a default value.
func Env(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
