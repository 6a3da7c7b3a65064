package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"

	"github.com/caarlos0/env/v11"
	nomos "github.com/misaret/nomos-go"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

var endpointType = reflect.TypeOf(nomos.Endpoint{})

// FromEnv loads the configuration from NOMOS_* environment variables.
func FromEnv() (Config, error) {
	return fromEnv(env.Options{})
}

func fromEnv(opts env.Options) (Config, error) {
	var cfg Config
	opts.FuncMap = map[reflect.Type]env.ParserFunc{
		endpointType: func(v string) (interface{}, error) {
			return nomos.ParseEndpoint(v)
		},
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return finish(cfg)
}

// Load reads a YAML file. Servers may be written as "host:port" strings or
// as host/port mappings.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes YAML bytes.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return finish(cfg)
}

// Decode converts a generic map, as handed over by an application's own
// config system, into a Config. Durations may be strings ("1s"), servers a
// list or a comma separated string.
func Decode(input map[string]any) (Config, error) {
	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			stringToEndpointHook,
		),
	})
	if err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := dec.Decode(input); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return finish(cfg)
}

func stringToEndpointHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != endpointType {
		return data, nil
	}
	return nomos.ParseEndpoint(data.(string))
}

func finish(cfg Config) (Config, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		if errors.Is(err, nomos.ErrNoServers) || errors.Is(err, nomos.ErrInvalidEndpoint) {
			return Config{}, err
		}
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
