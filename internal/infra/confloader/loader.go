package confloader

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the prefix of environment variables read by a Loader.
const DefaultEnvPrefix = "CLINVAULT_"

// envNest separates key path segments in environment variable names.
const envNest = "__"

// Loader layers a YAML file, the environment and explicit overrides over a
// struct that already holds defaults. It keeps no state between loads.
type Loader struct {
	file      string
	envPrefix string
	overrides overrides
}

// Option configures a Loader.
type Option func(*Loader)

// WithConfigFile sets the YAML file to read. A missing file is an error.
func WithConfigFile(path string) Option {
	return func(l *Loader) { l.file = path }
}

// WithEnvPrefix replaces DefaultEnvPrefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) { l.envPrefix = prefix }
}

// WithOverrides sets dotted keys that win over both the file and the
// environment, e.g. {"log.level": "debug"} from a command-line flag.
func WithOverrides(kv map[string]any) Option {
	return func(l *Loader) {
		if l.overrides == nil {
			l.overrides = make(overrides, len(kv))
		}
		for k, v := range kv {
			l.overrides[k] = v
		}
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FilePath returns the configured file, possibly empty.
func (l *Loader) FilePath() string {
	return l.file
}

// Load reads every source and unmarshals the result over target using
// koanf tags. Keys no source sets keep the value target already holds.
// Each call reads the sources afresh, so it also serves as a reload.
func (l *Loader) Load(target any) error {
	k, err := l.read()
	if err != nil {
		return err
	}
	if err := k.Unmarshal("", target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

func (l *Loader) read() (*koanf.Koanf, error) {
	k := koanf.New(".")
	if l.file != "" {
		if err := k.Load(file.Provider(l.file), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", l.file, err)
		}
	}
	if err := k.Load(env.Provider(l.envPrefix, ".", l.envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	if len(l.overrides) > 0 {
		if err := k.Load(l.overrides, nil); err != nil {
			return nil, fmt.Errorf("load overrides: %w", err)
		}
	}
	return k, nil
}

// envKey maps CLINVAULT_STORAGE__DATA_DIR to storage.data_dir.
func (l *Loader) envKey(name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, l.envPrefix))
	return strings.ReplaceAll(name, envNest, ".")
}
