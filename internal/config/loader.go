package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var ErrConfigNotFound = errors.New("config file not found")

// DefaultEnvPrefix prefixes every environment override, e.g. CADENCE_DATABASE_PATH.
const DefaultEnvPrefix = "CADENCE"

// searchDirs are tried in order for cadence.yaml when no file is given.
var searchDirs = []string{
	".",
	filepath.Join("$HOME", ".config", "cadence"),
	filepath.Join("/etc", "cadence"),
}

type LoadOptions struct {
	ConfigFile string
	EnvPrefix  string
	Defaults   *Config
}

// Load layers defaults, the config file, ${VAR} references and
// <prefix>_SECTION_KEY environment variables, then validates the result.
func Load(opts LoadOptions) (*Config, error) {
	defaults := opts.Defaults
	if defaults == nil {
		defaults = Default()
	}
	prefix := opts.EnvPrefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}

	v := viper.New()
	registerDefaults(v, defaults)

	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("cadence")
		v.SetConfigType("yaml")
		for _, dir := range searchDirs {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	expandEnvReferences(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadFromFile(path string) (*Config, error) {
	return Load(LoadOptions{ConfigFile: path})
}

func LoadWithDefaults() (*Config, error) {
	return Load(LoadOptions{})
}

// registerDefaults seeds viper from the same metadata `config show` prints,
// so every documented key is also an overridable one.
func registerDefaults(v *viper.Viper, defaults *Config) {
	for _, section := range Describe(defaults) {
		for _, f := range section.Fields {
			v.SetDefault(section.Key+"."+f.Key, f.Current)
		}
	}
}

// expandEnvReferences substitutes ${VAR} inside string values. Unset
// variables are left as written.
func expandEnvReferences(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val, ok := v.Get(key).(string)
		if !ok || !strings.Contains(val, "${") {
			continue
		}
		v.Set(key, os.Expand(val, func(name string) string {
			if env, ok := os.LookupEnv(name); ok {
				return env
			}
			return "${" + name + "}"
		}))
	}
}

// ConfigFilePath resolves customPath, or the first cadence.yaml or
// cadence.yml found in the search directories.
func ConfigFilePath(customPath string) (string, error) {
	if customPath != "" {
		abs, err := filepath.Abs(customPath)
		if err != nil {
			return "", fmt.Errorf("resolving config path: %w", err)
		}
		if _, err := os.Stat(abs); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, abs)
		}
		return abs, nil
	}

	for _, dir := range searchDirs {
		for _, name := range []string{"cadence.yaml", "cadence.yml"} {
			p := filepath.Join(os.ExpandEnv(dir), name)
			if _, err := os.Stat(p); err == nil {
				return filepath.Abs(p)
			}
		}
	}
	return "", ErrConfigNotFound
}
