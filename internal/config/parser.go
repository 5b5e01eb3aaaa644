package config

import (
	"bytes"
	"os"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Parser errors.
var (
	ErrFileNotFound      = errors.New("configuration file not found")
	ErrMissingConfigFile = errors.New("config file path is required")
	ErrMissingOnChange   = errors.New("onChange callback is required")
)

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// LoadConfig reads, substitutes and parses the file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrFileNotFound, path)
		}
		return nil, errors.Wrap(err, "read config")
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML data over DefaultConfig. Unknown keys are errors.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	data = substituteEnvVars(data)
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, errors.Wrap(err, "render config")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "render config")
	}
	return buf.Bytes(), nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default}.
func substituteEnvVars(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		content := string(match[2 : len(match)-1])
		if name, def, ok := strings.Cut(content, ":-"); ok {
			if val := os.Getenv(name); val != "" {
				return []byte(val)
			}
			return []byte(def)
		}
		return []byte(os.Getenv(content))
	})
}

// ParseSize parses sizes such as "64MB", "1 GiB" or "4096". An empty
// string is zero.
func ParseSize(s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid size %q", s)
	}
	return int64(n), nil
}
