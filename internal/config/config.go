package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config controls one amalgamation. Relative paths are resolved against
// BasePath, which itself is relative to the working directory.
type Config struct {
	BasePath   string `yaml:"base_path"`
	IncludeDir string `yaml:"include_dir"`
	RootFile   string `yaml:"root_file"`
	Output     string `yaml:"output"`

	Project   string `yaml:"project"`
	Version   string `yaml:"version"`
	Copyright string `yaml:"copyright"`

	GuardPrefix        string   `yaml:"guard_prefix"`
	ImplSymbol         string   `yaml:"impl_symbol"`
	InternalDir        string   `yaml:"internal_dir"`
	AlwaysExpand       []string `yaml:"always_expand"`
	SingleIncludeGuard string   `yaml:"single_include_guard"`

	// IncludeImpl is a pointer so an absent key keeps the default.
	IncludeImpl *bool `yaml:"include_impl,omitempty"`
}

// Default mirrors the layout of the NanoSTL source tree, with the tool run
// from its scripts/ directory.
func Default() Config {
	impl := true
	return Config{
		BasePath:           "../",
		IncludeDir:         "include",
		RootFile:           "nanostl.h",
		Output:             "single_include/nanostl.h",
		Project:            "NanoSTL",
		Version:            "0.1.0",
		Copyright:          "Copyright (c) 2017 Light Transport Entertainment, Inc.",
		GuardPrefix:        "NANOSTL",
		ImplSymbol:         "NANOSTL_CONFIG_RUNNER",
		InternalDir:        "internal",
		AlwaysExpand:       []string{"tbc_text_format.h", "clara.h"},
		SingleIncludeGuard: "NANOSTL_SINGLE_INCLUDE_H_",
		IncludeImpl:        &impl,
	}
}

// Load reads a YAML file over the defaults. An empty path returns Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data into cfg; keys missing from data keep cfg's values.
// Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg.Validate()
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg.Validate()
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (c Config) Validate() error {
	required := []struct{ key, val string }{
		{"include_dir", c.IncludeDir},
		{"root_file", c.RootFile},
		{"output", c.Output},
		{"guard_prefix", c.GuardPrefix},
		{"impl_symbol", c.ImplSymbol},
		{"single_include_guard", c.SingleIncludeGuard},
	}
	for _, r := range required {
		if strings.TrimSpace(r.val) == "" {
			return fmt.Errorf("%w: %s must be set", ErrInvalidConfig, r.key)
		}
	}
	for _, r := range required[3:] {
		if !identifier.MatchString(r.val) {
			return fmt.Errorf("%w: %s %q is not an identifier", ErrInvalidConfig, r.key, r.val)
		}
	}
	if strings.ContainsAny(c.RootFile, `/\`) {
		return fmt.Errorf("%w: root_file %q must be a bare file name", ErrInvalidConfig, c.RootFile)
	}
	return nil
}

// IncludePath is the root include directory.
func (c Config) IncludePath() string { return c.resolve(c.IncludeDir) }

// OutputPath is the artifact location.
func (c Config) OutputPath() string { return c.resolve(c.Output) }

// Impl reports whether implementation regions are kept.
func (c Config) Impl() bool { return c.IncludeImpl == nil || *c.IncludeImpl }

func (c Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.BasePath, p)
}
