// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/loomtrace/loom/lib/classcache"
	"github.com/loomtrace/loom/lib/scope"
)

// EnvironmentVariable names the config file for Load.
const EnvironmentVariable = "LOOM_CONFIG"

// DefaultPort is the collector's conventional TCP port.
const DefaultPort = 8058

// Config is the runtime configuration.
type Config struct {
	// Verbosity selects the log level: 0 warn, 1 info, 2+ debug.
	Verbosity int `yaml:"verbosity" json:"verbosity"`

	Collector  CollectorConfig  `yaml:"collector" json:"collector"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Scope      ScopeConfig      `yaml:"scope" json:"scope"`
	Exceptions ExceptionsConfig `yaml:"exceptions" json:"exceptions"`
}

// CollectorConfig locates the collector and identifies this process.
type CollectorConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	// ClientName is shown in the collector's host list. Default: the
	// machine's hostname.
	ClientName string `yaml:"client_name" json:"client_name"`

	// DialTimeout bounds connection establishment, as a Go duration
	// string. Default: 10s.
	DialTimeout string `yaml:"dial_timeout" json:"dial_timeout"`

	// LegacyHost asks the collector for bytecode compatible with older
	// class file versions.
	LegacyHost bool `yaml:"legacy_host" json:"legacy_host"`
}

// CacheConfig configures the local class cache.
type CacheConfig struct {
	// Root is the directory under which per-scope caches are created.
	// A cache path sent by the collector takes precedence. Empty with
	// no collector path disables caching.
	Root string `yaml:"root" json:"root"`

	// Compression is none, lz4, zstd, or auto. Default: auto.
	Compression string `yaml:"compression" json:"compression"`

	// Disabled turns the cache off even when a path is available.
	Disabled bool `yaml:"disabled" json:"disabled"`
}

// ScopeConfig selects which classes are instrumented.
type ScopeConfig struct {
	// WorkingSet is a scope expression such as "[+com/acme/**]". When
	// set it replaces the collector's working set.
	WorkingSet string `yaml:"working_set" json:"working_set"`

	// SpecialCases lists classes instrumented even when WorkingSet
	// excludes them.
	SpecialCases string `yaml:"special_cases" json:"special_cases"`

	// RegisterOutOfScope reports excluded classes to the collector
	// with REGISTER_CLASS so its structure database stays complete.
	RegisterOutOfScope bool `yaml:"register_out_of_scope" json:"register_out_of_scope"`
}

// ExceptionsConfig filters exception events.
type ExceptionsConfig struct {
	// IgnoredMethods lists throwing methods, as
	// "pkg/Class.method(descriptor)ret", whose exceptions are never
	// delivered. Other overloads of the same name are not affected.
	IgnoredMethods []string `yaml:"ignored_methods" json:"ignored_methods"`
}

// DefaultSpecialCases are core collections whose instrumentation the
// collector relies on for object identity.
const DefaultSpecialCases = "[+java/util/ArrayList +java/util/HashMap +java/util/HashMap$Entry]"

// DefaultIgnoredMethods are class loader internals that throw and
// catch exceptions as normal control flow during class lookup.
var DefaultIgnoredMethods = []string{
	"java/lang/ClassLoader.findBootstrapClass(Ljava/lang/String;)Ljava/lang/Class;",
	"java/net/URLClassLoader$1.run()Ljava/lang/Object;",
	"java/net/URLClassLoader.findClass(Ljava/lang/String;)Ljava/lang/Class;",
}

// Default returns the configuration used as a base before a file is
// loaded.
func Default() *Config {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "loom-host"
	}
	return &Config{
		Collector: CollectorConfig{
			Host:        "localhost",
			Port:        DefaultPort,
			ClientName:  hostname,
			DialTimeout: "10s",
		},
		Cache: CacheConfig{
			Compression: "auto",
		},
		Scope: ScopeConfig{
			SpecialCases: DefaultSpecialCases,
		},
		Exceptions: ExceptionsConfig{
			IgnoredMethods: append([]string(nil), DefaultIgnoredMethods...),
		},
	}
}

// Load loads the file named by LOOM_CONFIG. It fails when the variable
// is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your loom.yaml config file, or use --config", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile loads and validates the configuration at path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	absolute, err := filepath.Abs(path)
	if err != nil {
		absolute = path
	}
	cfg.expandVariables(filepath.Dir(absolute))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return json.Unmarshal(jsonc.ToJSON(data), c)
	default:
		return yaml.Unmarshal(data, c)
	}
}

// expandVariables expands ${VAR} patterns in path fields.
func (c *Config) expandVariables(configDirectory string) {
	vars := map[string]string{
		"LOOM_CONFIG_DIR": configDirectory,
		"HOME":            os.Getenv("HOME"),
	}
	c.Cache.Root = expandVars(c.Cache.Root, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}, consulting vars
// before the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors, including the syntax
// of both scope expressions.
func (c *Config) Validate() error {
	var errs []error

	if c.Collector.Host == "" {
		errs = append(errs, fmt.Errorf("collector.host is required"))
	}
	if c.Collector.Port <= 0 || c.Collector.Port > 65535 {
		errs = append(errs, fmt.Errorf("collector.port %d out of range", c.Collector.Port))
	}
	if c.Collector.ClientName == "" {
		errs = append(errs, fmt.Errorf("collector.client_name is required"))
	}
	if _, err := c.DialTimeout(); err != nil {
		errs = append(errs, err)
	}
	if _, err := classcache.ParseCompression(c.Cache.Compression); err != nil {
		errs = append(errs, fmt.Errorf("cache.compression: %w", err))
	}
	if c.Scope.WorkingSet != "" {
		if _, err := scope.Parse(c.Scope.WorkingSet); err != nil {
			errs = append(errs, fmt.Errorf("scope.working_set: %w", err))
		}
	}
	if c.Scope.SpecialCases != "" {
		if _, err := scope.Parse(c.Scope.SpecialCases); err != nil {
			errs = append(errs, fmt.Errorf("scope.special_cases: %w", err))
		}
	}
	for _, method := range c.Exceptions.IgnoredMethods {
		if !validMethodKey(method) {
			errs = append(errs, fmt.Errorf("exceptions.ignored_methods: %q is not pkg/Class.method(descriptor)ret", method))
		}
	}

	return errors.Join(errs...)
}

// validMethodKey reports whether key has a class, a method name, and a
// descriptor with a parameter list and a return type.
func validMethodKey(key string) bool {
	open := strings.IndexByte(key, '(')
	if open <= 0 {
		return false
	}
	dot := strings.LastIndexByte(key[:open], '.')
	if dot <= 0 || dot == open-1 {
		return false
	}
	closing := strings.IndexByte(key[open:], ')')
	return closing > 0 && open+closing < len(key)-1
}

// Address returns the collector address in host:port form.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Collector.Host, strconv.Itoa(c.Collector.Port))
}

// DialTimeout parses collector.dial_timeout. Empty means no timeout.
func (c *Config) DialTimeout() (time.Duration, error) {
	if c.Collector.DialTimeout == "" {
		return 0, nil
	}
	timeout, err := time.ParseDuration(c.Collector.DialTimeout)
	if err != nil {
		return 0, fmt.Errorf("collector.dial_timeout: %w", err)
	}
	if timeout < 0 {
		return 0, fmt.Errorf("collector.dial_timeout %s is negative", timeout)
	}
	return timeout, nil
}
