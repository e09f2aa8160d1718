// The below code is heavily derived from github.com/spf13/viper,
// which comes with the below copyright notice:
//
// Copyright © 2014 Steve Francia <spf@spf13.com>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package config is the layered configuration of the telemetry daemon.
// Values can come from flags, ENVIRONMENT variables, configuration files
// or code.
//
// Each item takes precedence over the item below it:
//
//	overrides
//	flag
//	env
//	config files (later files win)
//	default
package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pelletier/go-toml"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"
)

// ConfigMarshalError happens when failing to marshal the configuration.
type ConfigMarshalError struct {
	err error
}

// Error returns the formatted configuration error.
func (e ConfigMarshalError) Error() string {
	return fmt.Sprintf("While marshaling config: %s", e.err.Error())
}

func (e ConfigMarshalError) Unwrap() error { return e.err }

// ConfigSource is a case sensitive recursive store of config key/value (values can be maps)
type ConfigSource interface {
	Values() map[string]interface{}
}

// ConfigLoader is a ConfigSource which needs explicit loading to refresh
type ConfigLoader interface {
	ConfigSource
	Load() error
}

// Loader is a prioritized configuration registry. It
// maintains a set of configuration sources, fetches
// values to populate those, and provides them according
// to the source's priority.
// The priority of the sources is the following:
// 1. overrides (see the Set() function)
// 2. flags
// 3. env. variables
// 4. other config sources, - per default a file in a supported format
// 5. defaults (see the SetDefault() function)
//
// Config sources can be hierarchical (like a YAML file), but each value
// still has a unique key in a flat keyspace. (using a key-delimiter to define it's path)
//
// So - given a key-delimiter of "." the following will be true:
//
//	YAML config:
//	graphite:
//	  addr: "localhost:2003"
//
// key "graphite.addr" == "localhost:2003"
//
// A Loader is safe for concurrent use.
type Loader struct {
	// Delimiter that separates a list of keys
	// used to access a nested value in one go
	keyDelim  string
	envPrefix string

	mu sync.RWMutex

	pflags map[string]*pflag.Flag
	env    map[string][]string
	dotenv map[string]string

	override map[string]interface{}
	defaults map[string]interface{}

	// prioritized list of config sources, lowest first
	sources []ConfigSource

	configCache map[string]interface{}

	envKeyReplacer  *strings.Replacer
	allowEmptyEnv   bool
	caseInsensitive bool
}

// A few util functions
func (h *Loader) casing(key string) string {
	if h.caseInsensitive {
		return strings.ToLower(key)
	}
	return key
}

//------------- cache access --------------------
func (h *Loader) invalidateCache() {
	h.configCache = nil
}

//---------------------------------- OPTIONS ------------------------------

type Option interface {
	apply(h *Loader)
}

type optionFunc func(h *Loader)

func (fn optionFunc) apply(h *Loader) {
	fn(h)
}

// KeyDelimiter sets the delimiter used for determining key parts.
// By default it's value is ".".
func KeyDelimiter(d string) Option {
	return optionFunc(func(h *Loader) {
		h.keyDelim = d
	})
}

// EnvPrefix is prepended, with an underscore, to the names of bound
// environment variables.
func EnvPrefix(pfx string) Option {
	return optionFunc(func(h *Loader) {
		h.envPrefix = pfx
	})
}

// CaseSensitive controls whether keys are compared case sensitively.
func CaseSensitive(sensitive bool) Option {
	return optionFunc(func(h *Loader) {
		h.caseInsensitive = !sensitive
	})
}

// ConfigFile adds a file source. format is "yaml", "yml", "toml" or "json".
func ConfigFile(format, name string) Option {
	return optionFunc(func(h *Loader) {
		h.sources = append(h.sources, &File{filename: name, filetype: format})
	})
}

// New returns an initialized Loader.
func New(opts ...Option) *Loader {
	h := new(Loader)

	h.keyDelim = "."

	h.override = make(map[string]interface{})
	h.defaults = make(map[string]interface{})

	h.pflags = make(map[string]*pflag.Flag)
	h.env = make(map[string][]string)
	h.dotenv = make(map[string]string)

	for _, opt := range opts {
		opt.apply(h)
	}

	return h
}

//------------------------------------------------------------------------------

// AddConfigFile adds a file source with a higher priority than the sources
// added before it. It is read by Load.
func (h *Loader) AddConfigFile(format, filename string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if filename != "" {
		h.sources = append(h.sources,
			&File{
				filename: filename,
				filetype: format,
			})
	}
	h.invalidateCache()
}

// Files returns the file sources, lowest priority first.
func (h *Loader) Files() []*File {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var files []*File
	for _, s := range h.sources {
		if f, ok := s.(*File); ok {
			files = append(files, f)
		}
	}
	return files
}

// InConfig checks to see if the given key is set in any source.
func (h *Loader) InConfig(key string) bool {
	return h.Get(key) != nil
}

// SetDefault sets the default value for this key.
// Default only used when no value is provided by the user via flag, config or ENV.
func (h *Loader) SetDefault(key string, value interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key = h.casing(key)

	path := strings.Split(key, h.keyDelim)
	setKeyInMap(h.defaults, path, value)

	h.invalidateCache()
}

// Set sets the value for the key in the override register.
// Will be used instead of values obtained via
// flags, config file, ENV or default.
func (h *Loader) Set(key string, value interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key = h.casing(key)

	path := strings.Split(key, h.keyDelim)
	setKeyInMap(h.override, path, value)

	h.invalidateCache()
}

// Load (re)reads every source needing explicit loading, like files.
// A source failing to load keeps its previous values.
func (h *Loader) Load() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, s := range h.sources {
		if l, ok := s.(ConfigLoader); ok {
			err := l.Load()
			if err != nil {
				return err
			}
		}
	}

	h.invalidateCache()

	return nil
}

// AddConfigFrom will parse the data in the provided io.Reader
// and use it as a source with a higher priority than the ones before it.
func (h *Loader) AddConfigFrom(format string, in io.Reader) error {

	var data = make(map[string]interface{})

	err := unmarshalReader(format, in, data)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.sources = append(h.sources, &inMem{values: data})

	h.invalidateCache()

	return nil
}

// WriteConfigTo writes the merged configuration in the given format:
// "json", "yaml" or "toml".
func (h *Loader) WriteConfigTo(out io.Writer, format string) error {
	return h.marshalWriter(out, format)
}

// Marshal a map into Writer.
func (h *Loader) marshalWriter(out io.Writer, configType string) error {
	f := bufio.NewWriter(out)
	c := h.Config()
	switch configType {
	case "json":
		b, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return ConfigMarshalError{err}
		}
		_, err = f.WriteString(string(b))
		if err != nil {
			return ConfigMarshalError{err}
		}
	case "toml":
		t, err := toml.TreeFromMap(c)
		if err != nil {
			return ConfigMarshalError{err}
		}
		s, err := t.ToTomlString()
		if err != nil {
			return ConfigMarshalError{err}
		}
		if _, err := f.WriteString(s); err != nil {
			return ConfigMarshalError{err}
		}
	case "yaml", "yml":
		b, err := yaml.Marshal(c)
		if err != nil {
			return ConfigMarshalError{err}
		}
		if _, err = f.WriteString(string(b)); err != nil {
			return ConfigMarshalError{err}
		}
	default:
		return ConfigMarshalError{fmt.Errorf("Unknown configType: '%s'", configType)}
	}
	if err := f.Flush(); err != nil {
		return ConfigMarshalError{err}
	}
	return nil
}

// Config returns the merged configuration. The result is shared; do not
// modify it.
func (h *Loader) Config() map[string]interface{} {
	h.mu.RLock()
	c := h.configCache
	h.mu.RUnlock()
	if c != nil {
		return c
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.configCache == nil {
		h.configCache = h.mergeConfigs()
	}
	return h.configCache
}

func (h *Loader) mergeConfigs() (consolidated map[string]interface{}) {

	// merge in priority order - lowest first.
	consolidated = deepCopyMap(h.defaults, h.caseInsensitive)

	for _, s := range h.sources {
		mcopy := deepCopyMap(s.Values(), h.caseInsensitive)
		mergeMaps(consolidated, mcopy)
	}

	// Environment
	mergeMaps(consolidated, h.envBindings2configMap(h.env))

	// Flags
	mergeMaps(consolidated, h.flagBindings2configMap(h.pflags))

	// Override
	mcopy := deepCopyMap(h.override, h.caseInsensitive)
	mergeMaps(consolidated, mcopy)

	return
}
