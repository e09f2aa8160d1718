package config

import (
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Get can retrieve any value given the key to use.
// Get has the behavior of returning the value associated with the first
// place from where it is set. The Loader will check in the following order:
// override, flag, env, config file, default
//
// Get returns an interface. For a specific value use one of the Get____ methods.
func (h *Loader) Get(key string) interface{} {
	key = h.casing(key)
	path := strings.Split(key, h.keyDelim)
	return searchMap(h.Config(), path)
}

// GetString returns the value associated with the key as a string.
func (h *Loader) GetString(key string) string {
	return cast.ToString(h.Get(key))
}

// GetBool returns the value associated with the key as a boolean.
func (h *Loader) GetBool(key string) bool {
	return cast.ToBool(h.Get(key))
}

// GetInt returns the value associated with the key as an integer.
func (h *Loader) GetInt(key string) int {
	return cast.ToInt(h.Get(key))
}

// GetInt64 returns the value associated with the key as an integer.
func (h *Loader) GetInt64(key string) int64 {
	return cast.ToInt64(h.Get(key))
}

// GetFloat64 returns the value associated with the key as a float64.
func (h *Loader) GetFloat64(key string) float64 {
	return cast.ToFloat64(h.Get(key))
}

// GetDuration returns the value associated with the key as a duration.
func (h *Loader) GetDuration(key string) time.Duration {
	return cast.ToDuration(h.Get(key))
}

// GetStringSlice returns the value associated with the key as a slice of strings.
func (h *Loader) GetStringSlice(key string) []string {
	return cast.ToStringSlice(h.Get(key))
}

// GetStringMap returns the value associated with the key as a map of interfaces.
func (h *Loader) GetStringMap(key string) map[string]interface{} {
	return cast.ToStringMap(h.Get(key))
}
