package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/subosito/gotenv"
)

// SetEnvKeyReplacer sets the strings.Replacer.
// Useful for mapping an environmental variable to a key that does
// not match it.
func (h *Loader) SetEnvKeyReplacer(r *strings.Replacer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.envKeyReplacer = r
	h.invalidateCache()
}

// BindEnv binds a key to a ENV variable.
// ENV variables are case sensitive.
// If only a key is provided, it will use the env key matching the key, uppercased.
// If more arguments are provided, they will represent the env variable names that
// should bind to this key and will be taken in the specified order.
// EnvPrefix will be used when set when env name is not provided.
func (h *Loader) BindEnv(input ...string) error {
	if len(input) == 0 {
		return fmt.Errorf("missing key to bind to")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	key := h.casing(input[0])

	if len(input) == 1 {
		// Only key provided, convert it to an ENV var name
		h.env[key] = append(h.env[key], h.withEnvPrefix(key))
	} else {
		// Take the provided names verbatim.
		h.env[key] = append(h.env[key], input[1:]...)
	}

	h.invalidateCache()
	return nil
}

// LoadDotEnv reads variables from .env style files. They are used for bound
// keys whose variable is not set in the process environment, which is left
// untouched.
func (h *Loader) LoadDotEnv(filenames ...string) error {
	env, err := gotenv.Read(filenames...)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for k, v := range env {
		h.dotenv[k] = v
	}
	h.invalidateCache()
	return nil
}

func (h *Loader) withEnvPrefix(in string) string {
	in = strings.ReplaceAll(in, h.keyDelim, "_")
	if h.envPrefix != "" {
		return strings.ToUpper(h.envPrefix + "_" + in)
	}

	return strings.ToUpper(in)
}

// getEnv is a wrapper around os.LookupEnv which replaces characters in the original
// key. This allows env vars which have different keys than the config object
// keys.
func (h *Loader) getEnv(key string) (string, bool) {
	if h.envKeyReplacer != nil {
		key = h.envKeyReplacer.Replace(key)
	}

	val, ok := os.LookupEnv(key)
	if !ok {
		val, ok = h.dotenv[key]
	}

	return val, ok && (h.allowEmptyEnv || val != "")
}

// AllowEmptyEnv tells the Loader to consider set,
// but empty environment variables as valid values instead of falling back.
// For backward compatibility reasons this is false by default.
func (h *Loader) AllowEmptyEnv(allowEmptyEnv bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.allowEmptyEnv = allowEmptyEnv
	h.invalidateCache()
}

// envBindings2configMap reads the bound variables. The first set variable
// of a key wins.
func (h *Loader) envBindings2configMap(bindings map[string][]string) map[string]interface{} {
	result := make(map[string]interface{})
	for key, names := range bindings {
		for _, name := range names {
			if val, ok := h.getEnv(name); ok {
				setKeyInMap(result, strings.Split(key, h.keyDelim), val)
				break
			}
		}
	}
	return result
}
