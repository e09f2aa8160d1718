package config

import (
	"encoding/csv"
	"strings"

	"github.com/spf13/cast"
)

// toStringMap normalizes the nested map types the decoders produce.
// yaml.v2 gives map[interface{}]interface{}.
func toStringMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		return cast.ToStringMap(m), true
	}
	return nil, false
}

// deepCopyMap copies nested maps, normalizing them and optionally
// lowercasing their keys. Leaf values are shared.
func deepCopyMap(src map[string]interface{}, lower bool) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		if lower {
			k = strings.ToLower(k)
		}
		if m, ok := toStringMap(v); ok {
			v = deepCopyMap(m, lower)
		}
		dst[k] = v
	}
	return dst
}

// mergeMaps merges src into dst. Values of src win, except that two maps
// under the same key are merged recursively.
func mergeMaps(dst, src map[string]interface{}) {
	for k, sv := range src {
		sm, sIsMap := toStringMap(sv)
		dm, dIsMap := toStringMap(dst[k])
		if sIsMap && dIsMap {
			mergeMaps(dm, sm)
			dst[k] = dm
			continue
		}
		dst[k] = sv
	}
}

// setKeyInMap sets value at path, creating intermediate maps and replacing
// non-map values in the way.
func setKeyInMap(m map[string]interface{}, path []string, value interface{}) {
	for _, k := range path[:len(path)-1] {
		next, ok := toStringMap(m[k])
		if !ok {
			next = make(map[string]interface{})
		}
		m[k] = next
		m = next
	}
	m[path[len(path)-1]] = value
}

// searchMap returns the value at path or nil.
func searchMap(source map[string]interface{}, path []string) interface{} {
	if len(path) == 0 {
		return source
	}
	next, ok := source[path[0]]
	if !ok {
		return nil
	}
	if len(path) == 1 {
		return next
	}
	m, ok := toStringMap(next)
	if !ok {
		return nil
	}
	return searchMap(m, path[1:])
}

// stringToStringConv parses the "[a=1,b=2]" format of pflag's
// stringToString values.
func stringToStringConv(val string) interface{} {
	val = strings.Trim(val, "[]")
	// An empty string would cause an empty map
	if len(val) == 0 {
		return map[string]interface{}{}
	}
	r := csv.NewReader(strings.NewReader(val))
	ss, err := r.Read()
	if err != nil {
		return nil
	}
	out := make(map[string]interface{}, len(ss))
	for _, pair := range ss {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil
		}
		out[kv[0]] = kv[1]
	}
	return out
}
