package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
)

// BindPFlag makes an explicitly given flag override key. A flag left at its
// default does not hide the lower priority sources.
//
//	flags.Duration("console.period", time.Minute, "console report period")
//	loader.BindPFlag("console.period", flags.Lookup("console.period"))
func (h *Loader) BindPFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("flag for %q is nil", key)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pflags[h.casing(key)] = flag
	h.invalidateCache()
	return nil
}

// BindPFlags binds every flag of the set under its long name.
func (h *Loader) BindPFlags(flags *pflag.FlagSet) (err error) {
	flags.VisitAll(func(f *pflag.Flag) {
		if err == nil {
			err = h.BindPFlag(f.Name, f)
		}
	})
	return err
}

// flagBindings2configMap nests the values of the flags given on the command
// line under their keys.
func (h *Loader) flagBindings2configMap(bindings map[string]*pflag.Flag) map[string]interface{} {
	result := make(map[string]interface{})
	for key, f := range bindings {
		if f.Changed {
			setKeyInMap(result, strings.Split(key, h.keyDelim), flagValue(f))
		}
	}
	return result
}

// flagValue converts a flag to the type of its key, leaving durations and
// such to the decode hooks.
func flagValue(f *pflag.Flag) interface{} {
	if sv, ok := f.Value.(pflag.SliceValue); ok {
		return sv.GetSlice()
	}
	s := f.Value.String()
	switch f.Value.Type() {
	case "bool":
		return cast.ToBool(s)
	case "int", "int8", "int16", "int32", "int64":
		return cast.ToInt64(s)
	case "uint", "uint8", "uint16", "uint32", "uint64":
		return cast.ToUint64(s)
	case "float32", "float64":
		return cast.ToFloat64(s)
	case "stringToString":
		return stringToStringConv(s)
	}
	return s
}

// AddTelemetryFlags defines one flag per Telemetry key, named like the key
// and defaulting to the key's default.
func AddTelemetryFlags(fs *pflag.FlagSet) {
	keys := TelemetryKeys()
	sort.Strings(keys)
	for _, k := range keys {
		usage := telemetryUsage[k]
		switch v := telemetryDefaults[k].(type) {
		case bool:
			fs.Bool(k, v, usage)
		case int:
			fs.Int(k, v, usage)
		case float64:
			fs.Float64(k, v, usage)
		case string:
			fs.String(k, v, usage)
		case time.Duration:
			fs.Duration(k, v, usage)
		}
	}
}

// BindTelemetryFlags binds the flags of fs named after Telemetry keys and
// ignores the others.
func BindTelemetryFlags(l *Loader, fs *pflag.FlagSet) error {
	for _, k := range TelemetryKeys() {
		if f := fs.Lookup(k); f != nil {
			if err := l.BindPFlag(k, f); err != nil {
				return err
			}
		}
	}
	return nil
}
