package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// ErrUnknownKey is returned for a dotted key that names no Config field.
var ErrUnknownKey = errors.New("unknown config key")

// secretKeys are masked when listed or printed.
var secretKeys = map[string]bool{
	"llm.api_key":    true,
	"telegram.token": true,
}

// choices restricts string keys to a fixed set of values.
var choices = map[string][]string{
	"log_level":       {"debug", "info", "warn", "error"},
	"storage.backend": {"file", "sqlite", "memory"},
}

func IsSecretKey(key string) bool {
	return secretKeys[key]
}

// Keys returns every settable key, sorted.
func Keys() []string {
	var keys []string
	walk(reflect.ValueOf(Defaults()).Elem(), "", func(key string, _ reflect.Value) {
		keys = append(keys, key)
	})
	sort.Strings(keys)
	return keys
}

// walk calls fn for every leaf field of the struct v under its dotted
// JSON path, e.g. "llm.base_url".
func walk(v reflect.Value, prefix string, fn func(key string, field reflect.Value)) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		if f := v.Field(i); f.Kind() == reflect.Struct {
			walk(f, name, fn)
		} else {
			fn(name, f)
		}
	}
}

func lookup(cfg *Config, key string) (reflect.Value, error) {
	var found reflect.Value
	walk(reflect.ValueOf(cfg).Elem(), "", func(k string, f reflect.Value) {
		if k == key {
			found = f
		}
	})
	if !found.IsValid() {
		return reflect.Value{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return found, nil
}

// Values returns every field of cfg keyed by its dotted path.
func Values(cfg *Config) map[string]any {
	out := make(map[string]any)
	walk(reflect.ValueOf(cfg).Elem(), "", func(k string, f reflect.Value) {
		out[k] = f.Interface()
	})
	return out
}

// Assign parses raw as the type of the field under key and stores it in cfg.
func Assign(cfg *Config, key, raw string) error {
	f, err := lookup(cfg, key)
	if err != nil {
		return err
	}
	switch f.Kind() {
	case reflect.String:
		if err := checkChoice(key, raw); err != nil {
			return err
		}
		f.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s expects true or false, got %q", key, raw)
		}
		f.SetBool(b)
	case reflect.Int:
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return fmt.Errorf("%s expects a non-negative integer, got %q", key, raw)
		}
		f.SetInt(int64(n))
	case reflect.Float32, reflect.Float64:
		x, err := strconv.ParseFloat(raw, f.Type().Bits())
		if err != nil {
			return fmt.Errorf("%s expects a number, got %q", key, raw)
		}
		f.SetFloat(x)
	default:
		return fmt.Errorf("%s has unsupported type %s", key, f.Type())
	}
	return nil
}

func checkChoice(key, value string) error {
	allowed, ok := choices[key]
	if !ok || slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), value)
}

// Validate checks the keys that only accept a fixed set of values.
func (c *Config) Validate() error {
	values := Values(c)
	for key := range choices {
		if err := checkChoice(key, values[key].(string)); err != nil {
			return err
		}
	}
	return nil
}

// MaskSecrets returns a copy of values with secrets reduced to their last
// four characters.
func MaskSecrets(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if s, ok := v.(string); ok && secretKeys[k] {
			v = mask(s)
		}
		out[k] = v
	}
	return out
}

func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "***" + s
	}
	return "***" + s[len(s)-4:]
}
