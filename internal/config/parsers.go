package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// lookupSetting returns the first candidate key present in settings, trying
// each key as written and then lowercased.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		for _, k := range []string{key, strings.ToLower(key)} {
			if val, ok := settings[k]; ok {
				return val, true
			}
		}
	}
	return nil, false
}

func blank(value interface{}) bool {
	s, ok := value.(string)
	return value == nil || (ok && strings.TrimSpace(s) == "")
}

func asString(value interface{}) (string, error) {
	if s, ok := value.(fmt.Stringer); ok {
		return s.String(), nil
	}
	s, err := cast.ToStringE(value)
	if err != nil {
		return fmt.Sprint(value), nil
	}
	return s, nil
}

// asInt accepts any numeric type or a decimal string. Blank means zero.
func asInt(value interface{}) (int, error) {
	if blank(value) {
		return 0, nil
	}
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
	}
	if _, ok := value.(bool); ok {
		return 0, fmt.Errorf("unsupported numeric type %T", value)
	}
	return cast.ToIntE(value)
}

func asBool(value interface{}) (bool, error) {
	if blank(value) {
		return false, nil
	}
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		return cast.ToBoolE(strings.TrimSpace(v))
	default:
		return false, fmt.Errorf("unsupported boolean type %T", value)
	}
}

// asDuration parses strings with time.ParseDuration. Bare numbers are seconds.
func asDuration(value interface{}) (time.Duration, error) {
	if blank(value) {
		return 0, nil
	}
	switch v := value.(type) {
	case time.Duration:
		return v, nil
	case string:
		return time.ParseDuration(strings.TrimSpace(v))
	case bool:
		return 0, fmt.Errorf("unsupported duration type %T", value)
	}
	secs, err := cast.ToFloat64E(value)
	if err != nil {
		return 0, fmt.Errorf("unsupported duration type %T", value)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// asStringMap flattens a header-style table into string values.
func asStringMap(value interface{}) (map[string]string, error) {
	if value == nil {
		return nil, nil
	}
	if _, ok := value.(string); ok {
		return nil, fmt.Errorf("unsupported map type %T", value)
	}
	m, err := cast.ToStringMapStringE(value)
	if err != nil {
		return nil, fmt.Errorf("unsupported map type %T", value)
	}
	for k := range m {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("map key cannot be empty")
		}
	}
	return m, nil
}

// toStringKeyMap returns a nested config section with lowercased keys.
func toStringKeyMap(value interface{}) (map[string]interface{}, error) {
	if _, ok := value.(string); ok {
		return nil, fmt.Errorf("expected map, got %T", value)
	}
	m, err := cast.ToStringMapE(value)
	if err != nil || value == nil {
		return nil, fmt.Errorf("expected map, got %T", value)
	}
	section := make(map[string]interface{}, len(m))
	for key, val := range m {
		section[strings.ToLower(strings.TrimSpace(key))] = val
	}
	return section, nil
}

// asStringSlice accepts a list or a single entry. A lone string is never
// split, since threshold expressions contain spaces.
func asStringSlice(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []string, []interface{}:
		return cast.ToStringSliceE(v)
	default:
		return nil, fmt.Errorf("unsupported string slice type %T", value)
	}
}
