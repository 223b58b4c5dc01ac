// Package config loads orderload settings from a config file and CLI flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// lookupSetting returns the first candidate key present in settings. viper
// lowercases keys, so each candidate is also tried in lowercase.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		if val, ok := settings[key]; ok {
			return val, true
		}
		if val, ok := settings[strings.ToLower(key)]; ok {
			return val, true
		}
	}
	return nil, false
}

func asString(value interface{}) (string, error) {
	if value == nil {
		return "", nil
	}
	return cast.ToStringE(value)
}

func asInt(value interface{}) (int, error) {
	if s, ok := value.(string); ok {
		if strings.TrimSpace(s) == "" {
			return 0, nil
		}
		value = strings.TrimSpace(s)
	}
	return cast.ToIntE(value)
}

func asInt64(value interface{}) (int64, error) {
	if s, ok := value.(string); ok {
		if strings.TrimSpace(s) == "" {
			return 0, nil
		}
		value = strings.TrimSpace(s)
	}
	return cast.ToInt64E(value)
}

func asFloat64(value interface{}) (float64, error) {
	if s, ok := value.(string); ok {
		if strings.TrimSpace(s) == "" {
			return 0, nil
		}
		value = strings.TrimSpace(s)
	}
	return cast.ToFloat64E(value)
}

func asBool(value interface{}) (bool, error) {
	if s, ok := value.(string); ok {
		if strings.TrimSpace(s) == "" {
			return false, nil
		}
		value = strings.TrimSpace(s)
	}
	return cast.ToBoolE(value)
}

// asDuration accepts Go duration strings. Bare numbers are seconds, so a
// YAML "duration: 30" means 30s rather than 30ns.
func asDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		return time.ParseDuration(v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		secs, err := cast.ToInt64E(v)
		if err != nil {
			return 0, err
		}
		return time.Duration(secs) * time.Second, nil
	case float32, float64:
		secs, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, err
		}
		return time.Duration(secs * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("unsupported duration type %T", value)
	}
}

func asStringMap(value interface{}) (map[string]string, error) {
	if value == nil {
		return nil, nil
	}
	m, err := cast.ToStringMapStringE(value)
	if err != nil {
		return nil, err
	}
	for key := range m {
		if strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("header key cannot be empty")
		}
	}
	return m, nil
}

func asStringSlice(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	default:
		return cast.ToStringSliceE(value)
	}
}

func toInterfaceSlice(value interface{}) ([]interface{}, error) {
	if value == nil {
		return nil, nil
	}
	items, err := cast.ToSliceE(value)
	if err != nil {
		return nil, fmt.Errorf("expected list, got %T", value)
	}
	return items, nil
}

// toStringKeyMap normalizes map keys to trimmed lowercase.
func toStringKeyMap(value interface{}) (map[string]interface{}, error) {
	raw, err := cast.ToStringMapE(value)
	if err != nil {
		return nil, fmt.Errorf("expected map, got %T", value)
	}
	result := make(map[string]interface{}, len(raw))
	for key, val := range raw {
		result[strings.ToLower(strings.TrimSpace(key))] = val
	}
	return result, nil
}
