// Package env writes config structs back out as .env files.
package env

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var durationType = reflect.TypeOf(time.Duration(0))

// ToMap collects the env-tagged fields of the struct c points to. Empty
// strings and nil values are left out.
func ToMap(c any) (map[string]string, error) {
	v := reflect.ValueOf(c)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("env: expected pointer to struct, got %T", c)
	}
	v = v.Elem()
	t := v.Type()

	out := make(map[string]string)
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		// "KEY,required,notEmpty" or "KEY"
		key, _, _ := strings.Cut(field.Tag.Get("env"), ",")
		if key == "" {
			continue
		}

		val := v.Field(i)
		if isEmpty(val) {
			continue
		}
		out[key] = formatValue(val)
	}
	return out, nil
}

// Marshal renders the fields of every config in cs as sorted KEY=value
// lines. Later configs win on duplicate keys.
func Marshal(cs ...any) (string, error) {
	merged := make(map[string]string)
	for _, c := range cs {
		m, err := ToMap(c)
		if err != nil {
			return "", err
		}
		for k, val := range m {
			merged[k] = val
		}
	}

	keys := slices.Sorted(maps.Keys(merged))
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		line, err := encodeLine(k, merged[k])
		if err != nil {
			return "", err
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return "", nil
	}
	return strings.Join(lines, "\n") + "\n", nil
}

// encodeLine picks the first form that godotenv reads back unchanged. The
// double-quoted form loses quotes at the end of a value, so single quotes are
// tried next.
func encodeLine(key, val string) (string, error) {
	quoted, err := godotenv.Marshal(map[string]string{key: val})
	if err != nil {
		return "", err
	}

	for _, line := range []string{quoted, key + "='" + val + "'"} {
		parsed, err := godotenv.Unmarshal(line)
		if err == nil && parsed[key] == val {
			return line, nil
		}
	}
	return "", fmt.Errorf("env: value of %s cannot be written to a .env file", key)
}

func isEmpty(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String:
		return v.String() == ""
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
		return v.IsNil()
	default:
		return false
	}
}

func formatValue(v reflect.Value) string {
	if v.Type() == durationType {
		return time.Duration(v.Int()).String()
	}

	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'f', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Slice:
		parts := make([]string, v.Len())
		for i := range parts {
			parts[i] = formatValue(v.Index(i))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}
