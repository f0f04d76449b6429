// Package codec converts task arguments and results to and from the string
// form kept in the persistent queue and the result cache. The representable
// universe is plain JSON values plus big integers and recurrence calendars;
// anything else, functions in particular, is an encoding error.
package codec

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"walletqueue/internal/calendar"
)

// Non-JSON-native values are stored as tagged objects so decoding never has
// to guess from string shape: {"$":"bigint","v":"123"}. A user-supplied map
// that happens to contain a "$" key is wrapped the same way ("$":"obj") so
// it survives the round trip untouched.
const (
	tagField    = "$"
	valField    = "v"
	tagBigInt   = "bigint"
	tagCalendar = "calendar"
	tagObject   = "obj"
	tagString   = "str"
)

// Records written before the tagged encoding used bare suffix/prefix forms.
// Decode still accepts them; the bigint form is bounded to 32 runes, as the
// legacy writer bounded it, to limit false positives on payload strings.
const (
	legacyBigIntMaxLen   = 32
	legacyCalendarPrefix = "CalendarInterface("
)

// Encode serializes an ordered argument list.
func Encode(args []any) (string, error) {
	return EncodeValue(args)
}

// Decode reverses Encode.
func Decode(s string) ([]any, error) {
	v, err := DecodeValue(s)
	if err != nil {
		return nil, err
	}
	args, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("decoded arguments are %T, want list", v)
	}
	return args, nil
}

// EncodeValue serializes a single value (typically a task result).
func EncodeValue(v any) (string, error) {
	enc, err := toEncodable(v)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(enc)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(raw), nil
}

// DecodeValue reverses EncodeValue.
func DecodeValue(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return revive(v, true)
}

func toEncodable(v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, float64, json.Number:
		return val, nil
	case string:
		// A plain string that happens to match a legacy encoding would be
		// misrevived by the compatibility sniffing on decode, so it is
		// escaped behind a tag and round-trips as the string it is.
		if isLegacyShaped(val) {
			return map[string]any{tagField: tagString, valField: val}, nil
		}
		return val, nil
	case int:
		return int64(val), nil
	case int64:
		return val, nil
	case *big.Int:
		return map[string]any{tagField: tagBigInt, valField: val.String()}, nil
	case *calendar.Calendar:
		return map[string]any{tagField: tagCalendar, valField: val.String()}, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			enc, err := toEncodable(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = enc
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			enc, err := toEncodable(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			out[k] = enc
		}
		if _, clash := val[tagField]; clash {
			return map[string]any{tagField: tagObject, valField: out}, nil
		}
		return out, nil
	default:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Func {
			return nil, fmt.Errorf("function values cannot be serialized")
		}
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// revive walks a freshly unmarshaled tree restoring typed values.
// interpretTag is false for the payload of an "obj" wrapper, whose own "$"
// key belongs to the caller.
func revive(v any, interpretTag bool) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if interpretTag {
			if tagged, ok, err := reviveTagged(val); ok || err != nil {
				return tagged, err
			}
		}
		out := make(map[string]any, len(val))
		for k, elem := range val {
			dec, err := revive(elem, true)
			if err != nil {
				return nil, err
			}
			out[k] = dec
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			dec, err := revive(elem, true)
			if err != nil {
				return nil, err
			}
			out[i] = dec
		}
		return out, nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", val.String())
		}
		return f, nil
	case string:
		return reviveLegacyString(val), nil
	default:
		return val, nil
	}
}

func reviveTagged(m map[string]any) (any, bool, error) {
	tag, ok := m[tagField].(string)
	if !ok || len(m) != 2 {
		return nil, false, nil
	}
	switch tag {
	case tagBigInt:
		digits, ok := m[valField].(string)
		if !ok {
			return nil, false, fmt.Errorf("bigint value is not a string")
		}
		n, ok := new(big.Int).SetString(digits, 10)
		if !ok {
			return nil, false, fmt.Errorf("invalid bigint %q", digits)
		}
		return n, true, nil
	case tagCalendar:
		spec, ok := m[valField].(string)
		if !ok {
			return nil, false, fmt.Errorf("calendar value is not a string")
		}
		cal, err := calendar.Parse(spec)
		if err != nil {
			return nil, false, err
		}
		return cal, true, nil
	case tagObject:
		inner, ok := m[valField].(map[string]any)
		if !ok {
			return nil, false, fmt.Errorf("obj value is not an object")
		}
		return reviveUntagged(inner)
	case tagString:
		s, ok := m[valField].(string)
		if !ok {
			return nil, false, fmt.Errorf("str value is not a string")
		}
		return s, true, nil
	}
	return nil, false, nil
}

func reviveUntagged(m map[string]any) (any, bool, error) {
	out := make(map[string]any, len(m))
	for k, elem := range m {
		dec, err := revive(elem, true)
		if err != nil {
			return nil, false, err
		}
		out[k] = dec
	}
	return out, true, nil
}

// reviveLegacyString restores pre-tagged encodings. A value that fails the
// legacy checks is just a string and passes through unchanged.
func reviveLegacyString(s string) any {
	if isLegacyBigInt(s) {
		if n, ok := new(big.Int).SetString(s[:len(s)-1], 10); ok {
			return n
		}
	}
	if strings.HasPrefix(s, legacyCalendarPrefix) && strings.HasSuffix(s, ")") {
		spec := s[len(legacyCalendarPrefix) : len(s)-1]
		if cal, err := calendar.Parse(spec); err == nil {
			return cal
		}
	}
	return s
}

// isLegacyShaped reports whether a plain string would collide with one of
// the legacy encodings on decode.
func isLegacyShaped(s string) bool {
	return isLegacyBigInt(s) ||
		(strings.HasPrefix(s, legacyCalendarPrefix) && strings.HasSuffix(s, ")"))
}

func isLegacyBigInt(s string) bool {
	if len(s) < 2 || len(s) > legacyBigIntMaxLen || s[len(s)-1] != 'n' {
		return false
	}
	for _, r := range s[:len(s)-1] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
