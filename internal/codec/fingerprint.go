package codec

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"walletqueue/internal/calendar"
)

// Fingerprint canonicalizes an ordered argument list into a stable SHA-256
// hex digest. Two argument lists that are deep-equal by value hash to the
// same fingerprint regardless of how they were constructed.
//
// Canonical form: every leaf is addressed by a dotted path rooted at the
// argument's position ("0.recipient.key"). Array indices are path segments,
// so reordering array elements changes the digest; object field order does
// not, because leaf paths are sorted before hashing.
func Fingerprint(args []any) (string, error) {
	leaves := make(map[string]string)
	for i, arg := range args {
		if err := flatten(strconv.Itoa(i), arg, leaves); err != nil {
			return "", err
		}
	}

	paths := make([]string, 0, len(leaves))
	for p := range leaves {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		io.WriteString(h, p)
		h.Write([]byte{0})
		io.WriteString(h, leaves[p])
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// flatten records a leaf rendering for every scalar reachable from v.
// Strings are quoted so `"5"` and `5` cannot collide, and typed leaves
// (bigint, calendar) carry a prefix for the same reason.
func flatten(path string, v any, out map[string]string) error {
	switch val := v.(type) {
	case nil:
		out[path] = "null"
	case bool:
		out[path] = strconv.FormatBool(val)
	case string:
		out[path] = strconv.Quote(val)
	case int:
		out[path] = strconv.FormatInt(int64(val), 10)
	case int64:
		out[path] = strconv.FormatInt(val, 10)
	case float64:
		out[path] = strconv.FormatFloat(val, 'g', -1, 64)
	case json.Number:
		out[path] = val.String()
	case *big.Int:
		out[path] = "bigint:" + val.String()
	case *calendar.Calendar:
		out[path] = "calendar:" + val.String()
	case []any:
		if len(val) == 0 {
			out[path] = "[]"
			return nil
		}
		for i, elem := range val {
			if err := flatten(path+"."+strconv.Itoa(i), elem, out); err != nil {
				return err
			}
		}
	case map[string]any:
		if len(val) == 0 {
			out[path] = "{}"
			return nil
		}
		for k, elem := range val {
			if err := flatten(path+"."+escapeSegment(k), elem, out); err != nil {
				return err
			}
		}
	default:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Func {
			return fmt.Errorf("function value at %s is not a valid task argument", path)
		}
		return fmt.Errorf("unsupported argument type %T at %s", v, path)
	}
	return nil
}

// escapeSegment backslash-escapes separator characters in a field name, so
// a key containing a literal "." cannot collide with a nested path.
func escapeSegment(s string) string {
	if !strings.ContainsAny(s, `.\`) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, ".", `\.`)
}
