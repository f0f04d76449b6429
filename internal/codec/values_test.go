package codec

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walletqueue/internal/calendar"
)

func roundTrip(t *testing.T, v any) any {
	t.Helper()
	encoded, err := EncodeValue(v)
	require.NoError(t, err)
	decoded, err := DecodeValue(encoded)
	require.NoError(t, err)
	return decoded
}

func TestRoundTripPlainValues(t *testing.T) {
	tests := []struct {
		name string
		v    any
	}{
		{"string", "hello"},
		{"int", int64(42)},
		{"float", 1.5},
		{"bool", true},
		{"null", nil},
		{"array", []any{"a", int64(1), false}},
		{"object", map[string]any{"k": "v", "n": int64(7)}},
		{"nested", map[string]any{"outer": map[string]any{"inner": []any{int64(1), "two"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.v, roundTrip(t, tt.v))
		})
	}
}

func TestRoundTripBigInt(t *testing.T) {
	n, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)

	decoded := roundTrip(t, n)
	got, isBig := decoded.(*big.Int)
	require.True(t, isBig, "decoded value is %T, want *big.Int", decoded)
	assert.Zero(t, n.Cmp(got))

	// The concrete encoding stays tagged, not suffix-based.
	encoded, err := EncodeValue(big.NewInt(123))
	require.NoError(t, err)
	assert.JSONEq(t, `{"$":"bigint","v":"123"}`, encoded)
}

func TestRoundTripCalendar(t *testing.T) {
	cal := calendar.MustParse("@monthly")
	decoded := roundTrip(t, cal)
	got, isCal := decoded.(*calendar.Calendar)
	require.True(t, isCal, "decoded value is %T, want *calendar.Calendar", decoded)
	assert.True(t, cal.Equal(got))
}

func TestRoundTripNestedTypedValues(t *testing.T) {
	v := map[string]any{
		"amount":   big.NewInt(21),
		"schedule": calendar.MustParse("0 9 1 * *"),
		"note":     "monthly rent",
	}
	decoded := roundTrip(t, v)
	m, ok := decoded.(map[string]any)
	require.True(t, ok)
	assert.Zero(t, big.NewInt(21).Cmp(m["amount"].(*big.Int)))
	assert.Equal(t, "0 9 1 * *", m["schedule"].(*calendar.Calendar).String())
	assert.Equal(t, "monthly rent", m["note"])
}

func TestEncodeRejectsFunctions(t *testing.T) {
	_, err := EncodeValue(map[string]any{"f": func() {}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "function")

	_, err = Encode([]any{"ok", []any{func() {}}})
	require.Error(t, err)
}

func TestNumericStringsStayStrings(t *testing.T) {
	// Strings that happen to match a legacy encoding are escaped behind a
	// tag on encode, so every plain string round-trips as itself.
	tests := []string{
		"123n",
		"123456789012345678901234567890123n",
		"12x3n",
		"123",
		"CalendarInterface(@weekly)",
	}
	for _, s := range tests {
		assert.Equal(t, s, roundTrip(t, s), s)
	}

	// The escape is only applied where needed.
	encoded, err := EncodeValue("123n")
	require.NoError(t, err)
	assert.JSONEq(t, `{"$":"str","v":"123n"}`, encoded)

	encoded, err = EncodeValue("hello")
	require.NoError(t, err)
	assert.Equal(t, `"hello"`, encoded)
}

func TestLegacyDecodeForms(t *testing.T) {
	decoded, err := DecodeValue(`"123n"`)
	require.NoError(t, err)
	got, ok := decoded.(*big.Int)
	require.True(t, ok)
	assert.Zero(t, big.NewInt(123).Cmp(got))

	decoded, err = DecodeValue(`"CalendarInterface(@weekly)"`)
	require.NoError(t, err)
	cal, ok := decoded.(*calendar.Calendar)
	require.True(t, ok)
	assert.Equal(t, "@weekly", cal.String())

	// Unparseable calendar payloads fall back to the raw string.
	decoded, err = DecodeValue(`"CalendarInterface(not a schedule)"`)
	require.NoError(t, err)
	assert.Equal(t, "CalendarInterface(not a schedule)", decoded)
}

func TestDollarKeyMapSurvives(t *testing.T) {
	v := map[string]any{"$": "literal", "v": "payload"}
	assert.Equal(t, v, roundTrip(t, v))
}

func TestDecodeArgumentsShape(t *testing.T) {
	encoded, err := Encode([]any{"event-1", int64(5)})
	require.NoError(t, err)
	args, err := Decode(encoded)
	require.NoError(t, err)
	require.Len(t, args, 2)
	assert.Equal(t, "event-1", args[0])
	assert.Equal(t, int64(5), args[1])

	_, err = Decode(`{"not":"a list"}`)
	require.Error(t, err)
}
