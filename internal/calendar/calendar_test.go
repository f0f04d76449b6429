package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndNextOccurrence(t *testing.T) {
	cal, err := Parse("0 9 1 * *")
	require.NoError(t, err)

	from := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	next := cal.NextOccurrence(from)
	assert.Equal(t, time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC), next)
}

func TestParseDescriptors(t *testing.T) {
	for _, spec := range []string{"@monthly", "@weekly", "@daily", "@every 720h"} {
		cal, err := Parse(spec)
		require.NoError(t, err, spec)
		assert.Equal(t, spec, cal.String())
		assert.True(t, cal.NextOccurrence(time.Now()).After(time.Now()))
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, spec := range []string{"", "   ", "not a schedule", "99 99 99 99 99"} {
		_, err := Parse(spec)
		assert.Error(t, err, spec)
	}
}

func TestHumanReadable(t *testing.T) {
	assert.Equal(t, "once a month", MustParse("@monthly").HumanReadable())
	assert.Equal(t, "every 720h", MustParse("@every 720h").HumanReadable())
	assert.Equal(t, "on schedule 0 9 1 * *", MustParse("0 9 1 * *").HumanReadable())
}

func TestEqual(t *testing.T) {
	assert.True(t, MustParse("@monthly").Equal(MustParse("@monthly")))
	assert.False(t, MustParse("@monthly").Equal(MustParse("@weekly")))
	assert.False(t, MustParse("@monthly").Equal(nil))
}
