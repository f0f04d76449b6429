package tasks

import (
	"fmt"
	"time"

	"walletqueue/internal/calendar"
)

// Positional argument accessors used by the decode table. Decoded argument
// lists carry int64 for integral numbers and typed values for bigints and
// calendars, so a wrong slot is a hard reconstruction error.

// argString ...
func argString(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing argument %d", i)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("argument %d is %T, want string", i, args[i])
	}
	return s, nil
}

// argInt64 ...
func argInt64(args []any, i int) (int64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing argument %d", i)
	}
	switch n := args[i].(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	}
	return 0, fmt.Errorf("argument %d is %T, want integer", i, args[i])
}

// argDeadline reads a unix-millis deadline slot; 0 means no deadline.
func argDeadline(args []any, i int) (*time.Time, error) {
	ms, err := argInt64(args, i)
	if err != nil {
		return nil, err
	}
	if ms == 0 {
		return nil, nil
	}
	t := time.UnixMilli(ms)
	return &t, nil
}

// argCalendar ...
func argCalendar(args []any, i int) (*calendar.Calendar, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("missing argument %d", i)
	}
	c, ok := args[i].(*calendar.Calendar)
	if !ok {
		return nil, fmt.Errorf("argument %d is %T, want calendar", i, args[i])
	}
	return c, nil
}
