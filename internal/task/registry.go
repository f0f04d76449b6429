package task

import (
	"errors"
	"fmt"

	"walletqueue/internal/codec"
)

// ErrUnknownTask means a persisted record names a task kind the registry
// was not built with. The record is permanently undecodable.
var ErrUnknownTask = errors.New("unknown task name")

// DecodeFunc reconstructs a task from its decoded argument list.
type DecodeFunc func(args []any) (Task, error)

// Registry maps task names to decoders. It is built once at bootstrap from
// an explicit table (see tasks.All) rather than import-time side effects,
// so a task kind can never be silently unregistered.
type Registry struct {
	decoders map[string]DecodeFunc
}

// NewRegistry ...
func NewRegistry(decoders map[string]DecodeFunc) *Registry {
	copied := make(map[string]DecodeFunc, len(decoders))
	for name, decode := range decoders {
		copied[name] = decode
	}
	return &Registry{decoders: copied}
}

// Known reports whether the registry can decode the named task kind.
func (r *Registry) Known(taskName string) bool {
	_, ok := r.decoders[taskName]
	return ok
}

// Decode reconstructs a task instance from its persisted name and
// codec-encoded arguments.
func (r *Registry) Decode(taskName, encodedArgs string) (Task, error) {
	decode, ok := r.decoders[taskName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, taskName)
	}
	args, err := codec.Decode(encodedArgs)
	if err != nil {
		return nil, fmt.Errorf("decode arguments of %s: %w", taskName, err)
	}
	t, err := decode(args)
	if err != nil {
		return nil, fmt.Errorf("reconstruct %s: %w", taskName, err)
	}
	return t, nil
}

// Serialize renders a task into the (name, arguments) pair persisted in a
// queue record.
func Serialize(t Task) (name, encodedArgs string, err error) {
	encodedArgs, err = codec.Encode(t.Args())
	if err != nil {
		return "", "", fmt.Errorf("encode arguments of %s: %w", t.Name(), err)
	}
	return t.Name(), encodedArgs, nil
}
