// Package mutation defines the field-level commands the form emits against the
// parent test definition.
package mutation

import "fmt"

type Op string

const (
	OpSet    Op = "set"
	OpRemove Op = "remove"
)

// Field names understood by the question store.
const (
	FieldQuestion     = "question"
	FieldCategoryName = "categoryName"
	FieldFreeText     = "freeText"
	FieldImage        = "image"
	FieldAnswer       = "answer"
	FieldPoint        = "point"
)

type Command struct {
	Op    Op     `json:"op"`
	Key   string `json:"key"`
	Field string `json:"field"`
	Value any    `json:"value,omitempty"`
}

func Set(key, field string, value any) Command {
	return Command{Op: OpSet, Key: key, Field: field, Value: value}
}

func Remove(key, field string, value any) Command {
	return Command{Op: OpRemove, Key: key, Field: field, Value: value}
}

func (c Command) String() string {
	return fmt.Sprintf("%s %s.%s=%v", c.Op, c.Key, c.Field, c.Value)
}

// Sink receives commands; the store owned by the wizard session implements it.
type Sink interface {
	Apply(cmd Command) error
}

// ApplyAll applies cmds in order and stops at the first failure.
func ApplyAll(sink Sink, cmds []Command) error {
	for _, cmd := range cmds {
		if err := sink.Apply(cmd); err != nil {
			return fmt.Errorf("apply %s: %w", cmd, err)
		}
	}
	return nil
}
