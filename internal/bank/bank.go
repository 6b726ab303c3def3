// Package bank serves previously authored questions that can be copied into a
// new test.
package bank

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

var (
	ErrEntryNotFound = errors.New("bank entry not found")
	ErrInvalidEntry  = errors.New("invalid bank entry")
)

type Answer struct {
	Key    string  `json:"key" yaml:"key"`
	Answer string  `json:"answer" yaml:"answer"`
	Points float64 `json:"points" yaml:"points"`
	Image  *string `json:"image,omitempty" yaml:"image,omitempty"`
}

type Entry struct {
	ID       int64    `json:"id" yaml:"id"`
	Question string   `json:"question" yaml:"question"`
	Category string   `json:"category" yaml:"category"`
	Image    *string  `json:"image,omitempty" yaml:"image,omitempty"`
	Answers  []Answer `json:"answers" yaml:"answers"`
}

type Source interface {
	List(ctx context.Context) ([]Entry, error)
	Get(ctx context.Context, id int64) (*Entry, error)
}

func normalizeEntry(e Entry) (Entry, error) {
	e.Question = strings.TrimSpace(e.Question)
	e.Category = strings.TrimSpace(e.Category)
	if e.Question == "" {
		return Entry{}, ErrInvalidEntry
	}
	for i := range e.Answers {
		e.Answers[i].Answer = strings.TrimSpace(e.Answers[i].Answer)
		if strings.TrimSpace(e.Answers[i].Key) == "" {
			e.Answers[i].Key = "answer" + strconv.Itoa(i)
		}
	}
	return e, nil
}
