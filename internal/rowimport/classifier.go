// Package rowimport turns spreadsheet rows of the form
// [question, answer, true|false, category] into store mutation commands.
package rowimport

import (
	"errors"
	"fmt"

	"testauthor/internal/formkey"
	"testauthor/internal/mutation"
)

const (
	CorrectPoint   = 10.0
	IncorrectPoint = 0.0

	// InvalidFormatWarning is reported once per batch when any row was rejected.
	InvalidFormatWarning = "Invalid Excel Format"
)

var ErrInvalidRowFormat = errors.New("invalid row format")

type RowErrorKind string

const (
	UnmatchedPattern  RowErrorKind = "unmatched_pattern"
	OrphanedAnswerRow RowErrorKind = "orphaned_answer_row"
)

// InvalidRowFormatError describes a row that passed the truth gate but did not
// fit the expected layout.
type InvalidRowFormatError struct {
	Row  int
	Kind RowErrorKind
}

func (e *InvalidRowFormatError) Error() string {
	switch e.Kind {
	case OrphanedAnswerRow:
		return fmt.Sprintf("row %d: answer row before any question row", e.Row)
	default:
		return fmt.Sprintf("row %d: expected question, answer and category or a continuation answer", e.Row)
	}
}

func (e *InvalidRowFormatError) Unwrap() error {
	return ErrInvalidRowFormat
}

// Cursor holds the counters of one authoring session. Indices handed out are
// never returned, even after deletes.
type Cursor struct {
	Current      int  `json:"current"`
	HasCurrent   bool `json:"has_current"`
	NextQuestion int  `json:"next_question"`
	NextAnswer   int  `json:"next_answer"`
}

func (c *Cursor) AllocQuestion() int {
	idx := c.NextQuestion
	c.NextQuestion++
	c.Current = idx
	c.HasCurrent = true
	return idx
}

func (c *Cursor) AllocAnswer() int {
	idx := c.NextAnswer
	c.NextAnswer++
	return idx
}

type Action string

const (
	ActionSkipped      Action = "skipped"
	ActionNewQuestion  Action = "new_question"
	ActionContinuation Action = "continuation"
	ActionRejected     Action = "rejected"
)

type RowOutcome struct {
	Row         int                `json:"row"`
	Action      Action             `json:"action"`
	QuestionKey string             `json:"question_key,omitempty"`
	AnswerKey   string             `json:"answer_key,omitempty"`
	Commands    []mutation.Command `json:"commands,omitempty"`
	Err         error              `json:"-"`
}

type Result struct {
	Outcomes []RowOutcome
}

// Classify walks rows in order starting from cur and returns the outcome of
// every row together with the advanced cursor. Rejected rows never stop the walk.
func Classify(cur Cursor, rows []Row) (Result, Cursor) {
	res := Result{Outcomes: make([]RowOutcome, 0, len(rows))}
	for i, row := range rows {
		res.Outcomes = append(res.Outcomes, classifyRow(&cur, i+1, row))
	}
	return res, cur
}

func classifyRow(cur *Cursor, rowNo int, row Row) RowOutcome {
	out := RowOutcome{Row: rowNo, Action: ActionSkipped}

	correct, ok := row.Cell(ColTruth).Truth()
	if !ok {
		return out
	}

	question := row.Cell(ColQuestion)
	answer := row.Cell(ColAnswer)
	category := row.Cell(ColCategory)

	switch {
	case question.Present && answer.Present && category.Present:
		q := cur.AllocQuestion()
		a := cur.AllocAnswer()
		out.Action = ActionNewQuestion
		out.QuestionKey = formkey.EncodeQuestion(q)
		out.AnswerKey = formkey.EncodeAnswer(q, a)
		out.Commands = []mutation.Command{
			mutation.Set(out.QuestionKey, mutation.FieldQuestion, question.Text),
			mutation.Set(out.QuestionKey, mutation.FieldCategoryName, category.Text),
			mutation.Set(out.AnswerKey, mutation.FieldAnswer, answer.Text),
			mutation.Set(out.AnswerKey, mutation.FieldPoint, pointFor(correct)),
		}
	case !question.Present && answer.Present:
		if !cur.HasCurrent {
			out.Err = &InvalidRowFormatError{Row: rowNo, Kind: OrphanedAnswerRow}
		}
		q := cur.Current
		a := cur.AllocAnswer()
		out.Action = ActionContinuation
		out.QuestionKey = formkey.EncodeQuestion(q)
		out.AnswerKey = formkey.EncodeAnswer(q, a)
		out.Commands = []mutation.Command{
			mutation.Set(out.AnswerKey, mutation.FieldAnswer, answer.Text),
			mutation.Set(out.AnswerKey, mutation.FieldPoint, pointFor(correct)),
		}
	default:
		out.Action = ActionRejected
		out.Err = &InvalidRowFormatError{Row: rowNo, Kind: UnmatchedPattern}
	}
	return out
}

func pointFor(correct bool) float64 {
	if correct {
		return CorrectPoint
	}
	return IncorrectPoint
}

// Commands returns every emitted command in row order, orphaned rows included.
func (r Result) Commands() []mutation.Command {
	var cmds []mutation.Command
	for _, o := range r.Outcomes {
		cmds = append(cmds, o.Commands...)
	}
	return cmds
}

func (r Result) Rejections() []*InvalidRowFormatError {
	var errs []*InvalidRowFormatError
	for _, o := range r.Outcomes {
		var rowErr *InvalidRowFormatError
		if errors.As(o.Err, &rowErr) {
			errs = append(errs, rowErr)
		}
	}
	return errs
}

func (r Result) Count(action Action) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Action == action {
			n++
		}
	}
	return n
}

// Warning returns the single user-facing message for the batch, or "".
func (r Result) Warning() string {
	if len(r.Rejections()) > 0 {
		return InvalidFormatWarning
	}
	return ""
}
