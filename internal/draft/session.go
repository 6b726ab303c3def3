package draft

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"testauthor/internal/bank"
	"testauthor/internal/formkey"
	"testauthor/internal/mutation"
	"testauthor/internal/rowimport"
)

// Session is the question step of one test being authored. It owns the store
// and the index counters; indices are never reused within a session.
type Session struct {
	store     *Store
	cursor    rowimport.Cursor
	collapsed map[string]bool
}

func NewSession() *Session {
	return &Session{
		store:     NewStore(),
		collapsed: make(map[string]bool),
	}
}

func (s *Session) Store() *Store {
	return s.store
}

func (s *Session) Cursor() rowimport.Cursor {
	return s.cursor
}

func (s *Session) apply(cmds ...mutation.Command) error {
	return mutation.ApplyAll(s.store, cmds)
}

// AddQuestion allocates a new question and makes it the current one.
func (s *Session) AddQuestion(text, category string) (string, error) {
	key := formkey.EncodeQuestion(s.cursor.AllocQuestion())
	cmds := []mutation.Command{mutation.Set(key, mutation.FieldQuestion, text)}
	if category = strings.TrimSpace(category); category != "" {
		cmds = append(cmds, mutation.Set(key, mutation.FieldCategoryName, category))
	}
	if err := s.apply(cmds...); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Session) AddAnswer(questionKey, text string, point float64) (string, error) {
	addr, err := formkey.Decode(questionKey)
	if err != nil {
		return "", err
	}
	if addr.Kind != formkey.KindQuestion {
		return "", fmt.Errorf("%w: %s is not a question key", formkey.ErrMalformedKey, questionKey)
	}
	if !s.store.HasQuestion(questionKey) {
		return "", fmt.Errorf("%w: %s", ErrQuestionMissing, questionKey)
	}

	key := formkey.EncodeAnswer(addr.QuestionIndex, s.cursor.AllocAnswer())
	if err := s.apply(
		mutation.Set(key, mutation.FieldAnswer, text),
		mutation.Set(key, mutation.FieldPoint, point),
	); err != nil {
		return "", err
	}
	return key, nil
}

// SetField edits an existing question or answer.
func (s *Session) SetField(key, field string, value any) error {
	addr, err := formkey.Decode(key)
	if err != nil {
		return err
	}
	base := addr.Base().Key()
	if _, ok := s.store.Get(base); !ok {
		if addr.IsAnswer() {
			return fmt.Errorf("%w: %s", ErrAnswerMissing, base)
		}
		return fmt.Errorf("%w: %s", ErrQuestionMissing, base)
	}
	return s.apply(mutation.Set(key, field, value))
}

func (s *Session) AttachImage(key, url string) error {
	addr, err := formkey.Decode(key)
	if err != nil {
		return err
	}
	return s.SetField(addr.Base().Image().Key(), mutation.FieldImage, url)
}

func (s *Session) SetFreeText(questionKey string, on bool) error {
	return s.SetField(questionKey, mutation.FieldFreeText, on)
}

// DeleteQuestion removes a question and its answers. Counters are left alone.
func (s *Session) DeleteQuestion(key string) error {
	addr, err := formkey.Decode(key)
	if err != nil {
		return err
	}
	if addr.Kind != formkey.KindQuestion {
		return fmt.Errorf("%w: %s is not a question key", formkey.ErrMalformedKey, key)
	}
	if err := s.apply(mutation.Remove(key, mutation.FieldQuestion, "")); err != nil {
		return err
	}
	delete(s.collapsed, key)
	return nil
}

func (s *Session) DeleteAnswer(key string) error {
	addr, err := formkey.Decode(key)
	if err != nil {
		return err
	}
	if addr.Kind != formkey.KindAnswer {
		return fmt.Errorf("%w: %s is not an answer key", formkey.ErrMalformedKey, key)
	}
	return s.apply(mutation.Remove(key, mutation.FieldAnswer, ""))
}

func (s *Session) SetCollapsed(questionKey string, collapsed bool) error {
	if !s.store.HasQuestion(questionKey) {
		return fmt.Errorf("%w: %s", ErrQuestionMissing, questionKey)
	}
	if collapsed {
		s.collapsed[questionKey] = true
	} else {
		delete(s.collapsed, questionKey)
	}
	return nil
}

// CopyFromBank appends a bank entry as a new question. The entry's answer keys
// only give the order; answers get fresh indices.
func (s *Session) CopyFromBank(e bank.Entry) (string, error) {
	q := s.cursor.AllocQuestion()
	key := formkey.EncodeQuestion(q)
	cmds := []mutation.Command{mutation.Set(key, mutation.FieldQuestion, e.Question)}
	if category := strings.TrimSpace(e.Category); category != "" {
		cmds = append(cmds, mutation.Set(key, mutation.FieldCategoryName, category))
	}
	if e.Image != nil {
		cmds = append(cmds, mutation.Set(key, mutation.FieldImage, *e.Image))
	}
	for _, a := range e.Answers {
		ak := formkey.EncodeAnswer(q, s.cursor.AllocAnswer())
		cmds = append(cmds,
			mutation.Set(ak, mutation.FieldAnswer, a.Answer),
			mutation.Set(ak, mutation.FieldPoint, a.Points),
		)
		if a.Image != nil {
			cmds = append(cmds, mutation.Set(ak, mutation.FieldImage, *a.Image))
		}
	}
	if err := s.apply(cmds...); err != nil {
		return "", err
	}
	return key, nil
}

type ImportRowError struct {
	Row   int    `json:"row"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

type ImportReport struct {
	TotalRows    int              `json:"total_rows"`
	ImportedRows int              `json:"imported_rows"`
	SkippedRows  int              `json:"skipped_rows"`
	FailedRows   int              `json:"failed_rows"`
	Questions    []string         `json:"questions"`
	Errors       []ImportRowError `json:"errors"`
	Warning      string           `json:"warning,omitempty"`
}

// Import classifies rows against the session cursor and applies the result.
// An answer row that precedes every question row is applied only when the
// question it falls back to already exists.
func (s *Session) Import(rows []rowimport.Row) *ImportReport {
	res, next := rowimport.Classify(s.cursor, rows)
	s.cursor = next

	report := &ImportReport{
		TotalRows: len(rows),
		Questions: make([]string, 0),
		Errors:    make([]ImportRowError, 0),
	}
	for _, o := range res.Outcomes {
		var rowErr *rowimport.InvalidRowFormatError
		if errors.As(o.Err, &rowErr) {
			report.Errors = append(report.Errors, ImportRowError{
				Row:   o.Row,
				Kind:  string(rowErr.Kind),
				Error: rowErr.Error(),
			})
		}

		switch o.Action {
		case rowimport.ActionSkipped:
			report.SkippedRows++
			continue
		case rowimport.ActionRejected:
			report.FailedRows++
			continue
		}

		if o.Action == rowimport.ActionContinuation && !s.store.HasQuestion(o.QuestionKey) {
			report.FailedRows++
			if rowErr == nil {
				report.Errors = append(report.Errors, ImportRowError{
					Row:   o.Row,
					Kind:  "missing_question",
					Error: fmt.Sprintf("row %d: %s no longer exists", o.Row, o.QuestionKey),
				})
			}
			continue
		}
		if err := s.apply(o.Commands...); err != nil {
			report.FailedRows++
			report.Errors = append(report.Errors, ImportRowError{Row: o.Row, Kind: "apply_failed", Error: err.Error()})
			continue
		}
		report.ImportedRows++
		if o.Action == rowimport.ActionNewQuestion {
			report.Questions = append(report.Questions, o.QuestionKey)
		}
	}
	if len(report.Errors) > 0 {
		report.Warning = rowimport.InvalidFormatWarning
	}
	return report
}

type AnswerView struct {
	Key    string  `json:"key"`
	Answer string  `json:"answer"`
	Point  float64 `json:"point"`
	Image  *string `json:"image,omitempty"`
}

type QuestionView struct {
	Key          string       `json:"key"`
	Question     string       `json:"question"`
	CategoryName *string      `json:"categoryName,omitempty"`
	FreeText     bool         `json:"freeText"`
	Image        *string      `json:"image,omitempty"`
	Answers      []AnswerView `json:"answers"`
	Visible      bool         `json:"visible"`
	Collapsed    bool         `json:"collapsed"`
}

func (s *Session) View(search string) []QuestionView {
	return Filter(s.store, search, s.collapsed)
}

// Filter builds the per-question view model. A question is visible when its
// text contains search, ignoring case.
func Filter(store *Store, search string, collapsed map[string]bool) []QuestionView {
	needle := strings.ToLower(search)
	out := make([]QuestionView, 0)
	for _, qe := range store.Questions() {
		q := qe.Question
		v := QuestionView{
			Key:          qe.Key,
			Question:     q.Question,
			CategoryName: q.CategoryName,
			FreeText:     q.FreeText,
			Image:        q.Image,
			Answers:      make([]AnswerView, 0),
			Visible:      strings.Contains(strings.ToLower(q.Question), needle),
			Collapsed:    collapsed[qe.Key],
		}
		for _, ae := range store.AnswersOf(qe.Key) {
			v.Answers = append(v.Answers, AnswerView{
				Key:    ae.Key,
				Answer: ae.Answer.Answer,
				Point:  ae.Answer.Point,
				Image:  ae.Answer.Image,
			})
		}
		out = append(out, v)
	}
	return out
}

// BankEntries converts the non-blank questions of the session into bank entries.
func (s *Session) BankEntries() []bank.Entry {
	out := make([]bank.Entry, 0)
	for _, qe := range s.store.Questions() {
		if strings.TrimSpace(qe.Question.Question) == "" {
			continue
		}
		e := bank.Entry{
			Question: qe.Question.Question,
			Image:    qe.Question.Image,
			Answers:  make([]bank.Answer, 0),
		}
		if qe.Question.CategoryName != nil {
			e.Category = *qe.Question.CategoryName
		}
		for i, ae := range s.store.AnswersOf(qe.Key) {
			e.Answers = append(e.Answers, bank.Answer{
				Key:    "answer" + strconv.Itoa(i),
				Answer: ae.Answer.Answer,
				Points: ae.Answer.Point,
				Image:  ae.Answer.Image,
			})
		}
		out = append(out, e)
	}
	return out
}

type snapshot struct {
	Entries   []Entry  `json:"entries"`
	Collapsed []string `json:"collapsed"`
}

func (s *Session) snapshot() snapshot {
	snap := snapshot{Entries: s.store.Entries(), Collapsed: make([]string, 0, len(s.collapsed))}
	for _, qe := range s.store.Questions() {
		if s.collapsed[qe.Key] {
			snap.Collapsed = append(snap.Collapsed, qe.Key)
		}
	}
	return snap
}

func restoreSession(snap snapshot, cur rowimport.Cursor) (*Session, error) {
	store, err := restoreStore(snap.Entries)
	if err != nil {
		return nil, err
	}
	s := &Session{store: store, cursor: cur, collapsed: make(map[string]bool)}
	for _, k := range snap.Collapsed {
		if store.HasQuestion(k) {
			s.collapsed[k] = true
		}
	}
	return s, nil
}
