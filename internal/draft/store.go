package draft

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"testauthor/internal/formkey"
	"testauthor/internal/mutation"
)

var (
	ErrQuestionMissing = errors.New("question not found")
	ErrAnswerMissing   = errors.New("answer not found")
	ErrUnknownField    = errors.New("unknown field")
	ErrInvalidValue    = errors.New("invalid field value")
)

type QuestionRecord struct {
	Question     string  `json:"question"`
	CategoryName *string `json:"categoryName"`
	FreeText     bool    `json:"freeText"`
	Image        *string `json:"image"`
}

// AnswerRecord holds one option. Point is 10 for a correct option and 0
// otherwise; free-form booleans are folded into the same scale.
type AnswerRecord struct {
	Answer string  `json:"answer"`
	Point  float64 `json:"point"`
	Image  *string `json:"image"`
}

// Entry is a store slot: exactly one of Question and Answer is set.
type Entry struct {
	Key      string          `json:"key"`
	Address  formkey.Address `json:"-"`
	Question *QuestionRecord `json:"question,omitempty"`
	Answer   *AnswerRecord   `json:"answer,omitempty"`
}

// Store is the flat key -> record mapping of one test definition. Iteration
// follows insertion order.
type Store struct {
	entries map[string]*Entry
	order   []string
}

func NewStore() *Store {
	return &Store{entries: make(map[string]*Entry)}
}

func (s *Store) Len() int {
	return len(s.order)
}

func (s *Store) Get(key string) (*Entry, bool) {
	e, ok := s.entries[key]
	return e, ok
}

func (s *Store) HasQuestion(key string) bool {
	e, ok := s.entries[key]
	return ok && e.Question != nil
}

func (s *Store) Questions() []*Entry {
	out := make([]*Entry, 0)
	for _, k := range s.order {
		if e := s.entries[k]; e.Question != nil {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) AnswersOf(questionKey string) []*Entry {
	out := make([]*Entry, 0)
	for _, k := range s.order {
		e := s.entries[k]
		if e.Answer != nil && e.Address.QuestionKey() == questionKey {
			out = append(out, e)
		}
	}
	return out
}

// Apply implements mutation.Sink. Image keys address the image field of their
// base question or answer.
func (s *Store) Apply(cmd mutation.Command) error {
	addr, err := formkey.Decode(cmd.Key)
	if err != nil {
		return err
	}
	field := cmd.Field
	if addr.IsImage() {
		addr = addr.Base()
		field = mutation.FieldImage
	}

	switch cmd.Op {
	case mutation.OpSet:
		if addr.IsAnswer() {
			return s.setAnswerField(addr, field, cmd.Value)
		}
		return s.setQuestionField(addr, field, cmd.Value)
	case mutation.OpRemove:
		if addr.IsAnswer() {
			return s.removeAnswerField(addr, field)
		}
		return s.removeQuestionField(addr, field)
	default:
		return fmt.Errorf("unknown op %q", cmd.Op)
	}
}

func (s *Store) setQuestionField(addr formkey.Address, field string, value any) error {
	key := addr.Key()
	e, ok := s.entries[key]
	var rec QuestionRecord
	if ok {
		rec = *e.Question
	}
	if err := applyQuestionField(&rec, field, value); err != nil {
		return err
	}
	if !ok {
		e = &Entry{Key: key, Address: addr, Question: &QuestionRecord{}}
		s.insert(e)
	}
	*e.Question = rec
	return nil
}

func (s *Store) setAnswerField(addr formkey.Address, field string, value any) error {
	if !s.HasQuestion(addr.QuestionKey()) {
		return fmt.Errorf("%w: %s", ErrQuestionMissing, addr.QuestionKey())
	}

	key := addr.Key()
	e, ok := s.entries[key]
	var rec AnswerRecord
	if ok {
		rec = *e.Answer
	}
	if err := applyAnswerField(&rec, field, value); err != nil {
		return err
	}
	if !ok {
		e = &Entry{Key: key, Address: addr, Answer: &AnswerRecord{}}
		s.insert(e)
	}
	*e.Answer = rec
	return nil
}

func applyQuestionField(q *QuestionRecord, field string, value any) error {
	var err error
	switch field {
	case mutation.FieldQuestion:
		q.Question, err = toText(value)
	case mutation.FieldCategoryName:
		q.CategoryName, err = toOptionalText(value)
	case mutation.FieldFreeText:
		q.FreeText, err = toBool(value)
	case mutation.FieldImage:
		q.Image, err = toOptionalText(value)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return err
}

func applyAnswerField(a *AnswerRecord, field string, value any) error {
	var err error
	switch field {
	case mutation.FieldAnswer:
		a.Answer, err = toText(value)
	case mutation.FieldPoint:
		a.Point, err = toPoint(value)
	case mutation.FieldImage:
		a.Image, err = toOptionalText(value)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return err
}

// removeQuestionField clears a field; removing "question" deletes the
// question together with all of its answers.
func (s *Store) removeQuestionField(addr formkey.Address, field string) error {
	key := addr.Key()
	e, ok := s.entries[key]
	if !ok || e.Question == nil {
		return fmt.Errorf("%w: %s", ErrQuestionMissing, key)
	}

	switch field {
	case mutation.FieldQuestion:
		s.deleteWhere(func(e *Entry) bool {
			return e.Key == key || (e.Answer != nil && e.Address.QuestionIndex == addr.QuestionIndex)
		})
	case mutation.FieldCategoryName:
		e.Question.CategoryName = nil
	case mutation.FieldFreeText:
		e.Question.FreeText = false
	case mutation.FieldImage:
		e.Question.Image = nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return nil
}

func (s *Store) removeAnswerField(addr formkey.Address, field string) error {
	key := addr.Key()
	e, ok := s.entries[key]
	if !ok || e.Answer == nil {
		return fmt.Errorf("%w: %s", ErrAnswerMissing, key)
	}

	switch field {
	case mutation.FieldAnswer:
		s.deleteWhere(func(e *Entry) bool { return e.Key == key })
	case mutation.FieldPoint:
		e.Answer.Point = 0
	case mutation.FieldImage:
		e.Answer.Image = nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return nil
}

func (s *Store) insert(e *Entry) {
	s.entries[e.Key] = e
	s.order = append(s.order, e.Key)
}

func (s *Store) deleteWhere(match func(*Entry) bool) {
	kept := s.order[:0]
	for _, k := range s.order {
		if match(s.entries[k]) {
			delete(s.entries, k)
			continue
		}
		kept = append(kept, k)
	}
	s.order = kept
}

// Entries returns a copy of all entries in insertion order.
func (s *Store) Entries() []Entry {
	out := make([]Entry, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, *s.entries[k])
	}
	return out
}

// restoreStore rebuilds a store from persisted entries, re-checking every key.
func restoreStore(entries []Entry) (*Store, error) {
	s := NewStore()
	for _, e := range entries {
		addr, err := formkey.Decode(e.Key)
		if err != nil {
			return nil, err
		}
		if addr.IsImage() || (e.Question == nil) == (e.Answer == nil) || (e.Answer != nil) != addr.IsAnswer() {
			return nil, fmt.Errorf("%w: entry %s", ErrInvalidValue, e.Key)
		}
		if addr.IsAnswer() && !s.HasQuestion(addr.QuestionKey()) {
			return nil, fmt.Errorf("%w: %s", ErrQuestionMissing, addr.QuestionKey())
		}
		e.Address = addr
		entry := e
		s.insert(&entry)
	}
	return s, nil
}

func toText(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrInvalidValue, v)
	}
}

func toOptionalText(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	s, err := toText(v)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case float64:
		return x != 0, nil
	case int:
		return x != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "true", "on":
			return true, nil
		case "", "0", "false", "off":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: %v", ErrInvalidValue, v)
}

func toPoint(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case bool:
		if x {
			return 10, nil
		}
		return 0, nil
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return n, nil
		}
		if b, err := strconv.ParseBool(s); err == nil {
			return toPoint(b)
		}
	}
	return 0, fmt.Errorf("%w: %v", ErrInvalidValue, v)
}
