// Package formkey converts between question/answer addresses and the flat
// string keys used by the draft store ("question3", "question3-answer7",
// "question3-image", "question3-answer7-image").
//
// All key parsing goes through Decode. An answer's owning question is found by
// splitting on the last "-answer" separator; callers must not split keys on
// their own. Indices are canonical decimals, so "question01" is rejected
// rather than aliased to "question1".
package formkey

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	questionPrefix  = "question"
	answerSeparator = "-answer"
	imageSuffix     = "-image"
)

var ErrMalformedKey = errors.New("malformed key")

// MalformedKeyError reports a key outside the question/answer/image grammar.
type MalformedKeyError struct {
	Key    string
	Reason string
}

func (e *MalformedKeyError) Error() string {
	return fmt.Sprintf("malformed key %q: %s", e.Key, e.Reason)
}

func (e *MalformedKeyError) Unwrap() error {
	return ErrMalformedKey
}

type Kind int

const (
	KindQuestion Kind = iota + 1
	KindAnswer
	KindQuestionImage
	KindAnswerImage
)

func (k Kind) String() string {
	switch k {
	case KindQuestion:
		return "question"
	case KindAnswer:
		return "answer"
	case KindQuestionImage:
		return "question_image"
	case KindAnswerImage:
		return "answer_image"
	default:
		return "unknown"
	}
}

// Address identifies a question, an answer, or an image attached to either.
// AnswerIndex is meaningful only for the answer kinds.
type Address struct {
	Kind          Kind
	QuestionIndex int
	AnswerIndex   int
}

func Question(index int) Address {
	return Address{Kind: KindQuestion, QuestionIndex: index}
}

func Answer(questionIndex, answerIndex int) Address {
	return Address{Kind: KindAnswer, QuestionIndex: questionIndex, AnswerIndex: answerIndex}
}

func EncodeQuestion(index int) string {
	return questionPrefix + strconv.Itoa(index)
}

func EncodeAnswer(questionIndex, answerIndex int) string {
	return EncodeQuestion(questionIndex) + answerSeparator + strconv.Itoa(answerIndex)
}

func EncodeImage(base string) string {
	return base + imageSuffix
}

func (a Address) IsImage() bool {
	return a.Kind == KindQuestionImage || a.Kind == KindAnswerImage
}

func (a Address) IsAnswer() bool {
	return a.Kind == KindAnswer || a.Kind == KindAnswerImage
}

// Base drops the image wrapper, returning the question or answer it is attached to.
func (a Address) Base() Address {
	switch a.Kind {
	case KindQuestionImage:
		return Question(a.QuestionIndex)
	case KindAnswerImage:
		return Answer(a.QuestionIndex, a.AnswerIndex)
	default:
		return a
	}
}

// Image wraps a question or answer address in its image variant.
func (a Address) Image() Address {
	switch a.Kind {
	case KindQuestion:
		a.Kind = KindQuestionImage
	case KindAnswer:
		a.Kind = KindAnswerImage
	}
	return a
}

func (a Address) Key() string {
	switch a.Kind {
	case KindAnswer:
		return EncodeAnswer(a.QuestionIndex, a.AnswerIndex)
	case KindQuestionImage:
		return EncodeImage(EncodeQuestion(a.QuestionIndex))
	case KindAnswerImage:
		return EncodeImage(EncodeAnswer(a.QuestionIndex, a.AnswerIndex))
	default:
		return EncodeQuestion(a.QuestionIndex)
	}
}

// QuestionKey returns the key of the question owning this address.
func (a Address) QuestionKey() string {
	return EncodeQuestion(a.QuestionIndex)
}

func (a Address) String() string {
	return a.Key()
}

func Decode(key string) (Address, error) {
	if !strings.HasPrefix(key, questionPrefix) {
		return Address{}, &MalformedKeyError{Key: key, Reason: "missing question prefix"}
	}

	rest := key
	image := false
	if strings.HasSuffix(rest, imageSuffix) {
		rest = strings.TrimSuffix(rest, imageSuffix)
		image = true
	}
	rest = strings.TrimPrefix(rest, questionPrefix)

	if idx := strings.LastIndex(rest, answerSeparator); idx >= 0 {
		q, err := parseIndex(rest[:idx])
		if err != nil {
			return Address{}, &MalformedKeyError{Key: key, Reason: "question index: " + err.Error()}
		}
		a, err := parseIndex(rest[idx+len(answerSeparator):])
		if err != nil {
			return Address{}, &MalformedKeyError{Key: key, Reason: "answer index: " + err.Error()}
		}
		addr := Answer(q, a)
		if image {
			addr = addr.Image()
		}
		return addr, nil
	}

	q, err := parseIndex(rest)
	if err != nil {
		return Address{}, &MalformedKeyError{Key: key, Reason: "question index: " + err.Error()}
	}
	addr := Question(q)
	if image {
		addr = addr.Image()
	}
	return addr, nil
}

// OwnerQuestion returns the question key that owns key.
func OwnerQuestion(key string) (string, error) {
	addr, err := Decode(key)
	if err != nil {
		return "", err
	}
	return addr.QuestionKey(), nil
}

// IsAnswerKey reports whether key names an answer record rather than a question.
func IsAnswerKey(key string) bool {
	return strings.Contains(key, answerSeparator)
}

// parseIndex accepts canonical decimal digits only: no sign and no leading
// zeros, so every key decodes from exactly one spelling.
func parseIndex(s string) (int, error) {
	if s == "" {
		return 0, errors.New("empty")
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("%q has a leading zero", s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%q is not a non-negative integer", s)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q out of range", s)
	}
	return n, nil
}
