package draft

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"testauthor/internal/bank"
	"testauthor/internal/formkey"
	"testauthor/internal/rowimport"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrDraftNotFound   = errors.New("draft not found")
	ErrBankUnavailable = errors.New("question bank is read-only")
)

type imageStore interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	Remove(ctx context.Context, url string) error
}

type bankPublisher interface {
	Add(ctx context.Context, entries []bank.Entry) ([]bank.Entry, error)
}

type ServiceConfig struct {
	Bank      bank.Source
	Publisher bankPublisher
	Images    imageStore
}

type Service struct {
	db        *sql.DB
	bank      bank.Source
	publisher bankPublisher
	images    imageStore
}

type Draft struct {
	ID        int64
	Title     string
	Session   *Session
	CreatedAt time.Time
	UpdatedAt time.Time
}

type DraftView struct {
	ID        int64            `json:"id"`
	Title     string           `json:"title"`
	Cursor    rowimport.Cursor `json:"cursor"`
	Questions []QuestionView   `json:"questions"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func (d *Draft) View(search string) DraftView {
	return DraftView{
		ID:        d.ID,
		Title:     d.Title,
		Cursor:    d.Session.Cursor(),
		Questions: d.Session.View(search),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type AddQuestionInput struct {
	Question string
	Category string
	FreeText bool
}

type AddAnswerInput struct {
	Answer string
	Point  float64
}

func NewService(db *sql.DB, cfg ServiceConfig) *Service {
	return &Service{
		db:        db,
		bank:      cfg.Bank,
		publisher: cfg.Publisher,
		images:    cfg.Images,
	}
}

// CreateDraft starts a session with one blank question, as the form opens with.
func (s *Service) CreateDraft(ctx context.Context, title string) (*Draft, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}

	sess := NewSession()
	if _, err := sess.AddQuestion("", ""); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(sess.snapshot())
	if err != nil {
		return nil, fmt.Errorf("marshal draft: %w", err)
	}
	cur := sess.Cursor()

	d := &Draft{Title: title, Session: sess}
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO test_drafts (
			title, payload, next_question, next_answer, current_question, created_at, updated_at
		) VALUES (
			$1, $2::jsonb, $3, $4, $5, now(), now()
		)
		RETURNING id, created_at, updated_at
	`, title, payload, cur.NextQuestion, cur.NextAnswer, currentQuestionArg(cur)).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert draft: %w", err)
	}
	return d, nil
}

func (s *Service) GetDraft(ctx context.Context, id int64) (*Draft, error) {
	if id <= 0 {
		return nil, ErrDraftNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, payload, next_question, next_answer, current_question, created_at, updated_at
		FROM test_drafts
		WHERE id = $1
	`, id)
	return scanDraft(row)
}

// mutate loads the draft row under a lock, runs fn and stores the result.
// Nothing is written when fn fails.
func (s *Service) mutate(ctx context.Context, id int64, fn func(sess *Session) error) (*Draft, error) {
	if id <= 0 {
		return nil, ErrDraftNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	d, err := scanDraft(tx.QueryRowContext(ctx, `
		SELECT id, title, payload, next_question, next_answer, current_question, created_at, updated_at
		FROM test_drafts
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return nil, err
	}

	if err := fn(d.Session); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(d.Session.snapshot())
	if err != nil {
		return nil, fmt.Errorf("marshal draft: %w", err)
	}
	cur := d.Session.Cursor()
	if err := tx.QueryRowContext(ctx, `
		UPDATE test_drafts
		SET payload = $2::jsonb,
			next_question = $3,
			next_answer = $4,
			current_question = $5,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, id, payload, cur.NextQuestion, cur.NextAnswer, currentQuestionArg(cur)).Scan(&d.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update draft: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return d, nil
}

func (s *Service) AddQuestion(ctx context.Context, draftID int64, in AddQuestionInput) (*Draft, string, error) {
	var key string
	d, err := s.mutate(ctx, draftID, func(sess *Session) error {
		k, err := sess.AddQuestion(in.Question, in.Category)
		if err != nil {
			return err
		}
		if in.FreeText {
			if err := sess.SetFreeText(k, true); err != nil {
				return err
			}
		}
		key = k
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return d, key, nil
}

func (s *Service) AddAnswer(ctx context.Context, draftID int64, questionKey string, in AddAnswerInput) (*Draft, string, error) {
	var key string
	d, err := s.mutate(ctx, draftID, func(sess *Session) error {
		k, err := sess.AddAnswer(questionKey, in.Answer, in.Point)
		key = k
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return d, key, nil
}

func (s *Service) SetField(ctx context.Context, draftID int64, key, field string, value any) (*Draft, error) {
	return s.mutate(ctx, draftID, func(sess *Session) error {
		return sess.SetField(key, field, value)
	})
}

func (s *Service) DeleteQuestion(ctx context.Context, draftID int64, key string) (*Draft, error) {
	return s.mutate(ctx, draftID, func(sess *Session) error {
		return sess.DeleteQuestion(key)
	})
}

func (s *Service) DeleteAnswer(ctx context.Context, draftID int64, key string) (*Draft, error) {
	return s.mutate(ctx, draftID, func(sess *Session) error {
		return sess.DeleteAnswer(key)
	})
}

func (s *Service) SetCollapsed(ctx context.Context, draftID int64, key string, collapsed bool) (*Draft, error) {
	return s.mutate(ctx, draftID, func(sess *Session) error {
		return sess.SetCollapsed(key, collapsed)
	})
}

// AttachImage stores the upload and records its URL on the question or answer
// named by key (the "-image" form is accepted too).
func (s *Service) AttachImage(ctx context.Context, draftID int64, key, filename string, r io.Reader) (*Draft, string, error) {
	if _, err := formkey.Decode(key); err != nil {
		return nil, "", err
	}
	if s.images == nil {
		return nil, "", fmt.Errorf("%w: uploads are disabled", ErrInvalidInput)
	}

	url, err := s.images.Save(ctx, filename, r)
	if err != nil {
		return nil, "", err
	}
	d, err := s.mutate(ctx, draftID, func(sess *Session) error {
		return sess.AttachImage(key, url)
	})
	if err != nil {
		if rmErr := s.images.Remove(context.WithoutCancel(ctx), url); rmErr != nil {
			log.Printf("draft %d: remove orphaned upload %s: %v", draftID, url, rmErr)
		}
		return nil, "", err
	}
	return d, url, nil
}

func (s *Service) Import(ctx context.Context, draftID int64, rows []rowimport.Row) (*ImportReport, error) {
	var report *ImportReport
	if _, err := s.mutate(ctx, draftID, func(sess *Session) error {
		report = sess.Import(rows)
		return nil
	}); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Service) ListBank(ctx context.Context) ([]bank.Entry, error) {
	if s.bank == nil {
		return []bank.Entry{}, nil
	}
	return s.bank.List(ctx)
}

func (s *Service) CopyFromBank(ctx context.Context, draftID, entryID int64) (*Draft, string, error) {
	if s.bank == nil {
		return nil, "", bank.ErrEntryNotFound
	}
	entry, err := s.bank.Get(ctx, entryID)
	if err != nil {
		return nil, "", err
	}

	var key string
	d, err := s.mutate(ctx, draftID, func(sess *Session) error {
		k, err := sess.CopyFromBank(*entry)
		key = k
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return d, key, nil
}

// Publish adds the draft's questions to the bank so later tests can reuse them.
func (s *Service) Publish(ctx context.Context, draftID int64) ([]bank.Entry, error) {
	if s.publisher == nil {
		return nil, ErrBankUnavailable
	}
	d, err := s.GetDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}
	entries := d.Session.BankEntries()
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: draft has no questions", ErrInvalidInput)
	}
	return s.publisher.Add(ctx, entries)
}

func scanDraft(scanner interface{ Scan(dest ...any) error }) (*Draft, error) {
	var (
		d          Draft
		payload    []byte
		cur        rowimport.Cursor
		currentRaw sql.NullInt64
	)
	if err := scanner.Scan(
		&d.ID,
		&d.Title,
		&payload,
		&cur.NextQuestion,
		&cur.NextAnswer,
		&currentRaw,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDraftNotFound
		}
		return nil, fmt.Errorf("scan draft: %w", err)
	}
	if currentRaw.Valid {
		cur.Current = int(currentRaw.Int64)
		cur.HasCurrent = true
	}

	var snap snapshot
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &snap); err != nil {
			return nil, fmt.Errorf("decode draft payload: %w", err)
		}
	}
	sess, err := restoreSession(snap, cur)
	if err != nil {
		return nil, fmt.Errorf("restore draft %d: %w", d.ID, err)
	}
	d.Session = sess
	return &d, nil
}

func currentQuestionArg(cur rowimport.Cursor) any {
	if !cur.HasCurrent {
		return nil
	}
	return cur.Current
}
