package bank

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresSource keeps the bank in the question_bank table; answers are stored
// as a JSONB array in their original order.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question, category, image, answers
		FROM question_bank
		WHERE is_active = TRUE
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query question bank: %w", err)
	}
	defer rows.Close()

	items := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate question bank: %w", err)
	}
	return items, nil
}

func (s *PostgresSource) Get(ctx context.Context, id int64) (*Entry, error) {
	if id <= 0 {
		return nil, ErrEntryNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, question, category, image, answers
		FROM question_bank
		WHERE id = $1 AND is_active = TRUE
	`, id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return e, nil
}

// Add inserts entries in one transaction and returns them with their new ids.
func (s *PostgresSource) Add(ctx context.Context, entries []Entry) ([]Entry, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	out := make([]Entry, 0, len(entries))
	for i, e := range entries {
		n, err := normalizeEntry(e)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		answersRaw, err := json.Marshal(n.Answers)
		if err != nil {
			return nil, fmt.Errorf("marshal answers: %w", err)
		}
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO question_bank (question, category, image, answers, is_active, created_at)
			VALUES ($1, $2, $3, $4::jsonb, TRUE, now())
			RETURNING id
		`, n.Question, n.Category, nullStringPtr(n.Image), answersRaw).Scan(&n.ID); err != nil {
			return nil, fmt.Errorf("insert bank entry: %w", err)
		}
		out = append(out, n)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return out, nil
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		e          Entry
		image      sql.NullString
		answersRaw []byte
	)
	if err := scanner.Scan(&e.ID, &e.Question, &e.Category, &image, &answersRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan bank entry: %w", err)
	}
	if image.Valid {
		v := image.String
		e.Image = &v
	}
	e.Answers = make([]Answer, 0)
	if len(answersRaw) > 0 {
		if err := json.Unmarshal(answersRaw, &e.Answers); err != nil {
			return nil, fmt.Errorf("decode bank answers: %w", err)
		}
	}
	return &e, nil
}

func nullStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
