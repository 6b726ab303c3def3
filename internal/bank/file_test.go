package bank

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `version: 1
questions:
  - question: "  What is 2+2?  "
    category: Math
    answers:
      - answer: "4"
        points: 10
      - key: answer9
        answer: "5"
        points: 0
  - id: 40
    question: Capital of France?
    category: Geography
    image: uploads/paris.png
    answers:
      - answer: Paris
        points: 10
`

func TestParseFileYAML(t *testing.T) {
	src, err := parseFile([]byte(sampleYAML), "bank.yaml")
	if err != nil {
		t.Fatalf("parse yaml: %v", err)
	}

	items, err := src.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(items))
	}
	if items[0].ID != 1 || items[0].Question != "What is 2+2?" {
		t.Fatalf("unexpected first entry: %+v", items[0])
	}
	if items[0].Answers[0].Key != "answer0" || items[0].Answers[1].Key != "answer9" {
		t.Fatalf("unexpected answer keys: %+v", items[0].Answers)
	}

	got, err := src.Get(context.Background(), 40)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Image == nil || *got.Image != "uploads/paris.png" {
		t.Fatalf("expected image on entry 40, got %+v", got)
	}

	if _, err := src.Get(context.Background(), 99); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestParseFileRejectsUnknownFields(t *testing.T) {
	_, err := parseFile([]byte("questions:\n  - question: x\n    colour: red\n"), "bank.yml")
	if err == nil {
		t.Fatalf("expected error for unknown field")
	}

	_, err = parseFile([]byte(`{"questions":[{"question":"x","extra":1}]}`), "bank.json")
	if err == nil {
		t.Fatalf("expected error for unknown json field")
	}
}

func TestParseFileRejectsBlankQuestion(t *testing.T) {
	_, err := parseFile([]byte("questions:\n  - question: \"  \"\n"), "bank.yaml")
	if !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
}

func TestLoadFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.json")
	body := `{"version":1,"questions":[{"id":3,"question":"Q","category":"C","answers":[{"key":"answer1","answer":"A","points":10}]}]}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	src, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	e, err := src.Get(context.Background(), 3)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(e.Answers) != 1 || e.Answers[0].Points != 10 {
		t.Fatalf("unexpected entry: %+v", e)
	}
}
