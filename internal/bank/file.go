package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type fileDocument struct {
	Version   int     `json:"version" yaml:"version"`
	Questions []Entry `json:"questions" yaml:"questions"`
}

// FileSource serves a read-only bank loaded from a YAML or JSON file.
type FileSource struct {
	entries []Entry
}

func LoadFile(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	return parseFile(data, path)
}

func parseFile(data []byte, path string) (*FileSource, error) {
	var (
		doc fileDocument
		err error
	)
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		doc, err = parseJSON(data)
	} else {
		doc, err = parseYAML(data)
	}
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(doc.Questions))
	for i, e := range doc.Questions {
		if e.ID == 0 {
			e.ID = int64(i + 1)
		}
		n, err := normalizeEntry(e)
		if err != nil {
			return nil, fmt.Errorf("questions[%d]: %w", i, err)
		}
		entries = append(entries, n)
	}
	return &FileSource{entries: entries}, nil
}

func parseJSON(data []byte) (fileDocument, error) {
	var doc fileDocument
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&doc); err != nil {
		return fileDocument{}, fmt.Errorf("parse json: %w", err)
	}
	return doc, nil
}

func parseYAML(data []byte) (fileDocument, error) {
	var doc fileDocument
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		if err == io.EOF {
			return fileDocument{}, nil
		}
		return fileDocument{}, fmt.Errorf("parse yaml: %w", err)
	}
	return doc, nil
}

func (s *FileSource) List(ctx context.Context) ([]Entry, error) {
	_ = ctx
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *FileSource) Get(ctx context.Context, id int64) (*Entry, error) {
	_ = ctx
	for _, e := range s.entries {
		if e.ID == id {
			found := e
			return &found, nil
		}
	}
	return nil, ErrEntryNotFound
}
