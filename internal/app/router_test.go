package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const bankYAML = `version: 1
questions:
  - question: Capital of France?
    category: Geo
    answers:
      - answer: Paris
        points: 10
      - answer: Lyon
        points: 0
`

func newFileBankRouter(t *testing.T) http.Handler {
	t.Helper()
	dir := t.TempDir()
	bankPath := filepath.Join(dir, "bank.yaml")
	if err := os.WriteFile(bankPath, []byte(bankYAML), 0o644); err != nil {
		t.Fatalf("write bank file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "hello.png"), []byte("png"), 0o644); err != nil {
		t.Fatalf("write upload file: %v", err)
	}

	router, err := NewRouter(Config{
		ImportRateLimitPerMin: 1,
		UploadDir:             dir,
		UploadBaseURL:         "/uploads",
		UploadMaxMB:           1,
		BankSource:            BankSourceFile,
		BankFile:              bankPath,
	}, nil)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return router
}

func TestRouterPublicRoutes(t *testing.T) {
	router := newFileBankRouter(t)

	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
	}{
		{name: "healthz", method: http.MethodGet, target: "/healthz", wantStatus: http.StatusOK},
		{name: "metrics", method: http.MethodGet, target: "/metrics", wantStatus: http.StatusOK},
		{name: "bank", method: http.MethodGet, target: "/api/v1/bank", wantStatus: http.StatusOK},
		{name: "template", method: http.MethodGet, target: "/api/v1/import/template", wantStatus: http.StatusOK},
		{name: "uploaded_file", method: http.MethodGet, target: "/uploads/hello.png", wantStatus: http.StatusOK},
		{name: "draft_bad_id", method: http.MethodGet, target: "/api/v1/drafts/abc", wantStatus: http.StatusBadRequest},
		{name: "create_invalid_body", method: http.MethodPost, target: "/api/v1/drafts", wantStatus: http.StatusBadRequest},
		{name: "publish_without_writable_bank", method: http.MethodPost, target: "/api/v1/drafts/1/publish", wantStatus: http.StatusConflict},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.target, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tc.wantStatus {
				t.Fatalf("%s %s: got status %d, want %d", tc.method, tc.target, w.Code, tc.wantStatus)
			}
		})
	}
}

func TestRouterListsFileBank(t *testing.T) {
	router := newFileBankRouter(t)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/bank", nil))

	var body struct {
		OK   bool `json:"ok"`
		Data []struct {
			ID       int64  `json:"id"`
			Question string `json:"question"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.OK || len(body.Data) != 1 || body.Data[0].ID != 1 || body.Data[0].Question != "Capital of France?" {
		t.Fatalf("unexpected bank listing: %s", w.Body.String())
	}
}

func TestRouterRateLimitsImport(t *testing.T) {
	router := newFileBankRouter(t)

	// The first request is rejected by draft id validation, the second by the limiter.
	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/drafts/0/import", strings.NewReader(`{"rows":[]}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusBadRequest || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status codes: %v", codes)
	}
}

func TestNewRouterRequiresBankFile(t *testing.T) {
	if _, err := NewRouter(Config{BankSource: BankSourceFile}, nil); err == nil {
		t.Fatalf("expected error when BANK_FILE is missing")
	}
}

func TestLoadConfigBankSource(t *testing.T) {
	t.Setenv("BANK_SOURCE", "FILE")
	t.Setenv("UPLOAD_BASE_URL", "/files/")
	cfg := LoadConfig()
	if cfg.BankSource != BankSourceFile || cfg.UploadBaseURL != "/files" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	t.Setenv("BANK_SOURCE", "")
	if cfg := LoadConfig(); cfg.BankSource != BankSourcePostgres {
		t.Fatalf("expected postgres default, got %s", cfg.BankSource)
	}
}
