package draft

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"testauthor/internal/app/apiresp"
	"testauthor/internal/bank"
	"testauthor/internal/formkey"
	"testauthor/internal/rowimport"
	"testauthor/internal/upload"

	"github.com/go-chi/chi/v5"
)

const maxMultipartMemory = 8 << 20

type Handler struct {
	svc draftService
}

type draftService interface {
	CreateDraft(ctx context.Context, title string) (*Draft, error)
	GetDraft(ctx context.Context, id int64) (*Draft, error)
	AddQuestion(ctx context.Context, draftID int64, in AddQuestionInput) (*Draft, string, error)
	AddAnswer(ctx context.Context, draftID int64, questionKey string, in AddAnswerInput) (*Draft, string, error)
	SetField(ctx context.Context, draftID int64, key, field string, value any) (*Draft, error)
	DeleteQuestion(ctx context.Context, draftID int64, key string) (*Draft, error)
	DeleteAnswer(ctx context.Context, draftID int64, key string) (*Draft, error)
	SetCollapsed(ctx context.Context, draftID int64, key string, collapsed bool) (*Draft, error)
	AttachImage(ctx context.Context, draftID int64, key, filename string, r io.Reader) (*Draft, string, error)
	Import(ctx context.Context, draftID int64, rows []rowimport.Row) (*ImportReport, error)
	ListBank(ctx context.Context) ([]bank.Entry, error)
	CopyFromBank(ctx context.Context, draftID, entryID int64) (*Draft, string, error)
	Publish(ctx context.Context, draftID int64) ([]bank.Entry, error)
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type createDraftRequest struct {
	Title string `json:"title"`
}

type addQuestionRequest struct {
	Question string `json:"question"`
	Category string `json:"categoryName"`
	FreeText bool   `json:"freeText"`
}

type addAnswerRequest struct {
	Answer string  `json:"answer"`
	Point  float64 `json:"point"`
}

type setFieldRequest struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

type collapseRequest struct {
	Collapsed bool `json:"collapsed"`
}

type importRowsRequest struct {
	Rows [][]any `json:"rows"`
}

type mutationResponse struct {
	Key   string    `json:"key,omitempty"`
	URL   string    `json:"url,omitempty"`
	Draft DraftView `json:"draft"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	d, err := h.svc.CreateDraft(r.Context(), req.Title)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: d.View("")})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := draftIDParam(w, r)
	if !ok {
		return
	}

	d, err := h.svc.GetDraft(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: d.View(r.URL.Query().Get("q"))})
}

func (h *Handler) AddQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := draftIDParam(w, r)
	if !ok {
		return
	}
	var req addQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	d, key, err := h.svc.AddQuestion(r.Context(), id, AddQuestionInput{
		Question: req.Question,
		Category: req.Category,
		FreeText: req.FreeText,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: mutationResponse{Key: key, Draft: d.View("")}})
}

func (h *Handler) AddAnswer(w http.ResponseWriter, r *http.Request) {
	id, ok := draftIDParam(w, r)
	if !ok {
		return
	}
	var req addAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	d, key, err := h.svc.AddAnswer(r.Context(), id, chi.URLParam(r, "key"), AddAnswerInput{
		Answer: req.Answer,
		Point:  req.Point,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: mutationResponse{Key: key, Draft: d.View("")}})
}

func (h *Handler) SetField(w http.ResponseWriter, r *http.Request) {
	id, ok := draftIDParam(w, r)
	if !ok {
		return
	}
	var req setFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Field) == "" {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "field is required"})
		return
	}

	key := chi.URLParam(r, "key")
	d, err := h.svc.SetField(r.Context(), id, key, req.Field, req.Value)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: mutationResponse{Key: key, Draft: d.View("")}})
}

// DeleteEntry removes a question (with its answers) or a single answer.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := draftIDParam(w, r)
	if !ok {
		return
	}

	key := chi.URLParam(r, "key")
	var (
		d   *Draft
		err error
	)
	if formkey.IsAnswerKey(key) {
		d, err = h.svc.DeleteAnswer(r.Context(), id, key)
	} else {
		d, err = h.svc.DeleteQuestion(r.Context(), id, key)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: mutationResponse{Key: key, Draft: d.View("")}})
}

func (h *Handler) Collapse(w http.ResponseWriter, r *http.Request) {
	id, ok := draftIDParam(w, r)
	if !ok {
		return
	}
	var req collapseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	key := chi.URLParam(r, "key")
	d, err := h.svc.SetCollapsed(r.Context(), id, key, req.Collapsed)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: mutationResponse{Key: key, Draft: d.View("")}})
}

func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := draftIDParam(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid multipart body"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "file is required"})
		return
	}
	defer func() { _ = file.Close() }()

	key := chi.URLParam(r, "key")
	d, url, err := h.svc.AttachImage(r.Context(), id, key, header.Filename, file)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: mutationResponse{Key: key, URL: url, Draft: d.View("")}})
}

// Import accepts either a multipart spreadsheet upload ("file") or a JSON body
// of already parsed rows.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	id, ok := draftIDParam(w, r)
	if !ok {
		return
	}

	var rows []rowimport.Row
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid multipart body"})
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "file is required"})
			return
		}
		defer func() { _ = file.Close() }()

		rows, err = rowimport.ReadFile(header.Filename, file)
		if err != nil {
			if errors.Is(err, rowimport.ErrUnsupportedFile) {
				writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
				return
			}
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "Error reading the Excel file"})
			return
		}
	} else {
		var req importRowsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
			return
		}
		rows = make([]rowimport.Row, 0, len(req.Rows))
		for _, values := range req.Rows {
			rows = append(rows, rowimport.RowFromValues(values))
		}
	}

	report, err := h.svc.Import(r.Context(), id, rows)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: report})
}

func (h *Handler) ImportTemplate(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := rowimport.WriteTemplate(&buf); err != nil {
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="questions-template.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) ListBank(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListBank(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) CopyFromBank(w http.ResponseWriter, r *http.Request) {
	id, ok := draftIDParam(w, r)
	if !ok {
		return
	}
	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil || entryID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid bank entry id"})
		return
	}

	d, key, err := h.svc.CopyFromBank(r.Context(), id, entryID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: mutationResponse{Key: key, Draft: d.View("")}})
}

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	id, ok := draftIDParam(w, r)
	if !ok {
		return
	}

	items, err := h.svc.Publish(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: items})
}

func draftIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid draft id"})
		return 0, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var keyErr *formkey.MalformedKeyError
	switch {
	case errors.As(err, &keyErr):
		apiresp.WriteErrorDetails(w, r, http.StatusBadRequest, err.Error(), map[string]string{
			"key":    keyErr.Key,
			"reason": keyErr.Reason,
		})
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, formkey.ErrMalformedKey),
		errors.Is(err, ErrUnknownField),
		errors.Is(err, ErrInvalidValue),
		errors.Is(err, upload.ErrUnsupportedType),
		errors.Is(err, upload.ErrEmptyFile):
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, upload.ErrTooLarge):
		writeJSON(w, r, http.StatusRequestEntityTooLarge, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrDraftNotFound),
		errors.Is(err, ErrQuestionMissing),
		errors.Is(err, ErrAnswerMissing),
		errors.Is(err, bank.ErrEntryNotFound):
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrBankUnavailable):
		writeJSON(w, r, http.StatusConflict, apiResponse{OK: false, Error: err.Error()})
	default:
		log.Printf("draft handler %s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
