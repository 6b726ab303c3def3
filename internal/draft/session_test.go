package draft

import (
	"encoding/json"
	"errors"
	"testing"

	"testauthor/internal/bank"
	"testauthor/internal/formkey"
	"testauthor/internal/rowimport"
)

func TestSessionAddAndDeleteNeverReusesIndices(t *testing.T) {
	s := NewSession()
	q0, err := s.AddQuestion("first", "General")
	if err != nil {
		t.Fatalf("add question: %v", err)
	}
	a0, _ := s.AddAnswer(q0, "yes", 10)
	q1, _ := s.AddQuestion("second", "")
	a1, _ := s.AddAnswer(q1, "no", 0)

	if q0 != "question0" || q1 != "question1" || a0 != "question0-answer0" || a1 != "question1-answer1" {
		t.Fatalf("unexpected keys: %s %s %s %s", q0, q1, a0, a1)
	}

	if err := s.DeleteQuestion(q1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	q2, _ := s.AddQuestion("third", "")
	a2, _ := s.AddAnswer(q2, "maybe", 0)
	if q2 != "question2" || a2 != "question2-answer2" {
		t.Fatalf("indices must not be reused, got %s %s", q2, a2)
	}
	if len(s.Store().AnswersOf(q1)) != 0 {
		t.Fatalf("answers of deleted question must be gone")
	}
}

func TestSessionAddAnswerRequiresQuestion(t *testing.T) {
	s := NewSession()
	if _, err := s.AddAnswer("question5", "x", 0); !errors.Is(err, ErrQuestionMissing) {
		t.Fatalf("expected ErrQuestionMissing, got %v", err)
	}
	if _, err := s.AddAnswer("question0-answer1", "x", 0); !errors.Is(err, formkey.ErrMalformedKey) {
		t.Fatalf("expected ErrMalformedKey for answer key, got %v", err)
	}
	if s.Cursor().NextAnswer != 0 {
		t.Fatalf("failed add must not allocate an answer index")
	}
}

func TestSessionSetFieldAndImages(t *testing.T) {
	s := NewSession()
	q, _ := s.AddQuestion("q", "")
	a, _ := s.AddAnswer(q, "a", 0)

	if err := s.SetField(a, "point", "10"); err != nil {
		t.Fatalf("set point: %v", err)
	}
	if err := s.AttachImage(formkey.EncodeImage(q), "/uploads/q.png"); err != nil {
		t.Fatalf("attach question image: %v", err)
	}
	if err := s.AttachImage(a, "/uploads/a.png"); err != nil {
		t.Fatalf("attach answer image: %v", err)
	}
	if err := s.SetFreeText(q, true); err != nil {
		t.Fatalf("free text: %v", err)
	}
	if err := s.SetField("question9", "question", "x"); !errors.Is(err, ErrQuestionMissing) {
		t.Fatalf("editing unknown question must fail, got %v", err)
	}
	if err := s.SetField("question0-answer9", "answer", "x"); !errors.Is(err, ErrAnswerMissing) {
		t.Fatalf("editing unknown answer must fail, got %v", err)
	}

	views := s.View("")
	if len(views) != 1 {
		t.Fatalf("expected 1 question view, got %d", len(views))
	}
	v := views[0]
	if !v.FreeText || v.Image == nil || *v.Image != "/uploads/q.png" {
		t.Fatalf("unexpected question view: %+v", v)
	}
	if v.Answers[0].Point != 10 || v.Answers[0].Image == nil || *v.Answers[0].Image != "/uploads/a.png" {
		t.Fatalf("unexpected answer view: %+v", v.Answers[0])
	}
}

func TestSessionImport(t *testing.T) {
	s := NewSession()
	rows := []rowimport.Row{
		rowimport.RowFromStrings("Question", "Answer", "Correct", "Category"),
		rowimport.RowFromStrings("What is 2+2?", "4", "false", "Math"),
		rowimport.RowFromValues([]any{nil, "5", "TRUE", nil}),
		rowimport.RowFromValues([]any{"Only question", nil, "true", "Cat"}),
		rowimport.RowFromStrings("Capital of France?", "Paris", "true", "Geo"),
	}
	report := s.Import(rows)

	if report.TotalRows != 5 || report.ImportedRows != 3 || report.SkippedRows != 1 || report.FailedRows != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Warning != rowimport.InvalidFormatWarning {
		t.Fatalf("expected warning, got %q", report.Warning)
	}
	if len(report.Errors) != 1 || report.Errors[0].Row != 4 || report.Errors[0].Kind != string(rowimport.UnmatchedPattern) {
		t.Fatalf("unexpected errors: %+v", report.Errors)
	}
	if len(report.Questions) != 2 || report.Questions[0] != "question0" || report.Questions[1] != "question1" {
		t.Fatalf("unexpected questions: %v", report.Questions)
	}

	views := s.View("")
	if len(views[0].Answers) != 2 || views[0].Answers[0].Point != 0 || views[0].Answers[1].Point != 10 {
		t.Fatalf("unexpected answers for question0: %+v", views[0].Answers)
	}
	if cur := s.Cursor(); cur.NextQuestion != 2 || cur.NextAnswer != 3 {
		t.Fatalf("unexpected cursor: %+v", cur)
	}
}

func TestSessionImportContinuesAfterManualQuestions(t *testing.T) {
	s := NewSession()
	q, _ := s.AddQuestion("manual", "")
	report := s.Import([]rowimport.Row{rowimport.RowFromValues([]any{nil, "extra", "false"})})

	if report.ImportedRows != 1 || report.Warning != "" {
		t.Fatalf("continuation should attach to the current question: %+v", report)
	}
	if got := s.Store().AnswersOf(q); len(got) != 1 || got[0].Answer.Answer != "extra" {
		t.Fatalf("unexpected answers: %+v", got)
	}
}

func TestSessionImportOrphanedRow(t *testing.T) {
	empty := NewSession()
	report := empty.Import([]rowimport.Row{rowimport.RowFromValues([]any{nil, "5", "true"})})
	if report.FailedRows != 1 || report.ImportedRows != 0 {
		t.Fatalf("orphaned row without question0 must fail: %+v", report)
	}
	if len(report.Errors) != 1 || report.Errors[0].Kind != string(rowimport.OrphanedAnswerRow) {
		t.Fatalf("expected orphaned error, got %+v", report.Errors)
	}

	// question0 exists but was never made current by this cursor.
	restored, err := restoreSession(snapshot{Entries: []Entry{
		{Key: "question0", Question: &QuestionRecord{Question: "blank"}},
	}}, rowimport.Cursor{NextQuestion: 1})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	report = restored.Import([]rowimport.Row{rowimport.RowFromValues([]any{nil, "5", "true"})})
	if report.ImportedRows != 1 || report.Warning != rowimport.InvalidFormatWarning {
		t.Fatalf("orphaned row should land on question0 with a warning: %+v", report)
	}
	if got := restored.Store().AnswersOf("question0"); len(got) != 1 {
		t.Fatalf("expected answer on question0, got %d", len(got))
	}
}

func TestSessionCopyFromBankAllocatesFreshIndices(t *testing.T) {
	s := NewSession()
	_, _ = s.AddQuestion("", "")
	img := "/uploads/paris.png"
	key, err := s.CopyFromBank(bank.Entry{
		ID:       7,
		Question: "Capital of France?",
		Category: "Geo",
		Image:    &img,
		Answers: []bank.Answer{
			{Key: "answer8", Answer: "Paris", Points: 10},
			{Key: "answer3", Answer: "Lyon", Points: 0},
		},
	})
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if key != "question1" {
		t.Fatalf("expected question1, got %s", key)
	}
	answers := s.Store().AnswersOf(key)
	if len(answers) != 2 || answers[0].Key != "question1-answer0" || answers[1].Key != "question1-answer1" {
		t.Fatalf("unexpected answer keys: %+v", answers)
	}
	if answers[0].Answer.Answer != "Paris" || answers[0].Answer.Point != 10 {
		t.Fatalf("unexpected first answer: %+v", answers[0].Answer)
	}

	entries := s.BankEntries()
	if len(entries) != 1 || entries[0].Question != "Capital of France?" || len(entries[0].Answers) != 2 {
		t.Fatalf("blank questions are skipped when publishing: %+v", entries)
	}
}

func TestSessionCopyFromBankBlankCategory(t *testing.T) {
	s := NewSession()
	key, err := s.CopyFromBank(bank.Entry{ID: 3, Question: "Uncategorised?", Category: "  "})
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	e, _ := s.Store().Get(key)
	if e.Question.CategoryName != nil {
		t.Fatalf("blank category must stay unset, got %q", *e.Question.CategoryName)
	}

	manual, _ := s.AddQuestion("manual", "")
	m, _ := s.Store().Get(manual)
	if m.Question.CategoryName != nil {
		t.Fatalf("AddQuestion with blank category must stay unset")
	}
}

func TestFilterAndCollapse(t *testing.T) {
	s := NewSession()
	q0, _ := s.AddQuestion("What is the Capital of France?", "")
	q1, _ := s.AddQuestion("What is 2+2?", "")
	if err := s.SetCollapsed(q1, true); err != nil {
		t.Fatalf("collapse: %v", err)
	}
	if err := s.SetCollapsed("question9", true); !errors.Is(err, ErrQuestionMissing) {
		t.Fatalf("expected ErrQuestionMissing, got %v", err)
	}

	views := s.View("capital")
	if len(views) != 2 {
		t.Fatalf("filter hides, it does not drop: got %d views", len(views))
	}
	if views[0].Key != q0 || !views[0].Visible || views[0].Collapsed {
		t.Fatalf("unexpected first view: %+v", views[0])
	}
	if views[1].Visible || !views[1].Collapsed {
		t.Fatalf("unexpected second view: %+v", views[1])
	}
}

func TestSessionSnapshotRoundTrip(t *testing.T) {
	s := NewSession()
	q, _ := s.AddQuestion("q", "C")
	_, _ = s.AddAnswer(q, "a", 10)
	_ = s.SetCollapsed(q, true)

	raw, err := json.Marshal(s.snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	restored, err := restoreSession(snap, s.Cursor())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}

	got := restored.View("")
	want := s.View("")
	if len(got) != 1 || got[0].Key != want[0].Key || !got[0].Collapsed || len(got[0].Answers) != 1 {
		t.Fatalf("unexpected restored view: %+v", got)
	}
	if restored.Cursor() != s.Cursor() {
		t.Fatalf("cursor mismatch got=%+v want=%+v", restored.Cursor(), s.Cursor())
	}
}
