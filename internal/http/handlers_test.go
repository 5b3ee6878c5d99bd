package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Hero472/bdnsql/internal/config"
	"github.com/Hero472/bdnsql/internal/domain"
	"github.com/Hero472/bdnsql/internal/report"
	"github.com/Hero472/bdnsql/internal/workflow"
)

const (
	testCourseID = "5b0b4c52-8f0e-4b61-9d0e-3f4a5d1c2b7a"
	testClassID  = "0f6c3a8e-2d41-4c1b-a5e9-7b2d8c4f1e03"
)

// stubTracker returns canned results; err, when set, is returned by every call.
type stubTracker struct {
	err       error
	record    domain.ProgressRecord
	records   []domain.ProgressRecord
	rating    workflow.RatingOutcome
	aggregate domain.RatingAggregate
	comment   workflow.CommentOutcome

	overview workflow.CourseOverview

	lastStatus domain.Status
	lastRating float64
	lastInput  workflow.CommentInput
}

func (s *stubTracker) Register(context.Context, string, string) error   { return s.err }
func (s *stubTracker) Unregister(context.Context, string, string) error { return s.err }

func (s *stubTracker) CompleteClass(context.Context, string, string, string) (domain.ProgressRecord, error) {
	return s.record, s.err
}

func (s *stubTracker) UpdateStatus(_ context.Context, _, _ string, status domain.Status) (domain.ProgressRecord, error) {
	s.lastStatus = status
	return s.record, s.err
}

func (s *stubTracker) Progress(context.Context, string, string) (domain.ProgressRecord, error) {
	return s.record, s.err
}

func (s *stubTracker) UserCourses(context.Context, string) ([]domain.ProgressRecord, error) {
	return s.records, s.err
}

func (s *stubTracker) SubmitRating(_ context.Context, _, _ string, value float64) (workflow.RatingOutcome, error) {
	s.lastRating = value
	return s.rating, s.err
}

func (s *stubTracker) CourseRating(context.Context, string) (domain.RatingAggregate, error) {
	return s.aggregate, s.err
}

func (s *stubTracker) PostComment(_ context.Context, in workflow.CommentInput) (workflow.CommentOutcome, error) {
	s.lastInput = in
	return s.comment, s.err
}

func (s *stubTracker) Course(context.Context, string) (workflow.CourseOverview, error) {
	return s.overview, s.err
}

type stubCheck struct{ err error }

// recordingReporter keeps every report it receives.
type recordingReporter struct {
	mu     sync.Mutex
	msgs   []string
	errs   []error
	fields []map[string]any
}

func (r *recordingReporter) Error(msg string, err error, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	r.errs = append(r.errs, err)
	r.fields = append(r.fields, fields)
}

func (r *recordingReporter) Close() {}

func (c stubCheck) HealthCheck(context.Context) error { return c.err }

func buildStubServer(tb testing.TB, tracker Tracker, checks map[string]HealthChecker) *Server {
	tb.Helper()
	return buildReportingServer(tb, tracker, checks, nil)
}

func buildReportingServer(tb testing.TB, tracker Tracker, checks map[string]HealthChecker, reporter report.Reporter) *Server {
	tb.Helper()
	cfg := config.Config{Port: "0", ReadTimeoutSecs: 15, WriteTimeoutSecs: 15, IdleTimeoutSecs: 60}
	return New(cfg, tracker, checks, reporter, log.New(io.Discard, "", 0))
}

func do(t testing.TB, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestHandleRegister(t *testing.T) {
	body := `{"user_email":"ana@example.com","course_id":"` + testCourseID + `"}`

	tests := []struct {
		name     string
		body     string
		err      error
		want     int
		wantCode string
	}{
		{"ok", body, nil, http.StatusOK, ""},
		{"already registered", body, workflow.ErrAlreadyRegistered, http.StatusBadRequest, "ALREADY_REGISTERED"},
		{"course not found", body, workflow.ErrCourseNotFound, http.StatusNotFound, "COURSE_NOT_FOUND"},
		{"store down", body, errors.Join(workflow.ErrContentStoreUnavailable, errors.New("dial")), http.StatusInternalServerError, "CONTENT_STORE_UNAVAILABLE"},
		{"bad course id", `{"user_email":"ana@example.com","course_id":"123"}`, nil, http.StatusBadRequest, "INVALID_COURSE_ID"},
		{"bad email", `{"user_email":"ana","course_id":"` + testCourseID + `"}`, nil, http.StatusBadRequest, "INVALID_EMAIL"},
		{"unknown field", `{"user_email":"ana@example.com","course_id":"` + testCourseID + `","x":1}`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"malformed", `{`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"empty", ``, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := buildStubServer(t, &stubTracker{err: tt.err}, nil)
			rec := do(t, srv, http.MethodPost, "/register", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.wantCode != "" {
				if got := decodeError(t, rec).Code; got != tt.wantCode {
					t.Fatalf("code = %s, want %s", got, tt.wantCode)
				}
			}
		})
	}
}

func TestHandleUnregister(t *testing.T) {
	srv := buildStubServer(t, &stubTracker{}, nil)
	rec := do(t, srv, http.MethodDelete, "/register", `{"user_email":"ana@example.com","course_id":"`+testCourseID+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleCompleteClass(t *testing.T) {
	status, _ := domain.InProgress(25)
	tracker := &stubTracker{record: domain.ProgressRecord{
		Key:                  domain.ProgressKey{UserEmail: "ana@example.com", CourseID: testCourseID},
		Status:               status,
		CompletedClasses:     []string{testClassID},
		CompletionPercentage: 25,
		UpdatedAt:            time.Now(),
	}}
	srv := buildStubServer(t, tracker, nil)

	body := `{"user_email":"ana@example.com","course_id":"` + testCourseID + `","class_id":"` + testClassID + `"}`
	rec := do(t, srv, http.MethodPost, "/complete-class", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var resp progressResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Percentage != 25 || resp.Status != status || resp.StatusText != "In Progress: 25.00%" {
		t.Fatalf("response = %+v", resp)
	}
	if !strings.Contains(rec.Body.String(), `"status":{"type":"InProgress","value":25}`) {
		t.Fatalf("status not tagged in body: %s", rec.Body.String())
	}

	for _, tt := range []struct {
		err  error
		want int
	}{
		{workflow.ErrNotRegistered, http.StatusBadRequest},
		{workflow.ErrClassNotFound, http.StatusNotFound},
		{workflow.ErrProgressStoreUnavailable, http.StatusInternalServerError},
	} {
		tracker.err = tt.err
		rec := do(t, srv, http.MethodPost, "/complete-class", body)
		if rec.Code != tt.want {
			t.Fatalf("%v: status = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}

	tracker.err = nil
	rec = do(t, srv, http.MethodPost, "/complete-class", `{"user_email":"ana@example.com","course_id":"`+testCourseID+`","class_id":"x"}`)
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Code != "INVALID_CLASS_ID" {
		t.Fatalf("bad class id: status = %d body %s", rec.Code, rec.Body.String())
	}
}

func TestHandleUpdateStatus(t *testing.T) {
	tracker := &stubTracker{record: domain.ProgressRecord{Status: domain.Completed(), CompletionPercentage: 100}}
	srv := buildStubServer(t, tracker, nil)

	body := `{"user_email":"ana@example.com","course_id":"` + testCourseID + `","status":{"type":"Completed"}}`
	rec := do(t, srv, http.MethodPost, "/course-status", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if tracker.lastStatus != domain.Completed() {
		t.Fatalf("tracker got %v, want Completed", tracker.lastStatus)
	}

	bad := `{"user_email":"ana@example.com","course_id":"` + testCourseID + `","status":{"type":"InProgress","value":120}}`
	rec = do(t, srv, http.MethodPost, "/course-status", bad)
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Code != "INVALID_STATUS" {
		t.Fatalf("out of range status: %d %s", rec.Code, rec.Body.String())
	}

	missing := `{"user_email":"ana@example.com","course_id":"` + testCourseID + `"}`
	rec = do(t, srv, http.MethodPost, "/course-status", missing)
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Code != "INVALID_STATUS" {
		t.Fatalf("missing status: %d %s", rec.Code, rec.Body.String())
	}

	tracker.err = workflow.ErrStatusMismatch
	rec = do(t, srv, http.MethodPost, "/course-status", body)
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Code != "STATUS_MISMATCH" {
		t.Fatalf("mismatch: %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandleSubmitRating(t *testing.T) {
	tracker := &stubTracker{rating: workflow.RatingOutcome{Rating: 4, TotalRates: 2}}
	srv := buildStubServer(t, tracker, nil)
	body := `{"user_email":"ana@example.com","course_id":"` + testCourseID + `","rating":5}`

	rec := do(t, srv, http.MethodPost, "/rating", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var resp ratingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Rating != 4 || resp.TotalRates != 2 || !resp.Mirrored {
		t.Fatalf("response = %+v", resp)
	}
	if tracker.lastRating != 5 {
		t.Fatalf("tracker rating = %v, want 5", tracker.lastRating)
	}

	tracker.rating.MirrorErr = workflow.ErrMirrorFailure
	rec = do(t, srv, http.MethodPost, "/rating", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("mirror failure must not fail the request: %d", rec.Code)
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Mirrored {
		t.Fatalf("mirrored = true, want false")
	}

	tracker.err = workflow.ErrInvalidRating
	rec = do(t, srv, http.MethodPost, "/rating", body)
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Code != "INVALID_RATING" {
		t.Fatalf("invalid rating: %d %s", rec.Code, rec.Body.String())
	}

	tracker.err = nil
	rec = do(t, srv, http.MethodPost, "/rating", `{"user_email":"ana@example.com","course_id":"`+testCourseID+`"}`)
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Code != "INVALID_RATING" {
		t.Fatalf("missing rating: %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandleGetRating(t *testing.T) {
	avg := 4.0
	tracker := &stubTracker{aggregate: domain.RatingAggregate{Average: &avg, Count: 2}}
	srv := buildStubServer(t, tracker, nil)

	rec := do(t, srv, http.MethodGet, "/courses/"+testCourseID+"/rating", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"rating":4`) || !strings.Contains(rec.Body.String(), `"total_rates":2`) {
		t.Fatalf("body = %s", rec.Body.String())
	}

	tracker.aggregate = domain.RatingAggregate{}
	rec = do(t, srv, http.MethodGet, "/courses/"+testCourseID+"/rating", "")
	if !strings.Contains(rec.Body.String(), `"rating":null`) {
		t.Fatalf("unrated course body = %s", rec.Body.String())
	}

	tracker.err = workflow.ErrCourseNotFound
	rec = do(t, srv, http.MethodGet, "/courses/"+testCourseID+"/rating", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleCreateComment(t *testing.T) {
	tracker := &stubTracker{comment: workflow.CommentOutcome{Comment: domain.Comment{
		ID:            "c0a80101-0000-4000-8000-000000000001",
		Author:        "ana@example.com",
		Title:         "Nice",
		Detail:        "Loved it",
		ReferenceID:   testCourseID,
		ReferenceType: domain.ReferenceCourse,
	}}}
	srv := buildStubServer(t, tracker, nil)

	body := `{"author":"ana@example.com","title":"Nice","detail":"Loved it","reference_id":"` + testCourseID + `","reference_type":"course"}`
	rec := do(t, srv, http.MethodPost, "/comments", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}
	if tracker.lastInput.ReferenceType != domain.ReferenceCourse || tracker.lastInput.Title != "Nice" {
		t.Fatalf("tracker input = %+v", tracker.lastInput)
	}

	bad := `{"author":"ana@example.com","title":"Nice","detail":"Loved it","reference_id":"` + testCourseID + `","reference_type":"unit"}`
	rec = do(t, srv, http.MethodPost, "/comments", bad)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleUserCourses(t *testing.T) {
	tracker := &stubTracker{records: []domain.ProgressRecord{
		{Key: domain.ProgressKey{UserEmail: "ana@example.com", CourseID: testCourseID}, Status: domain.Initiated()},
	}}
	srv := buildStubServer(t, tracker, nil)

	rec := do(t, srv, http.MethodGet, "/users/ana@example.com/courses", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var resp []progressResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 1 || resp[0].CourseID != testCourseID || resp[0].CompletedClasses == nil {
		t.Fatalf("response = %+v", resp)
	}

	tracker.err = workflow.ErrProgressNotFound
	rec = do(t, srv, http.MethodGet, "/users/ana@example.com/courses/"+testCourseID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleHealthz(t *testing.T) {
	srv := buildStubServer(t, &stubTracker{}, map[string]HealthChecker{
		"content":  stubCheck{},
		"progress": stubCheck{},
	})
	rec := do(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	srv = buildStubServer(t, &stubTracker{}, map[string]HealthChecker{
		"content":  stubCheck{},
		"progress": stubCheck{err: errors.New("closed")},
	})
	rec = do(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"failing":["progress"]`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestUnclassifiedErrorIsInternal(t *testing.T) {
	srv := buildStubServer(t, &stubTracker{err: errors.New("boom")}, nil)
	rec := do(t, srv, http.MethodPost, "/register", `{"user_email":"ana@example.com","course_id":"`+testCourseID+`"}`)
	if rec.Code != http.StatusInternalServerError || decodeError(t, rec).Code != "INTERNAL_ERROR" {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Fatalf("internal cause leaked: %s", rec.Body.String())
	}
}

func TestServerFailuresAreReported(t *testing.T) {
	body := `{"user_email":"ana@example.com","course_id":"` + testCourseID + `"}`
	cause := errors.New("dial tcp: connection refused")

	tests := []struct {
		name     string
		err      error
		wantMsg  string
		reported bool
	}{
		{"store unavailable", errors.Join(workflow.ErrProgressStoreUnavailable, cause), "http: PROGRESS_STORE_UNAVAILABLE", true},
		{"unclassified", cause, "http: INTERNAL_ERROR", true},
		{"conflict", workflow.ErrAlreadyRegistered, "", false},
		{"not found", workflow.ErrCourseNotFound, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reporter := &recordingReporter{}
			srv := buildReportingServer(t, &stubTracker{err: tt.err}, nil, reporter)
			do(t, srv, http.MethodPost, "/register", body)

			if !tt.reported {
				if len(reporter.msgs) != 0 {
					t.Fatalf("client error reported: %v", reporter.msgs)
				}
				return
			}
			if len(reporter.msgs) != 1 || reporter.msgs[0] != tt.wantMsg {
				t.Fatalf("reports = %v, want [%s]", reporter.msgs, tt.wantMsg)
			}
			if !errors.Is(reporter.errs[0], cause) {
				t.Fatalf("reported error %v does not carry the cause", reporter.errs[0])
			}
			if reporter.fields[0]["path"] != "/register" || reporter.fields[0]["method"] != http.MethodPost {
				t.Fatalf("fields = %v", reporter.fields[0])
			}
		})
	}
}

func TestHandleGetCourse(t *testing.T) {
	avg := 4.5
	tracker := &stubTracker{overview: workflow.CourseOverview{
		Course: domain.Course{ID: testCourseID, Name: "Mastering Go", Inscribed: 3, Rating: &avg, TotalRates: 2},
		Units: []domain.Unit{
			{ID: "u1", Name: "Basics", Order: 1, ClassIDs: []string{testClassID}},
			{ID: "u2", Name: "Empty", Order: 2},
		},
		Comments: 5,
	}}
	srv := buildStubServer(t, tracker, nil)

	rec := do(t, srv, http.MethodGet, "/courses/"+testCourseID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var resp courseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Name != "Mastering Go" || resp.Inscribed != 3 || resp.Comments != 5 || resp.Rating == nil || *resp.Rating != 4.5 {
		t.Fatalf("response = %+v", resp)
	}
	if len(resp.Units) != 2 || resp.Units[0].ClassIDs[0] != testClassID || resp.Units[1].ClassIDs == nil {
		t.Fatalf("units = %+v", resp.Units)
	}

	tracker.err = workflow.ErrCourseNotFound
	rec = do(t, srv, http.MethodGet, "/courses/"+testCourseID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
