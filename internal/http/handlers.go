package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/Hero472/bdnsql/internal/domain"
	"github.com/Hero472/bdnsql/internal/workflow"
)

const maxRequestBody = 1 << 20 // 1 MiB

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type enrollmentRequest struct {
	UserEmail string `json:"user_email" validate:"required,email"`
	CourseID  string `json:"course_id" validate:"required,uuid"`
}

type completeClassRequest struct {
	UserEmail string `json:"user_email" validate:"required,email"`
	CourseID  string `json:"course_id" validate:"required,uuid"`
	ClassID   string `json:"class_id" validate:"required,uuid"`
}

type statusRequest struct {
	UserEmail string         `json:"user_email" validate:"required,email"`
	CourseID  string         `json:"course_id" validate:"required,uuid"`
	Status    *domain.Status `json:"status" validate:"required"`
}

type ratingRequest struct {
	UserEmail string   `json:"user_email" validate:"required,email"`
	CourseID  string   `json:"course_id" validate:"required,uuid"`
	Rating    *float64 `json:"rating" validate:"required"`
}

type commentRequest struct {
	Author        string `json:"author" validate:"required,email"`
	Title         string `json:"title" validate:"required"`
	Detail        string `json:"detail" validate:"required"`
	ReferenceID   string `json:"reference_id" validate:"required,uuid"`
	ReferenceType string `json:"reference_type" validate:"required,oneof=course class"`
}

type progressResponse struct {
	UserEmail        string        `json:"user_email"`
	CourseID         string        `json:"course_id"`
	Status           domain.Status `json:"status"`
	StatusText       string        `json:"status_text"`
	Percentage       int           `json:"percentage"`
	CompletedClasses []string      `json:"completed_classes"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

type ratingResponse struct {
	Rating     float64 `json:"rating"`
	TotalRates int64   `json:"total_rates"`
	Mirrored   bool    `json:"mirrored"`
}

type ratingAggregateResponse struct {
	Rating     *float64 `json:"rating"`
	TotalRates int64    `json:"total_rates"`
}

type unitResponse struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Order    int      `json:"order"`
	ClassIDs []string `json:"class_ids"`
}

type courseResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Image       string         `json:"image"`
	ImageBanner string         `json:"image_banner"`
	Inscribed   int64          `json:"inscribed"`
	Rating      *float64       `json:"rating"`
	TotalRates  int64          `json:"total_rates"`
	Comments    int64          `json:"comments"`
	Units       []unitResponse `json:"units"`
}

type commentResponse struct {
	ID            string    `json:"id"`
	Author        string    `json:"author"`
	Title         string    `json:"title"`
	Detail        string    `json:"detail"`
	Likes         int       `json:"likes"`
	Dislikes      int       `json:"dislikes"`
	ReferenceID   string    `json:"reference_id"`
	ReferenceType string    `json:"reference_type"`
	CreatedAt     time.Time `json:"created_at"`
	Mirrored      bool      `json:"mirrored"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req enrollmentRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if err := s.tracker.Register(r.Context(), req.UserEmail, req.CourseID); err != nil {
		s.respondWorkflowError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, messageResponse{Message: "registered"})
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	var req enrollmentRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if err := s.tracker.Unregister(r.Context(), req.UserEmail, req.CourseID); err != nil {
		s.respondWorkflowError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, messageResponse{Message: "unregistered"})
}

func (s *Server) handleCompleteClass(w http.ResponseWriter, r *http.Request) {
	var req completeClassRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	rec, err := s.tracker.CompleteClass(r.Context(), req.UserEmail, req.CourseID, req.ClassID)
	if err != nil {
		s.respondWorkflowError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, toProgressResponse(rec))
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	rec, err := s.tracker.UpdateStatus(r.Context(), req.UserEmail, req.CourseID, *req.Status)
	if err != nil {
		s.respondWorkflowError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, toProgressResponse(rec))
}

func (s *Server) handleSubmitRating(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	out, err := s.tracker.SubmitRating(r.Context(), req.UserEmail, req.CourseID, *req.Rating)
	if err != nil {
		s.respondWorkflowError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, ratingResponse{
		Rating:     out.Rating,
		TotalRates: out.TotalRates,
		Mirrored:   out.MirrorErr == nil,
	})
}

func (s *Server) handleGetRating(w http.ResponseWriter, r *http.Request) {
	courseID, err := pathParam(r, "courseID")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	agg, err := s.tracker.CourseRating(r.Context(), courseID)
	if err != nil {
		s.respondWorkflowError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, ratingAggregateResponse{Rating: agg.Average, TotalRates: agg.Count})
}

func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	courseID, err := pathParam(r, "courseID")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	view, err := s.tracker.Course(r.Context(), courseID)
	if err != nil {
		s.respondWorkflowError(w, r, err)
		return
	}
	c := view.Course
	resp := courseResponse{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Image:       c.Image,
		ImageBanner: c.ImageBanner,
		Inscribed:   c.Inscribed,
		Rating:      c.Rating,
		TotalRates:  c.TotalRates,
		Comments:    view.Comments,
		Units:       make([]unitResponse, 0, len(view.Units)),
	}
	for _, u := range view.Units {
		classes := u.ClassIDs
		if classes == nil {
			classes = []string{}
		}
		resp.Units = append(resp.Units, unitResponse{ID: u.ID, Name: u.Name, Order: u.Order, ClassIDs: classes})
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	out, err := s.tracker.PostComment(r.Context(), workflow.CommentInput{
		Author:        req.Author,
		Title:         req.Title,
		Detail:        req.Detail,
		ReferenceID:   req.ReferenceID,
		ReferenceType: req.ReferenceType,
	})
	if err != nil {
		s.respondWorkflowError(w, r, err)
		return
	}
	c := out.Comment
	s.respondJSON(w, http.StatusCreated, commentResponse{
		ID:            c.ID,
		Author:        c.Author,
		Title:         c.Title,
		Detail:        c.Detail,
		Likes:         c.Likes,
		Dislikes:      c.Dislikes,
		ReferenceID:   c.ReferenceID,
		ReferenceType: c.ReferenceType,
		CreatedAt:     c.CreatedAt,
		Mirrored:      out.MirrorErr == nil,
	})
}

func (s *Server) handleUserCourses(w http.ResponseWriter, r *http.Request) {
	email, err := pathParam(r, "email")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	records, err := s.tracker.UserCourses(r.Context(), email)
	if err != nil {
		s.respondWorkflowError(w, r, err)
		return
	}
	resp := make([]progressResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toProgressResponse(rec))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUserCourse(w http.ResponseWriter, r *http.Request) {
	email, err := pathParam(r, "email")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	courseID, err := pathParam(r, "courseID")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	rec, err := s.tracker.Progress(r.Context(), email, courseID)
	if err != nil {
		s.respondWorkflowError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, toProgressResponse(rec))
}

func toProgressResponse(rec domain.ProgressRecord) progressResponse {
	classes := rec.CompletedClasses
	if classes == nil {
		classes = []string{}
	}
	return progressResponse{
		UserEmail:        rec.Key.UserEmail,
		CourseID:         rec.Key.CourseID,
		Status:           rec.Status,
		StatusText:       rec.Status.String(),
		Percentage:       rec.CompletionPercentage,
		CompletedClasses: classes,
		UpdatedAt:        rec.UpdatedAt,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldCodes maps request fields to the code the workflow would report.
var fieldCodes = map[string]string{
	"user_email": workflow.ErrInvalidEmail.Code,
	"author":     workflow.ErrInvalidEmail.Code,
	"course_id":  workflow.ErrInvalidCourseID.Code,
	"class_id":   workflow.ErrInvalidClassID.Code,
	"rating":     workflow.ErrInvalidRating.Code,
	"status":     workflow.ErrInvalidStatus.Code,
}

// decodeAndValidate decodes the body into dst and runs struct validation.
// It writes the error response itself and reports whether to continue.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := decodeJSONBody(w, r, dst); err != nil {
		s.respondDecodeError(w, err)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) || len(verrs) == 0 {
			s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request")
			return false
		}
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		code, ok := fieldCodes[verrs[0].Field()]
		if !ok {
			code = "VALIDATION_ERROR"
		}
		s.respondJSON(w, http.StatusBadRequest, errorResponse{
			Code:    code,
			Message: fmt.Sprintf("Invalid value for field %s", verrs[0].Field()),
			Details: fields,
		})
		return false
	}
	return true
}

func (s *Server) respondWorkflowError(w http.ResponseWriter, r *http.Request, err error) {
	we, ok := workflow.AsError(err)
	if !ok {
		s.reportFailure(r, "INTERNAL_ERROR", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error")
		return
	}
	switch we.Kind {
	case workflow.KindValidation, workflow.KindConflict:
		s.respondError(w, http.StatusBadRequest, we.Code, we.Message)
	case workflow.KindNotFound:
		s.respondError(w, http.StatusNotFound, we.Code, we.Message)
	default:
		s.reportFailure(r, we.Code, err)
		s.respondError(w, http.StatusInternalServerError, we.Code, we.Message)
	}
}

// reportFailure forwards a 5xx cause to the reporter, which also logs it.
func (s *Server) reportFailure(r *http.Request, code string, err error) {
	s.reporter.Error("http: "+code, err, map[string]any{
		"method":     r.Method,
		"path":       r.URL.Path,
		"request_id": middleware.GetReqID(r.Context()),
	})
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Printf("failed to encode response: %v", err)
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) respondDecodeError(w http.ResponseWriter, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.Is(err, domain.ErrInvalidStatus):
		s.respondError(w, http.StatusBadRequest, workflow.ErrInvalidStatus.Code, err.Error())
	case errors.As(err, &syntaxError):
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Malformed JSON payload")
	case errors.As(err, &typeError):
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("Invalid value for field %s", typeError.Field))
	case errors.As(err, &maxBytesError):
		s.respondError(w, http.StatusRequestEntityTooLarge, "VALIDATION_ERROR", "Request body too large")
	case errors.Is(err, io.EOF):
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Request body cannot be empty")
	default:
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unable to parse request body")
	}
}

func pathParam(r *http.Request, name string) (string, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return "", fmt.Errorf("missing %s parameter", name)
	}
	value, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("invalid %s parameter", name)
	}
	return value, nil
}
