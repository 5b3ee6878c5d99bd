// Package workflow keeps progress records, course content and the derived
// graph consistent without cross-store transactions. Every step either
// succeeds or returns at once; writes that cannot be undone are ordered last
// and their inconsistency windows are left visible rather than compensated.
package workflow

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Hero472/bdnsql/internal/domain"
	"github.com/Hero472/bdnsql/internal/graph"
	"github.com/Hero472/bdnsql/internal/report"
	"github.com/Hero472/bdnsql/internal/repository"
)

// ContentStore is the subset of the content database the workflows read and write.
type ContentStore interface {
	CourseExists(ctx context.Context, courseID string) (bool, error)
	ClassExists(ctx context.Context, classID string) (bool, error)
	ClassBelongsToCourse(ctx context.Context, classID, courseID string) (bool, error)
	ClassCountForCourse(ctx context.Context, courseID string) (int, error)
	IncrementInscribed(ctx context.Context, courseID string) error
	ApplyRating(ctx context.Context, courseID string, value float64) (domain.RatingAggregate, error)
	Rating(ctx context.Context, courseID string) (domain.RatingAggregate, error)
	CreateComment(ctx context.Context, params repository.CommentCreateParams) (domain.Comment, error)
	GetCourse(ctx context.Context, courseID string) (domain.Course, error)
	ListUnits(ctx context.Context, courseID string) ([]domain.Unit, error)
	CountComments(ctx context.Context, referenceType, referenceID string) (int64, error)
}

// ProgressStore is the key-value store of per-user course progress.
type ProgressStore interface {
	Get(ctx context.Context, key domain.ProgressKey) (domain.ProgressRecord, error)
	Exists(ctx context.Context, key domain.ProgressKey) (bool, error)
	PutIfAbsent(ctx context.Context, rec domain.ProgressRecord) error
	AddCompletedClass(ctx context.Context, key domain.ProgressKey, classID string) (domain.ProgressRecord, error)
	Update(ctx context.Context, key domain.ProgressKey, fn func(*domain.ProgressRecord) error) (domain.ProgressRecord, error)
	Delete(ctx context.Context, key domain.ProgressKey) error
	ListByUser(ctx context.Context, email string) ([]domain.ProgressRecord, error)
}

// Options tunes the workflows.
type Options struct {
	// StrictClassMembership makes CompleteClass reject classes whose unit
	// belongs to a different course. Off by default.
	StrictClassMembership bool
	MirrorTimeout         time.Duration
	Now                   func() time.Time
	Logger                *log.Logger
}

// Service runs the enrollment, completion and rating workflows.
type Service struct {
	content  ContentStore
	progress ProgressStore
	mirror   graph.Mirror
	reporter report.Reporter
	validate *validator.Validate
	opts     Options
	logger   *log.Logger
}

// New wires a Service. A nil mirror disables graph writes and a nil reporter
// falls back to logging.
func New(content ContentStore, progress ProgressStore, mirror graph.Mirror, reporter report.Reporter, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MirrorTimeout <= 0 {
		opts.MirrorTimeout = 3 * time.Second
	}
	if mirror == nil {
		mirror = graph.Noop{}
	}
	if reporter == nil {
		reporter = report.NewLogReporter(opts.Logger)
	}
	return &Service{
		content:  content,
		progress: progress,
		mirror:   mirror,
		reporter: reporter,
		validate: validator.New(),
		opts:     opts,
		logger:   opts.Logger,
	}
}

func (s *Service) now() time.Time { return s.opts.Now().UTC() }

func (s *Service) checkEmail(email string) error {
	if strings.TrimSpace(email) == "" || s.validate.Var(email, "required,email") != nil {
		return ErrInvalidEmail
	}
	return nil
}

// canonicalUUID accepts only the lowercase hyphenated 36-character form, so
// one course or class never maps to two progress keys.
func canonicalUUID(id string) bool {
	parsed, err := uuid.Parse(id)
	return err == nil && parsed.String() == id
}

func checkCourseID(id string) error {
	if !canonicalUUID(id) {
		return ErrInvalidCourseID
	}
	return nil
}

func checkClassID(id string) error {
	if !canonicalUUID(id) {
		return ErrInvalidClassID
	}
	return nil
}

// mirrorWrite runs fn against the graph on a context that outlives the
// caller's cancellation but is bounded by MirrorTimeout. Failures are
// reported and returned as MirrorFailure; they never fail the workflow.
func (s *Service) mirrorWrite(ctx context.Context, op string, fields map[string]any, fn func(context.Context) error) error {
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.MirrorTimeout)
	defer cancel()
	if err := fn(mctx); err != nil {
		s.reporter.Error("graph mirror: "+op, err, fields)
		return wrapStore(ErrMirrorFailure, err, op)
	}
	return nil
}
