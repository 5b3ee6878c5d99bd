package workflow

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Hero472/bdnsql/internal/domain"
	"github.com/Hero472/bdnsql/internal/graph"
	"github.com/Hero472/bdnsql/internal/progress"
	"github.com/Hero472/bdnsql/internal/repository"
)

type fakeCourse struct {
	units      []domain.Unit
	inscribed  int64
	ratingSum  float64
	totalRates int64
	rating     *float64
}

// fakeContent is an in-memory content store. Failure fields, when set, are
// returned by the matching method.
type fakeContent struct {
	mu       sync.Mutex
	courses  map[string]*fakeCourse
	classes  map[string]string // class id -> course id
	comments []repository.CommentCreateParams

	applyCalls int

	failIncrement error
	failCount     error
	failClass     error
	failApply     error
	failComment   error
	failUnits     error
}

func newFakeContent() *fakeContent {
	return &fakeContent{
		courses: make(map[string]*fakeCourse),
		classes: make(map[string]string),
	}
}

// addCourse creates a course with units*perUnit classes and returns the ids.
func (f *fakeContent) addCourse(units, perUnit int) (string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	courseID := uuid.NewString()
	course := &fakeCourse{}
	var classIDs []string
	for u := 0; u < units; u++ {
		unit := domain.Unit{ID: uuid.NewString(), CourseID: courseID, Name: fmt.Sprintf("Unit %d", u+1), Order: u + 1}
		for c := 0; c < perUnit; c++ {
			id := uuid.NewString()
			f.classes[id] = courseID
			unit.ClassIDs = append(unit.ClassIDs, id)
			classIDs = append(classIDs, id)
		}
		course.units = append(course.units, unit)
	}
	f.courses[courseID] = course
	return courseID, classIDs
}

func (f *fakeContent) addClass(courseID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	f.classes[id] = courseID
	return id
}

func (f *fakeContent) course(id string) fakeCourse {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.courses[id]
}

func (f *fakeContent) CourseExists(_ context.Context, courseID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.courses[courseID]
	return ok, nil
}

func (f *fakeContent) ClassExists(_ context.Context, classID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failClass != nil {
		return false, f.failClass
	}
	_, ok := f.classes[classID]
	return ok, nil
}

func (f *fakeContent) ClassBelongsToCourse(_ context.Context, classID, courseID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.classes[classID] == courseID, nil
}

func (f *fakeContent) ClassCountForCourse(_ context.Context, courseID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCount != nil {
		return 0, f.failCount
	}
	n := 0
	for _, c := range f.classes {
		if c == courseID {
			n++
		}
	}
	return n, nil
}

func (f *fakeContent) IncrementInscribed(_ context.Context, courseID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIncrement != nil {
		return f.failIncrement
	}
	c, ok := f.courses[courseID]
	if !ok {
		return repository.ErrNotFound
	}
	c.inscribed++
	return nil
}

func (f *fakeContent) ApplyRating(_ context.Context, courseID string, value float64) (domain.RatingAggregate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyCalls++
	if f.failApply != nil {
		return domain.RatingAggregate{}, f.failApply
	}
	c, ok := f.courses[courseID]
	if !ok {
		return domain.RatingAggregate{}, repository.ErrNotFound
	}
	c.ratingSum += value
	c.totalRates++
	mean := c.ratingSum / float64(c.totalRates)
	c.rating = &mean
	return domain.RatingAggregate{Average: c.rating, Count: c.totalRates}, nil
}

func (f *fakeContent) Rating(_ context.Context, courseID string) (domain.RatingAggregate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.courses[courseID]
	if !ok {
		return domain.RatingAggregate{}, repository.ErrNotFound
	}
	return domain.RatingAggregate{Average: c.rating, Count: c.totalRates}, nil
}

func (f *fakeContent) CreateComment(_ context.Context, params repository.CommentCreateParams) (domain.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failComment != nil {
		return domain.Comment{}, f.failComment
	}
	f.comments = append(f.comments, params)
	return domain.Comment{
		ID:            params.ID,
		Author:        params.Author,
		Title:         params.Title,
		Detail:        params.Detail,
		ReferenceID:   params.ReferenceID,
		ReferenceType: params.ReferenceType,
		CreatedAt:     time.Now(),
	}, nil
}

func (f *fakeContent) GetCourse(_ context.Context, courseID string) (domain.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.courses[courseID]
	if !ok {
		return domain.Course{}, repository.ErrNotFound
	}
	return domain.Course{
		ID:         courseID,
		Inscribed:  c.inscribed,
		Rating:     c.rating,
		RatingSum:  c.ratingSum,
		TotalRates: c.totalRates,
	}, nil
}

func (f *fakeContent) ListUnits(_ context.Context, courseID string) ([]domain.Unit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUnits != nil {
		return nil, f.failUnits
	}
	c, ok := f.courses[courseID]
	if !ok {
		return []domain.Unit{}, nil
	}
	return append([]domain.Unit{}, c.units...), nil
}

func (f *fakeContent) CountComments(_ context.Context, referenceType, referenceID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, c := range f.comments {
		if c.ReferenceType == referenceType && c.ReferenceID == referenceID {
			n++
		}
	}
	return n, nil
}

type fakeMirror struct {
	mu       sync.Mutex
	ratings  []graph.RatingEdge
	comments []graph.CommentEdge
	err      error
	block    bool
}

func (m *fakeMirror) RecordRating(ctx context.Context, edge graph.RatingEdge) error {
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.ratings = append(m.ratings, edge)
	return nil
}

func (m *fakeMirror) RecordComment(ctx context.Context, edge graph.CommentEdge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.comments = append(m.comments, edge)
	return nil
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []string
}

func (r *fakeReporter) Error(msg string, _ error, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, msg)
}

func (r *fakeReporter) Close() {}

func (r *fakeReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

type testEnv struct {
	svc      *Service
	content  *fakeContent
	progress *progress.Store
	mirror   *fakeMirror
	reporter *fakeReporter
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	st, err := progress.Open(progress.Options{InMemory: true, MaxRetries: 100, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	content := newFakeContent()
	mirror := &fakeMirror{}
	reporter := &fakeReporter{}
	opts.Logger = logger
	return &testEnv{
		svc:      New(content, st, mirror, reporter, opts),
		content:  content,
		progress: st,
		mirror:   mirror,
		reporter: reporter,
	}
}
