package workflow

import (
	"context"

	"github.com/pkg/errors"

	"github.com/Hero472/bdnsql/internal/domain"
	"github.com/Hero472/bdnsql/internal/progress"
	"github.com/Hero472/bdnsql/internal/repository"
)

// Register creates the user's progress record for a course and bumps the
// course's inscribed counter.
//
// The course is not checked up front: an unknown course surfaces as
// ErrCourseNotFound from the counter update, after the record is written.
// A failed counter update leaves the record in place.
func (s *Service) Register(ctx context.Context, email, courseID string) error {
	if err := s.checkEmail(email); err != nil {
		return err
	}
	if err := checkCourseID(courseID); err != nil {
		return err
	}
	key := domain.ProgressKey{UserEmail: email, CourseID: courseID}

	exists, err := s.progress.Exists(ctx, key)
	if err != nil {
		return wrapStore(ErrProgressStoreUnavailable, err, "check registration")
	}
	if exists {
		return ErrAlreadyRegistered
	}

	if err := s.progress.PutIfAbsent(ctx, domain.NewProgressRecord(key, s.now())); err != nil {
		if errors.Is(err, progress.ErrExists) {
			return ErrAlreadyRegistered
		}
		return wrapStore(ErrProgressStoreUnavailable, err, "create progress record")
	}

	if err := s.content.IncrementInscribed(ctx, courseID); err != nil {
		s.logger.Printf("workflow: %s registered to %s without inscribed increment: %v", email, courseID, err)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrCourseNotFound
		}
		return wrapStore(ErrContentStoreUnavailable, err, "increment inscribed")
	}
	return nil
}

// Unregister deletes the progress record. Deleting a missing record succeeds,
// and the course's inscribed counter is left as is.
func (s *Service) Unregister(ctx context.Context, email, courseID string) error {
	if err := s.checkEmail(email); err != nil {
		return err
	}
	if err := checkCourseID(courseID); err != nil {
		return err
	}
	key := domain.ProgressKey{UserEmail: email, CourseID: courseID}
	if err := s.progress.Delete(ctx, key); err != nil {
		return wrapStore(ErrProgressStoreUnavailable, err, "delete progress record")
	}
	return nil
}
