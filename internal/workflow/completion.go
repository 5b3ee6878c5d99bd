package workflow

import (
	"context"

	"github.com/pkg/errors"

	"github.com/Hero472/bdnsql/internal/domain"
	"github.com/Hero472/bdnsql/internal/progress"
)

// CompleteClass marks classID done for the user and recomputes the course
// percentage against the course's current class total.
//
// The class is added to the completed set before the total is read. If the
// final write fails the set already holds the class and the percentage lags
// until the next call, which is safe to retry.
func (s *Service) CompleteClass(ctx context.Context, email, courseID, classID string) (domain.ProgressRecord, error) {
	if err := s.checkEmail(email); err != nil {
		return domain.ProgressRecord{}, err
	}
	if err := checkCourseID(courseID); err != nil {
		return domain.ProgressRecord{}, err
	}
	if err := checkClassID(classID); err != nil {
		return domain.ProgressRecord{}, err
	}

	exists, err := s.content.ClassExists(ctx, classID)
	if err != nil {
		return domain.ProgressRecord{}, wrapStore(ErrContentStoreUnavailable, err, "lookup class")
	}
	if !exists {
		return domain.ProgressRecord{}, ErrClassNotFound
	}
	if s.opts.StrictClassMembership {
		belongs, err := s.content.ClassBelongsToCourse(ctx, classID, courseID)
		if err != nil {
			return domain.ProgressRecord{}, wrapStore(ErrContentStoreUnavailable, err, "check class membership")
		}
		if !belongs {
			return domain.ProgressRecord{}, ErrClassNotFound
		}
	}

	key := domain.ProgressKey{UserEmail: email, CourseID: courseID}

	// The add fails with progress.ErrNotFound when the user never registered,
	// which doubles as the registration check.
	if _, err := s.progress.AddCompletedClass(ctx, key, classID); err != nil {
		return domain.ProgressRecord{}, progressErr(err, "add completed class")
	}

	total, err := s.content.ClassCountForCourse(ctx, courseID)
	if err != nil {
		return domain.ProgressRecord{}, wrapStore(ErrContentStoreUnavailable, err, "count classes")
	}

	now := s.now()
	rec, err := s.progress.Update(ctx, key, func(rec *domain.ProgressRecord) error {
		rec.Recompute(total, now)
		return nil
	})
	if err != nil {
		return domain.ProgressRecord{}, progressErr(err, "store progress")
	}
	return rec, nil
}

// UpdateStatus stores a caller-supplied status after checking it against the
// percentage derived from the completed set: Completed only at 100,
// Initiated only at 0 and InProgress(p) only when p is the derived value.
func (s *Service) UpdateStatus(ctx context.Context, email, courseID string, status domain.Status) (domain.ProgressRecord, error) {
	if err := status.Validate(); err != nil {
		return domain.ProgressRecord{}, ErrInvalidStatus
	}
	if err := s.checkEmail(email); err != nil {
		return domain.ProgressRecord{}, err
	}
	if err := checkCourseID(courseID); err != nil {
		return domain.ProgressRecord{}, err
	}

	key := domain.ProgressKey{UserEmail: email, CourseID: courseID}
	exists, err := s.progress.Exists(ctx, key)
	if err != nil {
		return domain.ProgressRecord{}, wrapStore(ErrProgressStoreUnavailable, err, "check registration")
	}
	if !exists {
		return domain.ProgressRecord{}, ErrNotRegistered
	}

	total, err := s.content.ClassCountForCourse(ctx, courseID)
	if err != nil {
		return domain.ProgressRecord{}, wrapStore(ErrContentStoreUnavailable, err, "count classes")
	}

	now := s.now()
	rec, err := s.progress.Update(ctx, key, func(rec *domain.ProgressRecord) error {
		percent := domain.CompletionPercentage(len(rec.CompletedClasses), total)
		if !statusMatches(status, percent) {
			return ErrStatusMismatch
		}
		rec.Status = status
		rec.CompletionPercentage = percent
		rec.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrStatusMismatch) {
			return domain.ProgressRecord{}, ErrStatusMismatch
		}
		return domain.ProgressRecord{}, progressErr(err, "store status")
	}
	return rec, nil
}

func statusMatches(status domain.Status, percent int) bool {
	switch status.Kind() {
	case domain.StatusCompleted:
		return percent == 100
	case domain.StatusInitiated:
		return percent == 0
	case domain.StatusInProgress:
		p, _ := status.Percent()
		return percent < 100 && p == float64(percent)
	default:
		return false
	}
}

// Progress returns the user's record for one course.
func (s *Service) Progress(ctx context.Context, email, courseID string) (domain.ProgressRecord, error) {
	if err := s.checkEmail(email); err != nil {
		return domain.ProgressRecord{}, err
	}
	if err := checkCourseID(courseID); err != nil {
		return domain.ProgressRecord{}, err
	}
	rec, err := s.progress.Get(ctx, domain.ProgressKey{UserEmail: email, CourseID: courseID})
	if err != nil {
		if errors.Is(err, progress.ErrNotFound) {
			return domain.ProgressRecord{}, ErrProgressNotFound
		}
		return domain.ProgressRecord{}, wrapStore(ErrProgressStoreUnavailable, err, "read progress")
	}
	return rec, nil
}

// UserCourses lists every course the user is registered to.
func (s *Service) UserCourses(ctx context.Context, email string) ([]domain.ProgressRecord, error) {
	if err := s.checkEmail(email); err != nil {
		return nil, err
	}
	records, err := s.progress.ListByUser(ctx, email)
	if err != nil {
		return nil, wrapStore(ErrProgressStoreUnavailable, err, "list progress")
	}
	return records, nil
}

func progressErr(err error, op string) error {
	if errors.Is(err, progress.ErrNotFound) {
		return ErrNotRegistered
	}
	return wrapStore(ErrProgressStoreUnavailable, err, op)
}
