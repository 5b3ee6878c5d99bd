package workflow

import (
	"context"

	"github.com/pkg/errors"

	"github.com/Hero472/bdnsql/internal/domain"
	"github.com/Hero472/bdnsql/internal/repository"
)

// CourseOverview is the read view of a course: the course row, its units in
// order and the number of comments attached to the course itself.
type CourseOverview struct {
	Course   domain.Course
	Units    []domain.Unit
	Comments int64
}

// Course assembles the overview from three independent reads. They are not
// taken from one snapshot.
func (s *Service) Course(ctx context.Context, courseID string) (CourseOverview, error) {
	if err := checkCourseID(courseID); err != nil {
		return CourseOverview{}, err
	}

	course, err := s.content.GetCourse(ctx, courseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return CourseOverview{}, ErrCourseNotFound
		}
		return CourseOverview{}, wrapStore(ErrContentStoreUnavailable, err, "read course")
	}
	units, err := s.content.ListUnits(ctx, courseID)
	if err != nil {
		return CourseOverview{}, wrapStore(ErrContentStoreUnavailable, err, "list units")
	}
	comments, err := s.content.CountComments(ctx, domain.ReferenceCourse, courseID)
	if err != nil {
		return CourseOverview{}, wrapStore(ErrContentStoreUnavailable, err, "count comments")
	}
	return CourseOverview{Course: course, Units: units, Comments: comments}, nil
}
