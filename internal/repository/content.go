package repository

import (
	"context"

	"github.com/Hero472/bdnsql/internal/domain"
)

// The methods below expose the repositories as one content store so callers
// can depend on a single narrow interface.

func (r *Repository) CourseExists(ctx context.Context, courseID string) (bool, error) {
	return r.Catalog.CourseExists(ctx, courseID)
}

func (r *Repository) ClassExists(ctx context.Context, classID string) (bool, error) {
	return r.Catalog.ClassExists(ctx, classID)
}

func (r *Repository) ClassBelongsToCourse(ctx context.Context, classID, courseID string) (bool, error) {
	return r.Catalog.ClassBelongsToCourse(ctx, classID, courseID)
}

func (r *Repository) ClassCountForCourse(ctx context.Context, courseID string) (int, error) {
	return r.Catalog.ClassCountForCourse(ctx, courseID)
}

func (r *Repository) IncrementInscribed(ctx context.Context, courseID string) error {
	return r.Catalog.IncrementInscribed(ctx, courseID)
}

func (r *Repository) ApplyRating(ctx context.Context, courseID string, value float64) (domain.RatingAggregate, error) {
	return r.Ratings.ApplyRating(ctx, courseID, value)
}

func (r *Repository) Rating(ctx context.Context, courseID string) (domain.RatingAggregate, error) {
	return r.Ratings.Rating(ctx, courseID)
}

func (r *Repository) CreateComment(ctx context.Context, params CommentCreateParams) (domain.Comment, error) {
	return r.Comments.Create(ctx, params)
}

func (r *Repository) GetCourse(ctx context.Context, courseID string) (domain.Course, error) {
	return r.Catalog.GetCourse(ctx, courseID)
}

func (r *Repository) ListUnits(ctx context.Context, courseID string) ([]domain.Unit, error) {
	return r.Catalog.ListUnits(ctx, courseID)
}

func (r *Repository) CountComments(ctx context.Context, referenceType, referenceID string) (int64, error) {
	return r.Comments.CountForReference(ctx, referenceType, referenceID)
}
