package workflow

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Hero472/bdnsql/internal/domain"
	"github.com/Hero472/bdnsql/internal/graph"
	"github.com/Hero472/bdnsql/internal/repository"
)

// RatingOutcome is the committed aggregate after a submission. MirrorErr is
// set when the graph write failed; the rating itself is committed regardless.
type RatingOutcome struct {
	Rating     float64
	TotalRates int64
	MirrorErr  error
}

// SubmitRating folds value into the course's running mean and mirrors a
// RATED edge to the graph.
func (s *Service) SubmitRating(ctx context.Context, email, courseID string, value float64) (RatingOutcome, error) {
	if err := (domain.RatingEvent{UserEmail: email, CourseID: courseID, Value: value}).Validate(); err != nil {
		return RatingOutcome{}, ErrInvalidRating
	}
	if err := s.checkEmail(email); err != nil {
		return RatingOutcome{}, err
	}
	if err := checkCourseID(courseID); err != nil {
		return RatingOutcome{}, err
	}

	agg, err := s.content.ApplyRating(ctx, courseID, value)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return RatingOutcome{}, ErrCourseNotFound
		}
		return RatingOutcome{}, wrapStore(ErrContentStoreUnavailable, err, "apply rating")
	}

	out := RatingOutcome{TotalRates: agg.Count}
	if agg.Average != nil {
		out.Rating = *agg.Average
	}

	edge := graph.RatingEdge{UserEmail: email, CourseID: courseID, Rating: value, At: s.now()}
	out.MirrorErr = s.mirrorWrite(ctx, "record rating", map[string]any{
		"user_email": email,
		"course_id":  courseID,
		"rating":     value,
	}, func(ctx context.Context) error {
		return s.mirror.RecordRating(ctx, edge)
	})
	return out, nil
}

// CourseRating returns the course's current aggregate.
func (s *Service) CourseRating(ctx context.Context, courseID string) (domain.RatingAggregate, error) {
	if err := checkCourseID(courseID); err != nil {
		return domain.RatingAggregate{}, err
	}
	agg, err := s.content.Rating(ctx, courseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.RatingAggregate{}, ErrCourseNotFound
		}
		return domain.RatingAggregate{}, wrapStore(ErrContentStoreUnavailable, err, "read rating")
	}
	return agg, nil
}

// CommentInput is a new comment on a course or class.
type CommentInput struct {
	Author        string
	Title         string
	Detail        string
	ReferenceID   string
	ReferenceType string
}

// CommentOutcome carries the stored comment and any graph failure.
type CommentOutcome struct {
	Comment   domain.Comment
	MirrorErr error
}

// PostComment stores the comment and mirrors the POSTED edge.
func (s *Service) PostComment(ctx context.Context, in CommentInput) (CommentOutcome, error) {
	if err := s.checkEmail(in.Author); err != nil {
		return CommentOutcome{}, err
	}
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Detail) == "" {
		return CommentOutcome{}, ErrInvalidComment
	}
	if in.ReferenceType != domain.ReferenceCourse && in.ReferenceType != domain.ReferenceClass {
		return CommentOutcome{}, ErrInvalidComment
	}
	if !canonicalUUID(in.ReferenceID) {
		return CommentOutcome{}, ErrInvalidComment
	}

	comment, err := s.content.CreateComment(ctx, repository.CommentCreateParams{
		ID:            uuid.NewString(),
		Author:        in.Author,
		Title:         in.Title,
		Detail:        in.Detail,
		ReferenceID:   in.ReferenceID,
		ReferenceType: in.ReferenceType,
	})
	if err != nil {
		return CommentOutcome{}, wrapStore(ErrContentStoreUnavailable, err, "create comment")
	}

	edge := graph.CommentEdge{
		UserEmail:     comment.Author,
		CommentID:     comment.ID,
		Title:         comment.Title,
		Detail:        comment.Detail,
		ReferenceID:   comment.ReferenceID,
		ReferenceType: comment.ReferenceType,
		At:            s.now(),
	}
	mirrorErr := s.mirrorWrite(ctx, "record comment", map[string]any{
		"user_email": comment.Author,
		"comment_id": comment.ID,
	}, func(ctx context.Context) error {
		return s.mirror.RecordComment(ctx, edge)
	})
	return CommentOutcome{Comment: comment, MirrorErr: mirrorErr}, nil
}
