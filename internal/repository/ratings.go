package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Hero472/bdnsql/internal/domain"
)

// RatingsRepository maintains the running rating aggregate stored on courses.
type RatingsRepository struct {
	pool *pgxpool.Pool
}

// ApplyRating folds value into the course aggregate in a single statement.
// Postgres row locking serializes concurrent calls, so no submission is lost.
func (r *RatingsRepository) ApplyRating(ctx context.Context, courseID string, value float64) (domain.RatingAggregate, error) {
	const query = `
        UPDATE courses
        SET rating_sum  = rating_sum + $2,
            total_rates = total_rates + 1,
            rating      = (rating_sum + $2) / (total_rates + 1),
            updated_at  = now()
        WHERE id = $1
        RETURNING rating, total_rates
    `

	var agg domain.RatingAggregate
	err := r.pool.QueryRow(ctx, query, courseID, value).Scan(&agg.Average, &agg.Count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RatingAggregate{}, ErrNotFound
		}
		return domain.RatingAggregate{}, fmt.Errorf("apply rating: %w", err)
	}
	return agg, nil
}

// Rating returns the current aggregate of a course.
func (r *RatingsRepository) Rating(ctx context.Context, courseID string) (domain.RatingAggregate, error) {
	var agg domain.RatingAggregate
	err := r.pool.QueryRow(ctx, `SELECT rating, total_rates FROM courses WHERE id = $1`, courseID).Scan(&agg.Average, &agg.Count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RatingAggregate{}, ErrNotFound
		}
		return domain.RatingAggregate{}, fmt.Errorf("read rating: %w", err)
	}
	return agg, nil
}
