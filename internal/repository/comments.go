package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Hero472/bdnsql/internal/domain"
)

// CommentsRepository stores comments on courses and classes.
type CommentsRepository struct {
	pool *pgxpool.Pool
}

// CommentCreateParams is the payload of a new comment. ID is chosen by the caller.
type CommentCreateParams struct {
	ID            string
	Author        string
	Title         string
	Detail        string
	ReferenceID   string
	ReferenceType string
}

// Create inserts a comment with zeroed reactions.
func (r *CommentsRepository) Create(ctx context.Context, params CommentCreateParams) (domain.Comment, error) {
	const query = `
        INSERT INTO comments (id, author, title, detail, reference_id, reference_type)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id::text, author, title, detail, likes, dislikes, reference_id::text, reference_type, created_at
    `

	var c domain.Comment
	err := r.pool.QueryRow(ctx, query,
		params.ID,
		params.Author,
		params.Title,
		params.Detail,
		params.ReferenceID,
		params.ReferenceType,
	).Scan(
		&c.ID,
		&c.Author,
		&c.Title,
		&c.Detail,
		&c.Likes,
		&c.Dislikes,
		&c.ReferenceID,
		&c.ReferenceType,
		&c.CreatedAt,
	)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return c, nil
}

// CountForReference returns how many comments point at the given entity.
func (r *CommentsRepository) CountForReference(ctx context.Context, referenceType, referenceID string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM comments WHERE reference_type = $1 AND reference_id = $2`,
		referenceType, referenceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return count, nil
}
