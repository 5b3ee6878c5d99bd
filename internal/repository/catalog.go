package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Hero472/bdnsql/internal/domain"
)

// CatalogRepository reads the course → unit → class structure. Nothing is
// cached: every call re-queries so results follow the latest content writes.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

const courseColumns = `
    id::text,
    name,
    description,
    image,
    image_banner,
    inscribed,
    rating,
    rating_sum,
    total_rates,
    created_at,
    updated_at
`

// ClassParams describes one class of a new course.
type ClassParams struct {
	Name            string
	Description     string
	Video           string
	Tutor           string
	SupportMaterial []string
}

// UnitParams describes one unit of a new course; classes keep slice order.
type UnitParams struct {
	Name    string
	Classes []ClassParams
}

// CourseCreateParams bundles a full course tree.
type CourseCreateParams struct {
	Name        string
	Description string
	Image       string
	ImageBanner string
	Units       []UnitParams
}

// CourseExists reports whether a course row exists.
func (r *CatalogRepository) CourseExists(ctx context.Context, courseID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM courses WHERE id = $1)`, courseID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("course exists: %w", err)
	}
	return exists, nil
}

// ClassExists reports whether a class with this id exists in any unit.
func (r *CatalogRepository) ClassExists(ctx context.Context, classID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM classes WHERE id = $1)`, classID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("class exists: %w", err)
	}
	return exists, nil
}

// ClassBelongsToCourse reports whether the class's unit is part of courseID.
func (r *CatalogRepository) ClassBelongsToCourse(ctx context.Context, classID, courseID string) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1
            FROM classes c
            JOIN units u ON u.id = c.unit_id
            WHERE c.id = $1 AND u.course_id = $2
        )
    `
	var exists bool
	if err := r.pool.QueryRow(ctx, query, classID, courseID).Scan(&exists); err != nil {
		return false, fmt.Errorf("class membership: %w", err)
	}
	return exists, nil
}

// ClassCountForCourse enumerates the course's units, then counts the classes
// that belong to any of them.
func (r *CatalogRepository) ClassCountForCourse(ctx context.Context, courseID string) (int, error) {
	unitIDs, err := r.unitIDs(ctx, courseID)
	if err != nil {
		return 0, err
	}
	if len(unitIDs) == 0 {
		return 0, nil
	}

	var count int64
	err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM classes WHERE unit_id = ANY($1::uuid[])`, unitIDs).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count classes: %w", err)
	}
	return int(count), nil
}

// ClassIDsForCourse returns the course's class ids ordered by unit then class position.
func (r *CatalogRepository) ClassIDsForCourse(ctx context.Context, courseID string) ([]string, error) {
	const query = `
        SELECT c.id::text
        FROM classes c
        JOIN units u ON u.id = c.unit_id
        WHERE u.course_id = $1
        ORDER BY u.position, c.position, c.id
    `
	rows, err := r.pool.Query(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("list class ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list class ids: %w", err)
	}
	return ids, nil
}

// ListUnits returns the course's units in order with their ordered class ids.
func (r *CatalogRepository) ListUnits(ctx context.Context, courseID string) ([]domain.Unit, error) {
	const query = `
        SELECT u.id::text,
               u.course_id::text,
               u.name,
               u.position,
               COALESCE(array_agg(c.id::text ORDER BY c.position, c.id) FILTER (WHERE c.id IS NOT NULL), '{}')
        FROM units u
        LEFT JOIN classes c ON c.unit_id = u.id
        WHERE u.course_id = $1
        GROUP BY u.id
        ORDER BY u.position, u.id
    `
	rows, err := r.pool.Query(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()

	units := make([]domain.Unit, 0)
	for rows.Next() {
		var u domain.Unit
		if err := rows.Scan(&u.ID, &u.CourseID, &u.Name, &u.Order, &u.ClassIDs); err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	return units, nil
}

// GetCourse fetches a course by id.
func (r *CatalogRepository) GetCourse(ctx context.Context, courseID string) (domain.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE id = $1`, courseColumns)
	course, err := scanCourse(r.pool.QueryRow(ctx, query, courseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Course{}, ErrNotFound
		}
		return domain.Course{}, err
	}
	return course, nil
}

// IncrementInscribed bumps the course's registration counter by one.
func (r *CatalogRepository) IncrementInscribed(ctx context.Context, courseID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE courses SET inscribed = inscribed + 1, updated_at = now() WHERE id = $1`, courseID)
	if err != nil {
		return fmt.Errorf("increment inscribed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateCourse inserts a course with its units and classes in one transaction.
func (r *CatalogRepository) CreateCourse(ctx context.Context, params CourseCreateParams) (domain.Course, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Course{}, fmt.Errorf("begin create course: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := fmt.Sprintf(`
        INSERT INTO courses (name, description, image, image_banner)
        VALUES ($1,$2,$3,$4)
        RETURNING %s
    `, courseColumns)
	course, err := scanCourse(tx.QueryRow(ctx, query, params.Name, params.Description, params.Image, params.ImageBanner))
	if err != nil {
		return domain.Course{}, fmt.Errorf("insert course: %w", err)
	}

	for unitPos, unit := range params.Units {
		var unitID string
		err := tx.QueryRow(ctx,
			`INSERT INTO units (course_id, name, position) VALUES ($1,$2,$3) RETURNING id::text`,
			course.ID, unit.Name, unitPos+1,
		).Scan(&unitID)
		if err != nil {
			return domain.Course{}, fmt.Errorf("insert unit %q: %w", unit.Name, err)
		}
		for classPos, class := range unit.Classes {
			material := class.SupportMaterial
			if material == nil {
				material = []string{}
			}
			_, err := tx.Exec(ctx, `
                INSERT INTO classes (unit_id, name, description, position, video, tutor, support_material)
                VALUES ($1,$2,$3,$4,$5,$6,$7)
            `, unitID, class.Name, class.Description, classPos+1, class.Video, class.Tutor, material)
			if err != nil {
				return domain.Course{}, fmt.Errorf("insert class %q: %w", class.Name, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Course{}, fmt.Errorf("commit create course: %w", err)
	}
	return course, nil
}

func (r *CatalogRepository) unitIDs(ctx context.Context, courseID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id::text FROM units WHERE course_id = $1`, courseID)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("read unit: %w", err)
	}
	return ids, nil
}

func scanCourse(row pgx.Row) (domain.Course, error) {
	var course domain.Course
	err := row.Scan(
		&course.ID,
		&course.Name,
		&course.Description,
		&course.Image,
		&course.ImageBanner,
		&course.Inscribed,
		&course.Rating,
		&course.RatingSum,
		&course.TotalRates,
		&course.CreatedAt,
		&course.UpdatedAt,
	)
	if err != nil {
		return domain.Course{}, err
	}
	return course, nil
}
