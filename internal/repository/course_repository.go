package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/shikkha-backend/internal/model"
)

var ErrAlreadyEnrolled = errors.New("user already enrolled in this course")

// CourseRepository handles course, lesson and enrollment data access.
type CourseRepository struct {
	pool *pgxpool.Pool
}

// NewCourseRepository creates a new CourseRepository.
func NewCourseRepository(pool *pgxpool.Pool) *CourseRepository {
	return &CourseRepository{pool: pool}
}

const courseSelect = `
	SELECT c.id, c.title, c.description, c.thumbnail, c.category, c.level,
	       c.price_cents, c.is_published, c.instructor_id, u.name,
	       (SELECT COUNT(*) FROM enrollments e WHERE e.course_id = c.id),
	       c.created_at
	FROM courses c
	JOIN users u ON u.id = c.instructor_id`

func scanCourse(row pgx.Row, c *model.Course) error {
	return row.Scan(&c.ID, &c.Title, &c.Description, &c.Thumbnail, &c.Category, &c.Level,
		&c.PriceCents, &c.Published, &c.InstructorID, &c.InstructorName,
		&c.EnrolledCount, &c.CreatedAt)
}

// ListPublished returns published courses matching the filter, newest first.
func (r *CourseRepository) ListPublished(ctx context.Context, f model.CourseFilter, limit, offset int) ([]model.Course, int, error) {
	where := ` WHERE c.is_published = TRUE`
	args := []interface{}{}
	if f.Category != "" {
		args = append(args, f.Category)
		where += fmt.Sprintf(` AND c.category = $%d`, len(args))
	}
	if f.Level != "" {
		args = append(args, f.Level)
		where += fmt.Sprintf(` AND c.level = $%d`, len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM courses c`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := courseSelect + where +
		fmt.Sprintf(` ORDER BY c.created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	courses := []model.Course{}
	for rows.Next() {
		var c model.Course
		if err := scanCourse(rows, &c); err != nil {
			return nil, 0, err
		}
		courses = append(courses, c)
	}
	return courses, total, rows.Err()
}

// GetByID retrieves a course with its ordered lessons.
func (r *CourseRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Course, error) {
	c := &model.Course{}
	if err := scanCourse(r.pool.QueryRow(ctx, courseSelect+` WHERE c.id = $1`, id), c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, course_id, title, content, video_url, duration_minutes, order_num
		 FROM lessons WHERE course_id = $1 ORDER BY order_num`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var l model.Lesson
		if err := rows.Scan(&l.ID, &l.CourseID, &l.Title, &l.Content, &l.VideoURL, &l.DurationMinutes, &l.OrderNum); err != nil {
			return nil, err
		}
		c.Lessons = append(c.Lessons, l)
	}
	return c, rows.Err()
}

// Exists reports whether a course with the given ID exists.
func (r *CourseRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM courses WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

// Create inserts a course and its lessons in one transaction.
func (r *CourseRepository) Create(ctx context.Context, c *model.Course) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO courses (title, description, thumbnail, category, level, price_cents, is_published, instructor_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING id, created_at`,
			c.Title, c.Description, c.Thumbnail, c.Category, c.Level, c.PriceCents, c.Published, c.InstructorID,
		).Scan(&c.ID, &c.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert course: %w", err)
		}

		batch := &pgx.Batch{}
		for i := range c.Lessons {
			l := &c.Lessons[i]
			l.CourseID = c.ID
			l.OrderNum = i + 1
			batch.Queue(
				`INSERT INTO lessons (course_id, title, content, video_url, duration_minutes, order_num)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 RETURNING id`,
				l.CourseID, l.Title, l.Content, l.VideoURL, l.DurationMinutes, l.OrderNum,
			).QueryRow(func(row pgx.Row) error {
				return row.Scan(&l.ID)
			})
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert lessons: %w", err)
		}
		return nil
	})
}

// Enroll adds the user to the course.
func (r *CourseRepository) Enroll(ctx context.Context, courseID, userID uuid.UUID) (*model.Enrollment, error) {
	e := &model.Enrollment{CourseID: courseID, UserID: userID}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO enrollments (course_id, user_id) VALUES ($1, $2)
		 RETURNING enrolled_at`, courseID, userID,
	).Scan(&e.EnrolledAt)
	if isUniqueViolation(err) {
		return nil, ErrAlreadyEnrolled
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListEnrolled returns the courses a user is enrolled in, most recent first.
func (r *CourseRepository) ListEnrolled(ctx context.Context, userID uuid.UUID) ([]model.Course, error) {
	rows, err := r.pool.Query(ctx,
		courseSelect+`
		JOIN enrollments en ON en.course_id = c.id
		WHERE en.user_id = $1
		ORDER BY en.enrolled_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	courses := []model.Course{}
	for rows.Next() {
		var c model.Course
		if err := scanCourse(rows, &c); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// RecentEnrollments returns the user's latest enrollments with course titles.
func (r *CourseRepository) RecentEnrollments(ctx context.Context, userID uuid.UUID, limit int) ([]model.Activity, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.title, en.enrolled_at
		 FROM enrollments en JOIN courses c ON c.id = en.course_id
		 WHERE en.user_id = $1
		 ORDER BY en.enrolled_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Activity
	for rows.Next() {
		var title string
		a := model.Activity{Type: model.ActivityCourseEnrolled}
		if err := rows.Scan(&title, &a.Timestamp); err != nil {
			return nil, err
		}
		a.Description = "Enrolled in " + title
		out = append(out, a)
	}
	return out, rows.Err()
}
