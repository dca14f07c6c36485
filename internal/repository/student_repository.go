package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-proctor/internal/model"
)

var ErrDuplicateEmail = errors.New("an account with this email already exists")

// IdentityRepository handles student and examiner data access.
type IdentityRepository struct {
	pool *pgxpool.Pool
}

// NewIdentityRepository creates a new IdentityRepository.
func NewIdentityRepository(pool *pgxpool.Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// GetStudentByID retrieves a student by ID.
func (r *IdentityRepository) GetStudentByID(ctx context.Context, id uuid.UUID) (*model.Student, error) {
	s := &model.Student{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, full_name, email, created_at FROM students WHERE id = $1`, id,
	).Scan(&s.ID, &s.FullName, &s.Email, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetStudentByEmail retrieves a student by their unique email.
func (r *IdentityRepository) GetStudentByEmail(ctx context.Context, email string) (*model.Student, error) {
	s := &model.Student{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, full_name, email, created_at FROM students WHERE email = $1`, email,
	).Scan(&s.ID, &s.FullName, &s.Email, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetExaminerByID retrieves an examiner by ID.
func (r *IdentityRepository) GetExaminerByID(ctx context.Context, id uuid.UUID) (*model.Examiner, error) {
	e := &model.Examiner{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, full_name, email, created_at FROM examiners WHERE id = $1`, id,
	).Scan(&e.ID, &e.FullName, &e.Email, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetExaminerByEmail retrieves an examiner by their unique email.
func (r *IdentityRepository) GetExaminerByEmail(ctx context.Context, email string) (*model.Examiner, error) {
	e := &model.Examiner{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, full_name, email, created_at FROM examiners WHERE email = $1`, email,
	).Scan(&e.ID, &e.FullName, &e.Email, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// CreateStudent inserts a new student.
func (r *IdentityRepository) CreateStudent(ctx context.Context, s *model.Student) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO students (full_name, email) VALUES ($1, $2)
		 RETURNING id, created_at`,
		s.FullName, s.Email,
	).Scan(&s.ID, &s.CreatedAt)
	return mapDuplicate(err)
}

// CreateExaminer inserts a new examiner.
func (r *IdentityRepository) CreateExaminer(ctx context.Context, e *model.Examiner) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO examiners (full_name, email) VALUES ($1, $2)
		 RETURNING id, created_at`,
		e.FullName, e.Email,
	).Scan(&e.ID, &e.CreatedAt)
	return mapDuplicate(err)
}

func mapDuplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateEmail
	}
	return err
}
