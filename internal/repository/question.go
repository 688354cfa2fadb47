package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"closeus-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const questionColumns = `id, category_id, text, is_daily, is_active, is_ai_generated, created_at`

// unusedDaily selects eligible daily questions never assigned to couple $1
const unusedDaily = `
	FROM questions q
	WHERE q.is_daily AND q.is_active
	AND NOT EXISTS (
		SELECT 1 FROM daily_couple_questions d
		WHERE d.couple_id = $1 AND d.question_id = q.id
	)
`

// QuestionRepository handles database operations for questions, categories and daily assignments
type QuestionRepository struct {
	db *pgxpool.Pool
}

// NewQuestionRepository creates a new question repository
func NewQuestionRepository(db *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{db: db}
}

func scanQuestion(row pgx.Row) (*models.Question, error) {
	var q models.Question
	err := row.Scan(&q.ID, &q.CategoryID, &q.Text, &q.IsDaily, &q.IsActive, &q.IsAIGenerated, &q.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &q, nil
}

// GetByID retrieves a question by ID
func (r *QuestionRepository) GetByID(ctx context.Context, id string) (*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE id = $1`
	q, err := scanQuestion(r.db.QueryRow(ctx, query, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return q, err
}

// Create inserts a question
func (r *QuestionRepository) Create(ctx context.Context, q *models.Question) error {
	query := `
		INSERT INTO questions (id, category_id, text, is_daily, is_active, is_ai_generated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query, q.ID, q.CategoryID, q.Text, q.IsDaily, q.IsActive, q.IsAIGenerated, q.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create question: %w", err)
	}
	return nil
}

// CountUnusedDaily counts daily questions the couple has never been assigned
func (r *QuestionRepository) CountUnusedDaily(ctx context.Context, coupleID string) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) `+unusedDaily, coupleID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count unused daily questions: %w", err)
	}
	return n, nil
}

// GetUnusedDailyAt returns the unused daily question at offset in a stable order
func (r *QuestionRepository) GetUnusedDailyAt(ctx context.Context, coupleID string, offset int) (*models.Question, error) {
	query := `SELECT q.id, q.category_id, q.text, q.is_daily, q.is_active, q.is_ai_generated, q.created_at ` +
		unusedDaily + ` ORDER BY q.id OFFSET $2 LIMIT 1`
	q, err := scanQuestion(r.db.QueryRow(ctx, query, coupleID, offset))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to get unused daily question: %w", err)
	}
	return q, err
}

// CountDaily counts every active daily question
func (r *QuestionRepository) CountDaily(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM questions WHERE is_daily AND is_active`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count daily questions: %w", err)
	}
	return n, nil
}

// GetDailyAt returns the active daily question at offset in a stable order
func (r *QuestionRepository) GetDailyAt(ctx context.Context, offset int) (*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE is_daily AND is_active ORDER BY id OFFSET $1 LIMIT 1`
	q, err := scanQuestion(r.db.QueryRow(ctx, query, offset))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to get daily question: %w", err)
	}
	return q, err
}

// DeleteStaleAIGenerated removes AI-generated questions created before cutoff
// that no couple has been assigned or answered.
func (r *QuestionRepository) DeleteStaleAIGenerated(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM questions q
		WHERE q.is_ai_generated AND q.created_at < $1
		AND NOT EXISTS (SELECT 1 FROM daily_couple_questions d WHERE d.question_id = q.id)
		AND NOT EXISTS (SELECT 1 FROM answers a WHERE a.question_id = q.id)
	`
	result, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge stale questions: %w", err)
	}
	return result.RowsAffected(), nil
}

// ListCategories returns active categories by name
func (r *QuestionRepository) ListCategories(ctx context.Context) ([]*models.QuestionCategory, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, description, is_active, created_at
		FROM question_categories WHERE is_active ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []*models.QuestionCategory
	for rows.Next() {
		var c models.QuestionCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}
	return categories, nil
}

// EnsureCategory returns the ID of the named category, creating it if missing
func (r *QuestionRepository) EnsureCategory(ctx context.Context, id, name, description string) (string, error) {
	query := `
		INSERT INTO question_categories (id, name, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`
	var categoryID string
	if err := r.db.QueryRow(ctx, query, id, name, description).Scan(&categoryID); err != nil {
		return "", fmt.Errorf("failed to ensure category: %w", err)
	}
	return categoryID, nil
}

// GetDaily returns the assignment for a couple on a date
func (r *QuestionRepository) GetDaily(ctx context.Context, coupleID string, date time.Time) (*models.DailyCoupleQuestion, error) {
	query := `
		SELECT id, couple_id, question_id, question_date, created_at
		FROM daily_couple_questions
		WHERE couple_id = $1 AND question_date = $2
	`
	var d models.DailyCoupleQuestion
	err := r.db.QueryRow(ctx, query, coupleID, date).Scan(&d.ID, &d.CoupleID, &d.QuestionID, &d.Date, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get daily question: %w", err)
	}
	return &d, nil
}

// CreateDaily records an assignment. ErrConflict means another request
// already assigned a question to that couple for that date.
func (r *QuestionRepository) CreateDaily(ctx context.Context, d *models.DailyCoupleQuestion) error {
	query := `
		INSERT INTO daily_couple_questions (id, couple_id, question_id, question_date, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (couple_id, question_date) DO NOTHING
	`
	result, err := r.db.Exec(ctx, query, d.ID, d.CoupleID, d.QuestionID, d.Date, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create daily question: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// IsAssigned reports whether the question was ever assigned to the couple
func (r *QuestionRepository) IsAssigned(ctx context.Context, coupleID, questionID string) (bool, error) {
	var assigned bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM daily_couple_questions
			WHERE couple_id = $1 AND question_id = $2
		)
	`, coupleID, questionID).Scan(&assigned)
	if err != nil {
		return false, fmt.Errorf("failed to check daily assignment: %w", err)
	}
	return assigned, nil
}

// ListDaily returns a couple's most recent assignments
func (r *QuestionRepository) ListDaily(ctx context.Context, coupleID string, limit int) ([]*models.DailyCoupleQuestion, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, couple_id, question_id, question_date, created_at
		FROM daily_couple_questions
		WHERE couple_id = $1
		ORDER BY question_date DESC
		LIMIT $2
	`, coupleID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily questions: %w", err)
	}
	defer rows.Close()

	var list []*models.DailyCoupleQuestion
	for rows.Next() {
		var d models.DailyCoupleQuestion
		if err := rows.Scan(&d.ID, &d.CoupleID, &d.QuestionID, &d.Date, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan daily question: %w", err)
		}
		list = append(list, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily questions: %w", err)
	}
	return list, nil
}
