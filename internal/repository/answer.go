package repository

import (
	"context"
	"errors"
	"fmt"

	"closeus-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const answerColumns = `id, user_id, couple_id, question_id, text, answer_date, created_at, updated_at`

// AnswerRepository handles database operations for answers
type AnswerRepository struct {
	db *pgxpool.Pool
}

// NewAnswerRepository creates a new answer repository
func NewAnswerRepository(db *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{db: db}
}

func scanAnswer(row pgx.Row) (*models.Answer, error) {
	var a models.Answer
	err := row.Scan(&a.ID, &a.UserID, &a.CoupleID, &a.QuestionID, &a.Text, &a.Date, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Upsert stores an answer, overwriting the user's previous answer to the same question
func (r *AnswerRepository) Upsert(ctx context.Context, a *models.Answer) (*models.Answer, error) {
	query := `
		INSERT INTO answers (id, user_id, couple_id, question_id, text, answer_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (user_id, question_id) DO UPDATE SET
			text = EXCLUDED.text,
			couple_id = EXCLUDED.couple_id,
			answer_date = EXCLUDED.answer_date,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + answerColumns
	saved, err := scanAnswer(r.db.QueryRow(ctx, query, a.ID, a.UserID, a.CoupleID, a.QuestionID, a.Text, a.Date, a.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert answer: %w", err)
	}
	return saved, nil
}

// Get retrieves a user's answer to a question
func (r *AnswerRepository) Get(ctx context.Context, userID, questionID string) (*models.Answer, error) {
	query := `SELECT ` + answerColumns + ` FROM answers WHERE user_id = $1 AND question_id = $2`
	a, err := scanAnswer(r.db.QueryRow(ctx, query, userID, questionID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}
	return a, err
}

// Delete removes a user's answer to a question
func (r *AnswerRepository) Delete(ctx context.Context, userID, questionID string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM answers WHERE user_id = $1 AND question_id = $2`, userID, questionID)
	if err != nil {
		return fmt.Errorf("failed to delete answer: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
