package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bobarin/lessoncast/internal/models"
)

var ErrRunNotFound = errors.New("generation run not found")

func (db *DB) CreateRun(ctx context.Context, run *models.GenerationRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = models.RunStatusQueued
	}
	query := `
		INSERT INTO generation_runs (id, lesson_id, reason, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	return db.QueryRowContext(
		ctx, query,
		run.ID, run.LessonID, run.Reason, run.Status,
	).Scan(&run.CreatedAt)
}

func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (*models.GenerationRun, error) {
	query := `
		SELECT id, lesson_id, reason, status, started_at, finished_at, error_message, created_at
		FROM generation_runs
		WHERE id = $1
	`

	run := &models.GenerationRun{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.LessonID, &run.Reason, &run.Status,
		&run.StartedAt, &run.FinishedAt, &run.ErrorMessage, &run.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// LatestRun returns the most recent run for a lesson, or ErrRunNotFound.
func (db *DB) LatestRun(ctx context.Context, lessonID uuid.UUID) (*models.GenerationRun, error) {
	var id uuid.UUID
	err := db.QueryRowContext(ctx,
		`SELECT id FROM generation_runs WHERE lesson_id = $1 ORDER BY created_at DESC LIMIT 1`,
		lessonID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return db.GetRun(ctx, id)
}

func (db *DB) MarkRunRunning(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE generation_runs SET status = $1, started_at = $2 WHERE id = $3`
	_, err := db.ExecContext(ctx, query, models.RunStatusRunning, time.Now(), id)
	return err
}

func (db *DB) MarkRunSucceeded(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE generation_runs SET status = $1, finished_at = $2 WHERE id = $3`
	_, err := db.ExecContext(ctx, query, models.RunStatusSucceeded, time.Now(), id)
	return err
}

func (db *DB) MarkRunFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE generation_runs
		SET status = $1, error_message = $2, finished_at = $3
		WHERE id = $4
	`
	_, err := db.ExecContext(ctx, query, models.RunStatusFailed, errorMessage, time.Now(), id)
	return err
}
