package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/bobarin/lessoncast/internal/models"
)

const lessonColumns = `
	id, title, slides, voice_settings, video_settings, video_status,
	video_url, thumbnail_url, video_storage_path, thumbnail_storage_path,
	duration_seconds, file_size, interactions_timeline, narrations,
	video_error, video_error_detail, video_generated_at, created_at, updated_at
`

func (db *DB) CreateLesson(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == uuid.Nil {
		lesson.ID = uuid.New()
	}
	query := `
		INSERT INTO lessons (id, title, slides, voice_settings, video_settings)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		lesson.ID, lesson.Title, lesson.Slides, lesson.VoiceSettings, lesson.VideoSettings,
	).Scan(&lesson.CreatedAt, &lesson.UpdatedAt)
}

func (db *DB) GetLesson(ctx context.Context, id uuid.UUID) (*models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE id = $1`

	l := &models.Lesson{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&l.ID, &l.Title, &l.Slides, &l.VoiceSettings, &l.VideoSettings, &l.VideoStatus,
		&l.VideoURL, &l.ThumbnailURL, &l.VideoStoragePath, &l.ThumbnailStoragePath,
		&l.DurationSeconds, &l.FileSize, &l.InteractionsTimeline, &l.Narrations,
		&l.VideoError, &l.VideoErrorDetail, &l.VideoGeneratedAt, &l.CreatedAt, &l.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrLessonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lesson: %w", err)
	}

	return l, nil
}

// UpdateLessonContent replaces the authored parts of a lesson.
func (db *DB) UpdateLessonContent(ctx context.Context, lesson *models.Lesson) error {
	query := `
		UPDATE lessons
		SET title = $1, slides = $2, voice_settings = $3, video_settings = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at
	`
	err := db.QueryRowContext(ctx, query,
		lesson.Title, lesson.Slides, lesson.VoiceSettings, lesson.VideoSettings, lesson.ID,
	).Scan(&lesson.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrLessonNotFound
	}
	return err
}

// PatchLesson writes only the non-nil fields of patch.
func (db *DB) PatchLesson(ctx context.Context, id uuid.UUID, patch models.LessonPatch) error {
	if patch.Empty() {
		return nil
	}
	query, args := buildLessonPatch(id, patch)

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to patch lesson: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrLessonNotFound
	}
	return nil
}

func buildLessonPatch(id uuid.UUID, p models.LessonPatch) (string, []interface{}) {
	var (
		sets []string
		args []interface{}
	)
	set := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(column), len(args)))
	}

	if p.VideoStatus != nil {
		set("video_status", string(*p.VideoStatus))
	}
	if p.VideoURL != nil {
		set("video_url", *p.VideoURL)
	}
	if p.ThumbnailURL != nil {
		set("thumbnail_url", *p.ThumbnailURL)
	}
	if p.VideoStoragePath != nil {
		set("video_storage_path", *p.VideoStoragePath)
	}
	if p.ThumbnailStoragePath != nil {
		set("thumbnail_storage_path", *p.ThumbnailStoragePath)
	}
	if p.DurationSeconds != nil {
		set("duration_seconds", *p.DurationSeconds)
	}
	if p.FileSize != nil {
		set("file_size", *p.FileSize)
	}
	if p.InteractionsTimeline != nil {
		set("interactions_timeline", *p.InteractionsTimeline)
	}
	if p.Narrations != nil {
		set("narrations", *p.Narrations)
	}
	if p.VideoError != nil {
		set("video_error", *p.VideoError)
	}
	if p.VideoErrorDetail != nil {
		set("video_error_detail", *p.VideoErrorDetail)
	}
	if p.VideoGeneratedAt != nil {
		set("video_generated_at", *p.VideoGeneratedAt)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE lessons SET %s, updated_at = NOW() WHERE id = $%d",
		strings.Join(sets, ", "), len(args))
	return query, args
}
