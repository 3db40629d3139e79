package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/bobarin/lessoncast/internal/models"
)

const (
	QueueGenerateVideo = "queue:generate_video"

	JobTypeGenerateVideo = "generate_video"
)

type Queue struct {
	client *redis.Client
}

type Job struct {
	ID        uuid.UUID        `json:"id"` // generation run id
	Type      string           `json:"type"`
	LessonID  uuid.UUID        `json:"lesson_id"`
	Reason    models.RunReason `json:"reason,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Connect parses a redis URL and verifies the server is reachable.
func Connect(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

func New(redisURL string) (*Queue, error) {
	client, err := Connect(redisURL)
	if err != nil {
		return nil, err
	}
	return &Queue{client: client}, nil
}

// NewWithClient wraps an existing connection so the queue, lesson locks and
// usage ledger share one pool.
func NewWithClient(client *redis.Client) *Queue {
	return &Queue{client: client}
}

func (q *Queue) Client() *redis.Client {
	return q.client
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, job *Job) error {
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return q.client.RPush(ctx, queueName, data).Err()
}

func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil // No job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

func (q *Queue) GetQueueLength(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}

// EnqueueGenerateVideo enqueues a lesson video generation run
func (q *Queue) EnqueueGenerateVideo(ctx context.Context, lessonID, runID uuid.UUID, reason models.RunReason) error {
	job := &Job{
		ID:       runID,
		Type:     JobTypeGenerateVideo,
		LessonID: lessonID,
		Reason:   reason,
	}
	return q.Enqueue(ctx, QueueGenerateVideo, job)
}
