package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dunamismax/pixelnote/internal/domain"
)

const (
	commitMaxRetry = 5
	commitTimeout  = 3 * time.Minute
)

// Client hands image commits to the worker queue.
type Client struct {
	client *asynq.Client
	opts   []asynq.Option
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client: asynq.NewClient(redisOpt),
		opts: []asynq.Option{
			asynq.Queue(queueName),
			asynq.MaxRetry(commitMaxRetry),
			asynq.Timeout(commitTimeout),
		},
	}
}

func (c *Client) EnqueueCommit(ctx context.Context, commit domain.ImageCommit) (*asynq.TaskInfo, error) {
	task, err := NewCommitImageTask(commit)
	if err != nil {
		return nil, err
	}
	info, err := c.client.EnqueueContext(ctx, task, c.opts...)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s for note %s: %w", TypeCommitImage, commit.NoteID, err)
	}
	return info, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
