package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

const (
	uploadMaxRetry = 5
	uploadTimeout  = 3 * time.Minute
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client: asynq.NewClient(redisOpt),
		queue:  queueName,
	}
}

func (c *Client) EnqueueUpload(ctx context.Context, payload UploadPayload) (*asynq.TaskInfo, error) {
	task, err := NewUploadTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, c.uploadOptions(payload.JobID)...)
}

// The job id doubles as the task id so a job is never queued twice.
func (c *Client) uploadOptions(jobID string) []asynq.Option {
	return []asynq.Option{
		asynq.Queue(c.queue),
		asynq.MaxRetry(uploadMaxRetry),
		asynq.Timeout(uploadTimeout),
		asynq.TaskID(jobID),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}
