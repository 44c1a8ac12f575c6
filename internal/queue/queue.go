package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

const TaskTypeDelivery = "delivery:publish"

type DeliveryPayload struct {
	DeliveryID int64 `json:"delivery_id"`
}

// Client wraps the asynq client and implements service.TaskEnqueuer.
type Client struct {
	asynq      *asynq.Client
	maxRetries int
}

func NewClient(asynqClient *asynq.Client, maxRetries int) *Client {
	return &Client{
		asynq:      asynqClient,
		maxRetries: maxRetries,
	}
}

func (c *Client) EnqueueDelivery(ctx context.Context, deliveryID int64, delay time.Duration) error {
	payload, err := json.Marshal(DeliveryPayload{DeliveryID: deliveryID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeDelivery, payload)
	opts := []asynq.Option{
		asynq.MaxRetry(c.maxRetries),
		asynq.Timeout(10 * time.Minute),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}

	if _, err := c.asynq.EnqueueContext(ctx, task, opts...); err != nil {
		return err
	}

	log.Debug().Int64("delivery_id", deliveryID).Dur("delay", delay).Msg("delivery task enqueued")
	return nil
}
