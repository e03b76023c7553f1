package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"retailpos/internal/domain"
)

const (
	QueueDefault = "default"
	// TaskLowStockAlert fires when a sale leaves a product at or below its
	// low-stock threshold.
	TaskLowStockAlert = "inventory:low_stock"
)

func NewLowStockTask(alert domain.LowStockAlert) (*asynq.Task, error) {
	body, err := json.Marshal(alert)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockAlert, body,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(5),
		asynq.TaskID(fmt.Sprintf("low-stock:%s:%s", alert.ProductID, alert.SaleID)),
	), nil
}

// Client submits tasks to the queue. It satisfies the service's stock
// alert notifier.
type Client struct {
	client *asynq.Client
}

func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

func (c *Client) NotifyLowStock(ctx context.Context, alerts []domain.LowStockAlert) error {
	var errs []error
	for _, alert := range alerts {
		task, err := NewLowStockTask(alert)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := c.client.EnqueueContext(ctx, task); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
			errs = append(errs, fmt.Errorf("enqueue low stock %s: %w", alert.ProductID, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Client) Close() error {
	return c.client.Close()
}

// LowStockHandler processes TaskLowStockAlert tasks.
type LowStockHandler struct {
	logger *zap.Logger
}

func NewLowStockHandler(logger *zap.Logger) *LowStockHandler {
	return &LowStockHandler{logger: logger}
}

func (h *LowStockHandler) ProcessTask(_ context.Context, t *asynq.Task) error {
	var alert domain.LowStockAlert
	if err := json.Unmarshal(t.Payload(), &alert); err != nil {
		return fmt.Errorf("decode low stock payload: %w", asynq.SkipRetry)
	}
	if alert.ProductID == "" {
		return fmt.Errorf("low stock payload without product: %w", asynq.SkipRetry)
	}
	h.logger.Warn("product below low-stock threshold",
		zap.String("product_id", alert.ProductID),
		zap.String("sku", alert.SKU),
		zap.String("name", alert.Name),
		zap.Int("stock", alert.Stock),
		zap.Int("threshold", alert.Threshold),
		zap.String("sale_id", alert.SaleID),
	)
	return nil
}
