package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"retailpos/internal/domain"
)

func TestNewLowStockTaskCarriesAlert(t *testing.T) {
	alert := domain.LowStockAlert{ProductID: "prod-tea250", SKU: "TEA250", Name: "Assam Tea 250g", Stock: 3, Threshold: 10, SaleID: "sale-1"}

	task, err := NewLowStockTask(alert)
	require.NoError(t, err)
	assert.Equal(t, TaskLowStockAlert, task.Type())

	var decoded domain.LowStockAlert
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, alert, decoded)
}

func TestLowStockHandlerLogsAlert(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := NewLowStockHandler(zap.New(core))

	task, err := NewLowStockTask(domain.LowStockAlert{ProductID: "prod-tea250", SKU: "TEA250", Stock: 3, Threshold: 10})
	require.NoError(t, err)
	require.NoError(t, handler.ProcessTask(context.Background(), task))

	entries := logs.FilterMessage("product below low-stock threshold").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "TEA250", entries[0].ContextMap()["sku"])
}

func TestLowStockHandlerSkipsRetryOnBadPayload(t *testing.T) {
	handler := NewLowStockHandler(zap.NewNop())

	err := handler.ProcessTask(context.Background(), asynq.NewTask(TaskLowStockAlert, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	err = handler.ProcessTask(context.Background(), asynq.NewTask(TaskLowStockAlert, []byte(`{"sku":"X"}`)))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestClientEnqueuesOncePerProductAndSale(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	alerts := []domain.LowStockAlert{
		{ProductID: "prod-tea250", SaleID: "sale-1", Stock: 3, Threshold: 10},
		{ProductID: "prod-milk1l", SaleID: "sale-1", Stock: 9, Threshold: 10},
	}
	require.NoError(t, client.NotifyLowStock(context.Background(), alerts))
	require.NoError(t, client.NotifyLowStock(context.Background(), alerts[:1]))

	pending, err := mr.List("asynq:{default}:pending")
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}
