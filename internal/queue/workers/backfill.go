package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nexusflow/backend/internal/queue"
)

// Backfiller reconciles stored vectors against the current chunk set.
// Satisfied by *rag.Engine.
type Backfiller interface {
	BackfillMissing(ctx context.Context) (int, error)
}

type BackfillWorker struct {
	engine Backfiller
}

func NewBackfillWorker(engine Backfiller) *BackfillWorker {
	return &BackfillWorker{engine: engine}
}

func (w *BackfillWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.BackfillPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	slog.Info("knowledge backfill started", "reason", payload.Reason)

	generated, err := w.engine.BackfillMissing(ctx)
	if err != nil {
		return fmt.Errorf("backfill vectors: %w", err)
	}

	slog.Info("knowledge backfill finished", "generated", generated)
	return nil
}
