package resilience

import (
	"context"
	"time"

	"github.com/goliatone/go-shopsync/core"
)

type ReplayResult struct {
	EntryID  string
	EventID  string
	TenantID string
	Topic    core.Topic
	Success  bool
	Attempts int
	Error    string
}

// ReplayDeadLetters re-dispatches the most recent batch entries, each with
// exponential backoff. Replays bypass the breaker. Successful entries leave
// the queue; failed ones stay with their retry count bumped.
func (w *Wrapper) ReplayDeadLetters(ctx context.Context, batch int) (results []ReplayResult, err error) {
	startedAt := time.Now()
	defer func() {
		succeeded := 0
		for _, result := range results {
			if result.Success {
				succeeded++
			}
		}
		w.observer().Observe(ctx, startedAt, "replay", err, map[string]any{
			"replayed":  len(results),
			"succeeded": succeeded,
		})
	}()
	if w == nil || w.Dispatcher == nil || w.DLQ == nil {
		return nil, core.InternalError(nil, "resilience: wrapper is not configured")
	}
	if batch <= 0 {
		batch = w.Config.ReplayBatchSize
	}
	if batch <= 0 {
		batch = core.DefaultResilienceConfig().ReplayBatchSize
	}

	entries := w.DLQ.List(batch)
	results = make([]ReplayResult, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, w.replay(ctx, entry))
	}
	return results, nil
}

func (w *Wrapper) replay(ctx context.Context, entry core.DeadLetterEntry) ReplayResult {
	out := ReplayResult{
		EntryID:  entry.ID,
		EventID:  entry.EventID,
		TenantID: entry.TenantID,
		Topic:    entry.Topic,
	}
	attempts, err := w.Backoff.Retry(ctx, func(ctx context.Context, _ int) error {
		result, err := w.Dispatcher.Process(ctx, entry.Topic, entry.Payload, entry.TenantID)
		if err != nil {
			return err
		}
		if !result.Success {
			return core.ValidationError("topic", result.Message)
		}
		return nil
	}, w.Config.ReplayAttempts, w.Config.ReplayBaseDelay)
	out.Attempts = attempts

	if err != nil {
		out.Error = messageOf(err)
		w.DLQ.RecordFailure(entry.ID, out.Error)
		w.observer().Warn(ctx, "dead letter replay failed", map[string]any{
			"dlq_id":   entry.ID,
			"attempts": attempts,
			"error":    out.Error,
		})
		return out
	}

	out.Success = true
	w.DLQ.Remove(entry.ID)
	if w.Events != nil && entry.EventID != "" {
		if _, markErr := w.Events.MarkProcessed(ctx, entry.EventID); markErr != nil {
			w.observer().Warn(ctx, "replayed event could not be marked processed", map[string]any{
				"event_id": entry.EventID,
				"error":    markErr.Error(),
			})
		}
	}
	return out
}
