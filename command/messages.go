package command

import (
	"strings"

	"github.com/goliatone/go-shopsync/core"
)

const (
	TypeRetryEvent        = "shopsync.command.event.retry"
	TypeRetryFailed       = "shopsync.command.event.retry_failed"
	TypeMarkFailed        = "shopsync.command.event.mark_failed"
	TypeReplayDeadLetters = "shopsync.command.dlq.replay"
	TypeRemoveDeadLetter  = "shopsync.command.dlq.remove"
	TypeClearDeadLetters  = "shopsync.command.dlq.clear"
	TypeRegisterWebhooks  = "shopsync.command.webhooks.register"
	TypeDeleteWebhooks    = "shopsync.command.webhooks.delete_all"
	TypeReconcileNow      = "shopsync.command.reconcile.run"
)

type RetryEventMessage struct {
	EventID string
}

func (RetryEventMessage) Type() string { return TypeRetryEvent }

func (m RetryEventMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return core.FieldError("command", "event_id", "event id is required")
	}
	return nil
}

type RetryFailedMessage struct {
	TenantID string
	Limit    int
}

func (RetryFailedMessage) Type() string { return TypeRetryFailed }

func (m RetryFailedMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return core.FieldError("command", "tenant_id", "tenant id is required")
	}
	if m.Limit < 0 {
		return core.FieldError("command", "limit", "limit must be >= 0")
	}
	return nil
}

type MarkFailedMessage struct {
	EventID string
	Message string
}

func (MarkFailedMessage) Type() string { return TypeMarkFailed }

func (m MarkFailedMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return core.FieldError("command", "event_id", "event id is required")
	}
	return nil
}

type ReplayDeadLettersMessage struct {
	Batch int
}

func (ReplayDeadLettersMessage) Type() string { return TypeReplayDeadLetters }

func (m ReplayDeadLettersMessage) Validate() error {
	if m.Batch < 0 {
		return core.FieldError("command", "batch", "batch must be >= 0")
	}
	return nil
}

type RemoveDeadLetterMessage struct {
	EntryID string
}

func (RemoveDeadLetterMessage) Type() string { return TypeRemoveDeadLetter }

func (m RemoveDeadLetterMessage) Validate() error {
	if strings.TrimSpace(m.EntryID) == "" {
		return core.FieldError("command", "entry_id", "dead letter id is required")
	}
	return nil
}

type ClearDeadLettersMessage struct{}

func (ClearDeadLettersMessage) Type() string { return TypeClearDeadLetters }

func (ClearDeadLettersMessage) Validate() error { return nil }

type RegisterWebhooksMessage struct {
	TenantID string
	Address  string
	// Topics defaults to every subscribed topic when empty.
	Topics []core.Topic
}

func (RegisterWebhooksMessage) Type() string { return TypeRegisterWebhooks }

func (m RegisterWebhooksMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return core.FieldError("command", "tenant_id", "tenant id is required")
	}
	address := strings.TrimSpace(m.Address)
	if address == "" {
		return core.FieldError("command", "address", "webhook address is required")
	}
	if !strings.HasPrefix(address, "https://") && !strings.HasPrefix(address, "http://") {
		return core.FieldError("command", "address", "webhook address must be an http(s) url")
	}
	for _, topic := range m.Topics {
		if !topic.Known() {
			return core.BadInputError("command: unsupported topic " + topic.String())
		}
	}
	return nil
}

type DeleteWebhooksMessage struct {
	TenantID string
}

func (DeleteWebhooksMessage) Type() string { return TypeDeleteWebhooks }

func (m DeleteWebhooksMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return core.FieldError("command", "tenant_id", "tenant id is required")
	}
	return nil
}

// ReconcileNowMessage runs one reconciliation pass. An empty TenantID covers
// every syncable tenant.
type ReconcileNowMessage struct {
	TenantID string
}

func (ReconcileNowMessage) Type() string { return TypeReconcileNow }

func (ReconcileNowMessage) Validate() error { return nil }
