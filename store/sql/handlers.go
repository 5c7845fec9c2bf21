package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// idHandlers builds the repository handlers shared by every record keyed by
// a string uuid column named id.
func idHandlers[T any](newRecord func() T, getID func(T) *string) repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(record T) uuid.UUID {
			id := getID(record)
			if id == nil {
				return uuid.Nil
			}
			return parseUUID(*id)
		},
		SetID: func(record T, id uuid.UUID) {
			if target := getID(record); target != nil {
				*target = id.String()
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record T) string {
			id := getID(record)
			if id == nil {
				return ""
			}
			return strings.TrimSpace(*id)
		},
	}
}

func tenantHandlers() repository.ModelHandlers[*tenantRecord] {
	return idHandlers(
		func() *tenantRecord { return &tenantRecord{} },
		func(record *tenantRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func webhookEventHandlers() repository.ModelHandlers[*webhookEventRecord] {
	return idHandlers(
		func() *webhookEventRecord { return &webhookEventRecord{} },
		func(record *webhookEventRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
