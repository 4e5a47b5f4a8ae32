package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func processedEventHandlers() repository.ModelHandlers[*processedEventRecord] {
	return repository.ModelHandlers[*processedEventRecord]{
		NewRecord: func() *processedEventRecord {
			return &processedEventRecord{}
		},
		GetID: func(record *processedEventRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *processedEventRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "idempotency_key"
		},
		GetIdentifierValue: func(record *processedEventRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.IdempotencyKey)
		},
	}
}

func activeShipmentHandlers() repository.ModelHandlers[*activeShipmentRecord] {
	return repository.ModelHandlers[*activeShipmentRecord]{
		NewRecord: func() *activeShipmentRecord {
			return &activeShipmentRecord{}
		},
		GetID: func(record *activeShipmentRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *activeShipmentRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "shipment_id"
		},
		GetIdentifierValue: func(record *activeShipmentRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ShipmentID)
		},
	}
}

func deadLetterEventHandlers() repository.ModelHandlers[*deadLetterEventRecord] {
	return repository.ModelHandlers[*deadLetterEventRecord]{
		NewRecord: func() *deadLetterEventRecord {
			return &deadLetterEventRecord{}
		},
		GetID: func(record *deadLetterEventRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *deadLetterEventRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *deadLetterEventRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func ingestionAuditHandlers() repository.ModelHandlers[*ingestionAuditRecord] {
	return repository.ModelHandlers[*ingestionAuditRecord]{
		NewRecord: func() *ingestionAuditRecord {
			return &ingestionAuditRecord{}
		},
		GetID: func(record *ingestionAuditRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *ingestionAuditRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *ingestionAuditRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
