package sqlstore

import "github.com/goliatone/go-courier-gateway/core"

var (
	_ core.ProcessedEventStore    = (*ProcessedEventStore)(nil)
	_ core.ShipmentStore          = (*ShipmentStore)(nil)
	_ core.DeadLetterStore        = (*DeadLetterStore)(nil)
	_ core.IngestionAuditStore    = (*IngestionAuditStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
