package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-courier-gateway/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the gateway store set from a single bun
// connection and serves them through the core.StoreProvider contract.
type RepositoryFactory struct {
	db            *bun.DB
	shipmentCache repositorycache.CacheService

	processedEventStore *ProcessedEventStore
	shipmentStore       core.ShipmentStore
	deadLetterStore     *DeadLetterStore
	ingestionAuditStore *IngestionAuditStore
}

type FactoryOption func(*RepositoryFactory)

// WithShipmentCache wraps the shipment store in a read-through cache.
func WithShipmentCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.shipmentCache = cacheService
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(factory)
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.processedEventStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) ProcessedEventStore() core.ProcessedEventStore {
	if f == nil {
		return nil
	}
	return f.processedEventStore
}

func (f *RepositoryFactory) ShipmentStore() core.ShipmentStore {
	if f == nil {
		return nil
	}
	return f.shipmentStore
}

func (f *RepositoryFactory) DeadLetterStore() core.DeadLetterStore {
	if f == nil {
		return nil
	}
	return f.deadLetterStore
}

func (f *RepositoryFactory) IngestionAuditStore() core.IngestionAuditStore {
	if f == nil {
		return nil
	}
	return f.ingestionAuditStore
}

func (f *RepositoryFactory) initStores() error {
	processedEventStore, err := NewProcessedEventStore(f.db)
	if err != nil {
		return err
	}
	f.processedEventStore = processedEventStore

	shipmentStore, err := NewShipmentStore(f.db)
	if err != nil {
		return err
	}
	if f.shipmentCache != nil {
		cached, cacheErr := NewCachedShipmentStore(shipmentStore, f.shipmentCache)
		if cacheErr != nil {
			return cacheErr
		}
		f.shipmentStore = cached
	} else {
		f.shipmentStore = shipmentStore
	}

	deadLetterStore, err := NewDeadLetterStore(f.db)
	if err != nil {
		return err
	}
	f.deadLetterStore = deadLetterStore

	ingestionAuditStore, err := NewIngestionAuditStore(f.db)
	if err != nil {
		return err
	}
	f.ingestionAuditStore = ingestionAuditStore

	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
