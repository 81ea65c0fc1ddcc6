package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/goliatone/go-membership/core"
)

// RepositoryFactory wires the SQL-backed stores off one bun handle. It is
// the core.StoreProvider handed to the service and job wiring.
type RepositoryFactory struct {
	db    *bun.DB
	cache repositorycache.CacheService

	memberStore       core.MemberStore
	jobExecutionStore *JobExecutionStore
	webhookEventStore *WebhookEventStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// NewRepositoryFactoryForPostgres opens a postgres-backed handle for
// production deployments. The DSN is a lib/pq connection string; the
// connection itself is established lazily on first use.
func NewRepositoryFactoryForPostgres(dsn string) (*RepositoryFactory, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("sqlstore: postgres dsn is required")
	}
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open postgres: %w", err)
	}
	return NewRepositoryFactoryFromDB(bun.NewDB(sqlDB, pgdialect.New()))
}

// WithCache enables the read-through member cache. Must be set before
// BuildStores; a nil service leaves reads uncached.
func (f *RepositoryFactory) WithCache(cacheService repositorycache.CacheService) *RepositoryFactory {
	if f != nil {
		f.cache = cacheService
	}
	return f
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
	if f.memberStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) MemberStore() core.MemberStore {
	if f == nil {
		return nil
	}
	return f.memberStore
}

func (f *RepositoryFactory) JobExecutionStore() core.JobExecutionStore {
	if f == nil || f.jobExecutionStore == nil {
		return nil
	}
	return f.jobExecutionStore
}

func (f *RepositoryFactory) WebhookEventStore() core.WebhookEventStore {
	if f == nil || f.webhookEventStore == nil {
		return nil
	}
	return f.webhookEventStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	memberStore, err := NewMemberStore(f.db)
	if err != nil {
		return err
	}
	if f.cache != nil {
		cached, cacheErr := NewCachedMemberStore(memberStore, f.cache)
		if cacheErr != nil {
			return cacheErr
		}
		f.memberStore = cached
	} else {
		f.memberStore = memberStore
	}

	jobExecutionStore, err := NewJobExecutionStore(f.db)
	if err != nil {
		return err
	}
	f.jobExecutionStore = jobExecutionStore

	webhookEventStore, err := NewWebhookEventStore(f.db)
	if err != nil {
		return err
	}
	f.webhookEventStore = webhookEventStore

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
