package container

import (
	"fmt"

	"github.com/recordstack/entitystore/common/bootstrap"
	"github.com/recordstack/entitystore/common/repository"
	"github.com/recordstack/entitystore/common/validation"
	"github.com/recordstack/entitystore/pkg/activity"
	"github.com/recordstack/entitystore/pkg/aggregates"
	"github.com/recordstack/entitystore/pkg/datamapper"
	"github.com/recordstack/entitystore/pkg/definition"
	"github.com/recordstack/entitystore/pkg/loader"
	"github.com/recordstack/entitystore/pkg/notifier"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components
	Account    string

	// Repositories
	SchemaRepo     *repository.SchemaRepository
	EntityRepo     *repository.EntityRepository
	CommitRepo     *repository.CommitRepository
	SyncRepo       *repository.SyncRepository
	IndexRepo      *repository.IndexRepository
	RecurrenceRepo *repository.RecurrenceRepository
	ActivityRepo   *repository.ActivityRepository
	GroupingRepo   *repository.GroupingRepository

	// Services
	Definitions *definition.Registry
	Validator   *validation.EntityValidator
	Mapper      *datamapper.DataMapper
	Loader      *loader.Loader
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	if components.Cache == nil {
		return nil, fmt.Errorf("entityd requires the cache tier, enable CACHE_ENABLED")
	}

	account := components.Config.Service.Account

	// Definition registry reloads schemas from storage on stale writes
	schemaRepo := repository.NewSchemaRepository(components.DB, account)
	registry := definition.NewRegistry()
	registry.SetResetHook(schemaRepo.Load)

	// Initialize repositories
	entityRepo := repository.NewEntityRepository(components.DB, registry, account, components.Logger)
	commitRepo := repository.NewCommitRepository(components.DB, account)
	syncRepo := repository.NewSyncRepository(components.DB, account)
	indexRepo := repository.NewIndexRepository(components.DB, account)
	recurrenceRepo := repository.NewRecurrenceRepository(components.DB, account)
	activityRepo := repository.NewActivityRepository(components.DB, account)
	groupingRepo := repository.NewGroupingRepository(components.DB, account)

	// Initialize services (bottom-up: dependencies first)
	validator, err := validation.NewEntityValidator(components.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build entity validator: %w", err)
	}

	notif := notifier.New(components.Redis, notifier.DefaultChannel, account, components.Logger)
	activityLog := activity.NewLogger(activityRepo, components.Logger)

	mapper := datamapper.New(datamapper.Config{
		Store:       entityRepo,
		Commits:     commitRepo,
		Sync:        syncRepo,
		Index:       indexRepo,
		Validator:   validator,
		Activity:    activityLog,
		Notifier:    notif,
		Recurrence:  recurrenceRepo,
		Groupings:   groupingRepo,
		Definitions: registry,
		Log:         components.Logger,
	})

	entityLoader := loader.New(
		mapper,
		registry,
		components.Cache,
		components.Metrics,
		components.Logger,
		account,
		components.Config.Cache.DefaultTTL,
	)

	// Wired after construction: the loader reads through the mapper and
	// the mapper clears loader caches on every write
	mapper.SetCacheInvalidator(entityLoader)

	// Rollup updater saves related entities back through the mapper
	mapper.SetAggregator(aggregates.NewUpdater(mapper, entityRepo, components.Logger))

	return &Container{
		Components:     components,
		Account:        account,
		SchemaRepo:     schemaRepo,
		EntityRepo:     entityRepo,
		CommitRepo:     commitRepo,
		SyncRepo:       syncRepo,
		IndexRepo:      indexRepo,
		RecurrenceRepo: recurrenceRepo,
		ActivityRepo:   activityRepo,
		GroupingRepo:   groupingRepo,
		Definitions:    registry,
		Validator:      validator,
		Mapper:         mapper,
		Loader:         entityLoader,
	}, nil
}
