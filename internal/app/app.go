package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jerome/simply-versioned/internal/archive"
	"github.com/jerome/simply-versioned/internal/config"
	"github.com/jerome/simply-versioned/internal/database"
	"github.com/jerome/simply-versioned/internal/encryption"
	"github.com/jerome/simply-versioned/internal/metrics"
	"github.com/jerome/simply-versioned/internal/versioning"
)

// App wires a versioning.Controller and its collaborators from config.
// It is what svctl runs against, and what services embedding the library
// use when they want the configured stack rather than assembling it.
type App struct {
	cfg        *config.Config
	store      database.Backend
	sealer     *encryption.Sealer
	archive    versioning.Archive
	registry   *prometheus.Registry
	controller *versioning.Controller
	logger     versioning.Logger
	logSink    io.Closer
	op         *Operation
}

// Open creates a fully wired App from the given config without checking the
// store schema. hosts may be nil for tools that only read and trim history.
// The caller must call Close when done.
func Open(ctx context.Context, cfg *config.Config, hosts versioning.HostStore, operation string) (*App, error) {
	op := NewOperation(operation, versioning.RealClock{})

	logger, sink, err := newLogger(cfg.Log, cfg.LogDir, op.ID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	store, err := database.NewStoreFromConfig(cfg.Database, logger)
	if err != nil {
		sink.Close()
		return nil, fmt.Errorf("creating version store: %w", err)
	}

	a := &App{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		logSink: sink,
		op:      op,
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	var sealer versioning.Sealer
	if enc != nil {
		a.sealer = encryption.NewSealer(enc)
		sealer = a.sealer
	}

	a.archive, err = archive.NewArchiveFromConfig(ctx, cfg.Archive)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating archive: %w", err)
	}

	retention := RetentionFromConfig(cfg.Versioning)
	if a.archive != nil {
		retention.SetArchive(a.archive)
	}

	a.controller = versioning.NewController(store, versioning.NewYAMLCodec(sealer), retention, hosts, logger, versioning.RealClock{}, versioning.UUIDGenerator{})
	if cfg.Versioning.MaxRetries != nil {
		a.controller.SetMaxRetries(*cfg.Versioning.MaxRetries)
	}
	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.controller.SetMetrics(metrics.NewMetrics(a.registry, cfg.Metrics.Namespace))
	}
	a.controller.SetFailureHandler(func(ctx context.Context, owner versioning.Owner, err error) {
		a.op.Fail()
	})

	logger.Info("operation started", "operation", op.Name, "database", cfg.Database.Type)
	return a, nil
}

// New is Open followed by a schema check, so that an out-of-date store is
// reported before any version is read or written.
func New(ctx context.Context, cfg *config.Config, hosts versioning.HostStore, operation string) (*App, error) {
	a, err := Open(ctx, cfg, hosts, operation)
	if err != nil {
		return nil, err
	}
	if err := a.store.CheckMigrations(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("version store schema out of date: %w", err)
	}
	return a, nil
}

// RetentionFromConfig builds the retention policy described by cfg.
func RetentionFromConfig(cfg config.VersioningConfig) *versioning.RetentionPolicy {
	p := versioning.NewRetentionPolicy(keepFromConfig(cfg.Keep, cfg.Unlimited, versioning.DefaultKeep))
	for name, t := range cfg.Types {
		p.SetKeep(name, keepFromConfig(t.Keep, t.Unlimited, p.KeepFor("")))
	}
	return p
}

func keepFromConfig(keep *int, unlimited bool, fallback versioning.Keep) versioning.Keep {
	switch {
	case unlimited:
		return versioning.Unlimited
	case keep != nil:
		return versioning.Keep(*keep)
	default:
		return fallback
	}
}

func (a *App) Controller() *versioning.Controller { return a.controller }
func (a *App) Store() versioning.Store            { return a.store }
func (a *App) Logger() versioning.Logger          { return a.logger }

// Gatherer returns the metrics registry, or nil when metrics are disabled.
func (a *App) Gatherer() prometheus.Gatherer {
	if a.registry == nil {
		return nil
	}
	return a.registry
}

// Migrate brings the store schema up to date.
func (a *App) Migrate(ctx context.Context) error {
	if err := a.store.Migrate(ctx); err != nil {
		a.op.Fail()
		return fmt.Errorf("migrating version store: %w", err)
	}
	return nil
}

// CheckMigrations reports whether the store schema is up to date.
func (a *App) CheckMigrations(ctx context.Context) error {
	return a.store.CheckMigrations(ctx)
}

// Unlock makes sealed snapshots readable for the rest of the App's life.
// It is a no-op when snapshots are not sealed.
func (a *App) Unlock(passphrase string) error {
	if a.sealer == nil {
		return nil
	}
	return a.sealer.Unlock(passphrase)
}

// Sealed reports whether snapshots are encrypted at rest.
func (a *App) Sealed() bool { return a.sealer != nil }

// Log returns the surviving versions of owner, newest first.
func (a *App) Log(ctx context.Context, owner versioning.Owner) ([]*versioning.Version, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	return a.controller.History(owner).List(ctx, versioning.Descending)
}

// Show reconstructs version number of owner. Versions trimmed from the store
// are looked up in the archive when one is configured.
func (a *App) Show(ctx context.Context, owner versioning.Owner, number int64) (*versioning.Version, versioning.Attributes, error) {
	if err := owner.Validate(); err != nil {
		return nil, nil, err
	}

	v, err := a.controller.History(owner).Get(ctx, number)
	if errors.Is(err, versioning.ErrVersionNotFound) && a.archive != nil {
		a.logger.Debug("version not in store, trying archive", "owner", owner.String(), "number", number)
		v, err = a.archive.Get(ctx, owner, number)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("finding version %d of %s: %w", number, owner, err)
	}

	attrs, err := a.controller.ToModel(v)
	if err != nil {
		return nil, nil, err
	}
	return v, attrs, nil
}

// Trim applies the configured retention policy to owner.
func (a *App) Trim(ctx context.Context, owner versioning.Owner) (int64, error) {
	if err := owner.Validate(); err != nil {
		return 0, err
	}
	n, err := a.controller.Trim(ctx, owner)
	if err != nil {
		a.op.Fail()
		return 0, fmt.Errorf("trimming %s: %w", owner, err)
	}
	a.logger.Info("versions trimmed", "owner", owner.String(), "count", n)
	return n, nil
}

// Purge deletes the whole history of owner.
func (a *App) Purge(ctx context.Context, owner versioning.Owner) (int64, error) {
	if err := owner.Validate(); err != nil {
		return 0, err
	}
	n, err := a.controller.Purge(ctx, owner)
	if err != nil {
		a.op.Fail()
		return 0, err
	}
	a.logger.Info("versions purged", "owner", owner.String(), "count", n)
	return n, nil
}

// Close closes the store and the log file. The first error wins.
func (a *App) Close() error {
	var firstErr error

	if a.sealer != nil {
		a.sealer.Lock()
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			firstErr = fmt.Errorf("closing version store: %w", err)
		}
	}

	a.logger.Info("operation finished", "operation", a.op.Name, "status", a.op.Status)
	if a.logSink != nil {
		if err := a.logSink.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log: %w", err)
		}
	}
	return firstErr
}

// InitKeys creates the encryption keys configured in cfg, protected by
// passphrase.
func InitKeys(cfg config.EncryptionConfig, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if enc == nil {
		return fmt.Errorf("encryption is not enabled in config")
	}
	if enc.IsConfigured() {
		return fmt.Errorf("encryption keys already exist")
	}
	if err := enc.Setup(passphrase); err != nil {
		return fmt.Errorf("setting up encryption keys: %w", err)
	}
	return nil
}
