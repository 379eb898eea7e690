// Package registry is the primary API over the store: an in-memory index of
// flows, plans and tasks backed by one atomically-written file, shared with
// other processes through an inter-process lock.
//
// The registry owns the canonical entity graph for its process. Entities
// returned to callers are snapshots; callers never mutate them in place.
// Every mutation validates first and applies second, so a failed operation
// leaves no observable change.
package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/flowstate/internal/cachemanager"
	"github.com/zjrosen/flowstate/internal/changelog"
	"github.com/zjrosen/flowstate/internal/codec"
	"github.com/zjrosen/flowstate/internal/config"
	"github.com/zjrosen/flowstate/internal/domain"
	"github.com/zjrosen/flowstate/internal/lock"
	"github.com/zjrosen/flowstate/internal/log"
	"github.com/zjrosen/flowstate/internal/storage"
	"github.com/zjrosen/flowstate/internal/tracing"
	"github.com/zjrosen/flowstate/internal/watcher"
)

// LockFileName is the sidecar lock next to the store file.
const LockFileName = "flowstate.lock"

const snapshotTTL = 10 * time.Minute

// LoadReport describes what happened while opening the store. A corrupt
// file is recovered from (quarantined, fresh store) but always reported
// here so the caller can alert a human.
type LoadReport struct {
	// Fresh is true when no store file existed yet.
	Fresh bool

	// Migrated is true when a legacy layout was upgraded and written back.
	Migrated bool

	// Corrupt is non-nil when the store file could not be parsed and was
	// quarantined. The registry is still usable (empty store).
	Corrupt *domain.CorruptStoreError
}

// Registry is the single point of truth for one store path within a process.
// It must not be constructed twice against the same path without external
// coordination.
type Registry struct {
	mu sync.RWMutex

	cfg      config.Config
	store    *storage.FileStore
	flock    *lock.FileLock
	recorder *changelog.Recorder
	provider *tracing.Provider
	tracer   trace.Tracer

	snap        *codec.Snapshot
	currentTask *domain.TaskID

	// nameIndex maps name -> id -> entity kind. Names are not unique.
	nameIndex map[string]map[string]string

	// Single-slot hot cache of the most recently returned entity, plus a
	// TTL snapshot cache behind it when enabled. The hot slot has its own
	// mutex so read paths can update it while holding only mu.RLock.
	cacheMu   sync.Mutex
	hotID     string
	hotVal    any
	snapshots cachemanager.CacheManager[string, any]

	dirty     bool
	lastFlush time.Time

	hotHits    uint64
	mapLookups uint64

	fileWatcher *watcher.Watcher
	watchCancel context.CancelFunc
	closeOnce   sync.Once
}

// Open loads (or creates) the store described by cfg and returns the
// registry plus a load report. The report's Corrupt field is a warning, not
// a failure; it is never swallowed.
func Open(cfg config.Config) (*Registry, *LoadReport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := storage.New(cfg.BaseDir, cfg.BackupRetention)
	if err != nil {
		return nil, nil, err
	}

	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing tracing: %w", err)
	}
	shutdownTracing := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(ctx)
	}

	var sinks []changelog.Sink
	if cfg.Changelog.Enabled {
		fileSink, err := changelog.NewFileSink(filepath.Join(cfg.BaseDir, changelog.FileName))
		if err != nil {
			shutdownTracing()
			return nil, nil, err
		}
		sinks = append(sinks, fileSink)
	}
	if cfg.Changelog.SQLiteEnabled {
		dbSink, err := changelog.NewSQLiteSink(filepath.Join(cfg.BaseDir, changelog.DBFileName))
		if err != nil {
			for _, s := range sinks {
				_ = s.Close()
			}
			shutdownTracing()
			return nil, nil, err
		}
		sinks = append(sinks, dbSink)
	}

	r := &Registry{
		cfg:       cfg,
		store:     store,
		flock:     lock.New(filepath.Join(cfg.BaseDir, LockFileName)),
		recorder:  changelog.NewRecorder(sinks...),
		provider:  provider,
		tracer:    provider.Tracer(),
		nameIndex: make(map[string]map[string]string),
	}
	if cfg.CacheEnabled {
		r.snapshots = cachemanager.NewInMemoryCacheManager[string, any](
			"entity-snapshots", cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval)
	}

	report, err := r.load()
	if err != nil {
		_ = r.recorder.Close()
		shutdownTracing()
		return nil, nil, err
	}

	if cfg.WatchEnabled {
		if err := r.startWatcher(); err != nil {
			_ = r.recorder.Close()
			shutdownTracing()
			return nil, nil, err
		}
	}

	return r, report, nil
}

// load reads the store file, migrating or quarantining as needed.
func (r *Registry) load() (*LoadReport, error) {
	_, span := r.tracer.Start(context.Background(), "registry.load")
	defer span.End()

	report := &LoadReport{}

	data, exists, err := r.store.Read()
	if err != nil {
		return nil, err
	}
	if !exists {
		r.snap = codec.NewSnapshot()
		report.Fresh = true
		log.Info(log.CatRegistry, "starting fresh store", "path", r.store.Path())
		return report, nil
	}

	snap, migrated, err := codec.Decode(data)
	if err != nil {
		// Unparseable: quarantine, warn, start empty. Never fatal.
		quarantined, qerr := r.store.Quarantine()
		if qerr != nil {
			return nil, fmt.Errorf("store corrupt and quarantine failed: %w", qerr)
		}
		report.Corrupt = &domain.CorruptStoreError{
			Path:           r.store.Path(),
			QuarantinePath: quarantined,
			Cause:          err,
		}
		r.snap = codec.NewSnapshot()
		log.Warn(log.CatRegistry, "recovered from corrupt store", "quarantine", quarantined)
		return report, nil
	}

	r.snap = snap
	r.rebuildNameIndex()

	if migrated {
		// The upgraded form is written back before the store counts as
		// loaded, so the migration runs at most once per file.
		if err := r.persistLocked(context.Background()); err != nil {
			return nil, fmt.Errorf("writing back migrated store: %w", err)
		}
		report.Migrated = true
	}

	span.SetAttributes(
		attribute.Int("flows", len(snap.Flows)),
		attribute.Bool("migrated", migrated),
	)
	return report, nil
}

func (r *Registry) startWatcher() error {
	w, err := watcher.New(watcher.DefaultConfig(r.store.Path()))
	if err != nil {
		return err
	}
	changes, err := w.Start()
	if err != nil {
		return err
	}
	r.fileWatcher = w

	ctx, cancel := context.WithCancel(context.Background())
	r.watchCancel = cancel
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				if err := r.Sync(); err != nil {
					log.ErrorErr(log.CatWatcher, "sync after external change failed", err)
				}
			}
		}
	}()
	return nil
}

// Close flushes pending changes and releases every resource. Closing twice
// is a no-op.
func (r *Registry) Close() error {
	var firstErr error
	r.closeOnce.Do(func() {
		if err := r.Flush(); err != nil {
			firstErr = err
		}
		if r.watchCancel != nil {
			r.watchCancel()
		}
		if r.fileWatcher != nil {
			if err := r.fileWatcher.Stop(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if err := r.recorder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.provider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return firstErr
}

// Changes exposes the change event broker for in-process observers.
func (r *Registry) Changes() *changelog.Recorder {
	return r.recorder
}
