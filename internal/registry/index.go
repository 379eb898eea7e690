package registry

import (
	"context"
	"sort"
	"sync/atomic"
	"time"
)

// NameMatch is one hit in the secondary name index.
type NameMatch struct {
	Kind string // "flow", "plan", "task"
	ID   string
}

// FindByName returns every entity whose name (or title, for tasks) equals
// name. Names are not unique; results are sorted by ID for determinism.
func (r *Registry) FindByName(name string) []NameMatch {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, ok := r.nameIndex[name]
	if !ok {
		return nil
	}
	matches := make([]NameMatch, 0, len(ids))
	for id, kind := range ids {
		matches = append(matches, NameMatch{Kind: kind, ID: id})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	return matches
}

// rebuildNameIndex recomputes the full index from the snapshot.
// Callers hold the write lock.
func (r *Registry) rebuildNameIndex() {
	r.nameIndex = make(map[string]map[string]string)
	for id, flow := range r.snap.Flows {
		r.indexName(flow.Name, string(id), "flow")
	}
	for id, plan := range r.snap.Plans {
		r.indexName(plan.Name, string(id), "plan")
	}
	for id, task := range r.snap.Tasks {
		r.indexName(task.Title, string(id), "task")
	}
}

func (r *Registry) indexName(name, id, kind string) {
	ids, ok := r.nameIndex[name]
	if !ok {
		ids = make(map[string]string)
		r.nameIndex[name] = ids
	}
	ids[id] = kind
}

func (r *Registry) unindexName(name, id string) {
	ids, ok := r.nameIndex[name]
	if !ok {
		return
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(r.nameIndex, name)
	}
}

// cacheGet serves a lookup from the hot slot or the snapshot cache. The hot
// slot has its own mutex so reads can run under the registry's RLock.
func (r *Registry) cacheGet(id string) (any, bool) {
	r.cacheMu.Lock()
	if r.hotID == id && r.hotVal != nil {
		val := r.hotVal
		r.cacheMu.Unlock()
		atomic.AddUint64(&r.hotHits, 1)
		return val, true
	}
	r.cacheMu.Unlock()

	if r.snapshots == nil {
		return nil, false
	}
	val, ok := r.snapshots.Get(context.Background(), id)
	if !ok {
		return nil, false
	}
	r.setHot(id, val)
	return val, true
}

// cachePut remembers the entity snapshot for subsequent lookups.
func (r *Registry) cachePut(id string, val any) {
	r.setHot(id, val)
	if r.snapshots != nil {
		r.snapshots.Set(context.Background(), id, val, snapshotTTL)
	}
}

func (r *Registry) setHot(id string, val any) {
	r.cacheMu.Lock()
	r.hotID = id
	r.hotVal = val
	r.cacheMu.Unlock()
}

// invalidate clears cached snapshots for the given IDs. Called on every
// mutation or delete of those entities.
func (r *Registry) invalidate(ids ...string) {
	r.cacheMu.Lock()
	for _, id := range ids {
		if r.hotID == id {
			r.hotID = ""
			r.hotVal = nil
			break
		}
	}
	r.cacheMu.Unlock()
	if r.snapshots != nil {
		_ = r.snapshots.Delete(context.Background(), ids...)
	}
}

// invalidateAll drops every cached snapshot, used when the whole store is
// replaced by Sync.
func (r *Registry) invalidateAll() {
	r.cacheMu.Lock()
	r.hotID = ""
	r.hotVal = nil
	r.cacheMu.Unlock()
	if r.snapshots != nil {
		_ = r.snapshots.Flush(context.Background())
	}
}

// Statistics reports entity counts and cache effectiveness.
type Statistics struct {
	Flows int `json:"flows"`
	Plans int `json:"plans"`
	Tasks int `json:"tasks"`

	Revision int64 `json:"revision"`
	Dirty    bool  `json:"dirty"`

	HotCacheHits uint64 `json:"hot_cache_hits"`
	CacheHits    uint64 `json:"cache_hits"`
	CacheMisses  uint64 `json:"cache_misses"`
	MapLookups   uint64 `json:"map_lookups"`

	LastFlushAt time.Time     `json:"last_flush_at"`
	SinceFlush  time.Duration `json:"since_flush"`
}

// GetStatistics returns a point-in-time view of the registry.
func (r *Registry) GetStatistics() Statistics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Statistics{
		Flows:        len(r.snap.Flows),
		Plans:        len(r.snap.Plans),
		Tasks:        len(r.snap.Tasks),
		Revision:     r.snap.Revision,
		Dirty:        r.dirty,
		HotCacheHits: atomic.LoadUint64(&r.hotHits),
		MapLookups:   atomic.LoadUint64(&r.mapLookups),
		LastFlushAt:  r.lastFlush,
	}
	if r.snapshots != nil {
		cs := r.snapshots.Stats()
		stats.CacheHits = cs.Hits
		stats.CacheMisses = cs.Misses
	}
	if !r.lastFlush.IsZero() {
		stats.SinceFlush = time.Since(r.lastFlush)
	}
	return stats
}
