package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"dietinsights/internal/metrics"
	"dietinsights/internal/models"
)

// Source is where a dataset is read from on reload.
type Source interface {
	Name() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Snapshot is an immutable, versioned copy of the validated dataset.
// Nothing in it may be modified once it has been published by a Store.
type Snapshot struct {
	Version  uint64
	LoadedAt time.Time
	Source   string
	Records  []models.NutritionRecord
	Rejected []Rejection

	// Struct-of-arrays view of Records
	values     [numMetrics][]float64
	dietIDs    []int32
	cuisineIDs []int32
	nameLower  []string

	// Dictionaries (ID -> String), in first-appearance order
	dietDict     []string
	cuisineDict  []string
	cuisineLower []string
}

func newSnapshot(version uint64, source string, loadedAt time.Time, res ParseResult) *Snapshot {
	n := len(res.Records)
	s := &Snapshot{
		Version:    version,
		LoadedAt:   loadedAt,
		Source:     source,
		Records:    res.Records,
		Rejected:   res.Rejected,
		dietIDs:    make([]int32, n),
		cuisineIDs: make([]int32, n),
		nameLower:  make([]string, n),
	}
	for m := range s.values {
		s.values[m] = make([]float64, n)
	}

	dietMap := make(map[string]int32)
	cuisineMap := make(map[string]int32)
	for i := range res.Records {
		r := &res.Records[i]

		s.values[0][i] = r.ProteinG
		s.values[1][i] = r.CarbsG
		s.values[2][i] = r.FatG
		s.nameLower[i] = strings.ToLower(r.RecipeName)

		id, ok := dietMap[r.DietType]
		if !ok {
			id = int32(len(s.dietDict))
			s.dietDict = append(s.dietDict, r.DietType)
			dietMap[r.DietType] = id
		}
		s.dietIDs[i] = id

		id, ok = cuisineMap[r.CuisineType]
		if !ok {
			id = int32(len(s.cuisineDict))
			s.cuisineDict = append(s.cuisineDict, r.CuisineType)
			s.cuisineLower = append(s.cuisineLower, strings.ToLower(r.CuisineType))
			cuisineMap[r.CuisineType] = id
		}
		s.cuisineIDs[i] = id
	}
	return s
}

func (s *Snapshot) Len() int { return len(s.Records) }

// DietTypes returns the distinct diet types, sorted.
func (s *Snapshot) DietTypes() []string {
	out := slices.Clone(s.dietDict)
	slices.Sort(out)
	return out
}

// CuisineTypes returns the distinct cuisine types, sorted.
func (s *Snapshot) CuisineTypes() []string {
	out := slices.Clone(s.cuisineDict)
	slices.Sort(out)
	return out
}

func (s *Snapshot) HasDiet(d string) bool {
	return slices.Contains(s.dietDict, strings.ToLower(strings.TrimSpace(d)))
}

func (s *Snapshot) HasCuisine(c string) bool {
	return slices.Contains(s.cuisineLower, strings.ToLower(strings.TrimSpace(c)))
}

// Store holds the current snapshot. Current is lock-free; reloads are serialized.
type Store struct {
	mu      sync.Mutex
	version uint64

	current atomic.Pointer[Snapshot]
	last    atomic.Pointer[models.ReloadStatus]

	hooksMu sync.RWMutex
	hooks   []func(*Snapshot)

	logger *slog.Logger
	now    func() time.Time
}

func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger, now: time.Now}
}

// OnReload registers fn to run after every successful reload.
func (s *Store) OnReload(fn func(*Snapshot)) {
	s.hooksMu.Lock()
	s.hooks = append(s.hooks, fn)
	s.hooksMu.Unlock()
}

// Current returns the latest snapshot, or a NotLoadedError.
func (s *Store) Current() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, &NotLoadedError{}
	}
	return snap, nil
}

// LastReload reports the outcome of the most recent reload attempt, or nil.
func (s *Store) LastReload() *models.ReloadStatus {
	return s.last.Load()
}

// Reload reads and parses src and swaps in a new snapshot. On any failure the
// previous snapshot stays current. Reloads run one at a time.
func (s *Store) Reload(ctx context.Context, src Source) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rc, err := src.Open(ctx)
	if err != nil {
		err = fmt.Errorf("open %s: %w", src.Name(), err)
		s.recordFailure(src.Name(), 0, err)
		return nil, err
	}
	defer rc.Close()

	rows, err := ReadRows(rc)
	if err != nil {
		err = fmt.Errorf("read %s: %w", src.Name(), err)
		s.recordFailure(src.Name(), 0, err)
		return nil, err
	}
	return s.publish(src.Name(), rows)
}

// ReloadRows builds and publishes a snapshot from already-read rows.
func (s *Store) ReloadRows(source string, rows []RawRow) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publish(source, rows)
}

// publish must be called with s.mu held. Hooks run under the lock, so they
// must not reload.
func (s *Store) publish(source string, rows []RawRow) (*Snapshot, error) {
	start := s.now()
	res := Parse(rows)

	if len(res.Records) == 0 {
		err := &DataIntegrityError{Source: source, Rejected: len(res.Rejected), Reasons: res.Reasons()}
		s.recordFailure(source, len(res.Rejected), err)
		return nil, err
	}
	s.version++
	snap := newSnapshot(s.version, source, s.now(), res)
	s.current.Store(snap)

	s.last.Store(&models.ReloadStatus{
		At:       snap.LoadedAt,
		Version:  snap.Version,
		Source:   source,
		Accepted: len(snap.Records),
		Rejected: len(snap.Rejected),
	})
	metrics.ReloadsTotal.WithLabelValues("ok").Inc()
	metrics.SnapshotVersion.Set(float64(snap.Version))
	metrics.SnapshotRecords.Set(float64(len(snap.Records)))
	metrics.RejectedRows.Set(float64(len(snap.Rejected)))

	s.logger.Info("dataset reloaded",
		slog.String("source", source),
		slog.Uint64("version", snap.Version),
		slog.Int("accepted", len(snap.Records)),
		slog.Int("rejected", len(snap.Rejected)),
		slog.Duration("took", s.now().Sub(start)),
	)

	s.hooksMu.RLock()
	hooks := slices.Clone(s.hooks)
	s.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(snap)
	}
	return snap, nil
}

func (s *Store) recordFailure(source string, rejected int, err error) {
	st := &models.ReloadStatus{At: s.now(), Source: source, Rejected: rejected, Error: err.Error()}
	if cur := s.current.Load(); cur != nil {
		st.Version = cur.Version
	}
	s.last.Store(st)
	metrics.ReloadsTotal.WithLabelValues("error").Inc()
	s.logger.Warn("dataset reload failed",
		slog.String("source", source),
		slog.Int("rejected", rejected),
		slog.String("error", err.Error()),
	)
}
