// Package registry owns one decision tree per dataset and answers validation,
// prediction, evaluation and statistics queries against it.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"counsellor/dataset"
)

var (
	DefaultTargetCandidates = []string{"College", "Suggested_Job_Role", "suggested_job_role", "suggested_job"}
	DefaultExcludedColumns  = []string{"Tier"}
)

// Observer receives registry activity, typically to export metrics.
type Observer interface {
	ModelBuilt(dataset string, records int, took time.Duration)
	BuildFailed(dataset string)
	Predicted(dataset string, cached, fallback bool)
	ValidationFailed(dataset string)
}

// Event describes a change to the published models.
type Event struct {
	Type      string    `json:"type"` // built, failed, reinitialized
	Dataset   string    `json:"dataset,omitempty"`
	Version   uint64    `json:"version,omitempty"`
	Records   int       `json:"records,omitempty"`
	Depth     int       `json:"depth,omitempty"`
	Nodes     int       `json:"nodes,omitempty"`
	Datasets  []string  `json:"datasets,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Options struct {
	Logger *zap.Logger
	// TargetCandidates in priority order; candidates spelled in lower case
	// also match columns case-insensitively.
	TargetCandidates []string
	ExcludedColumns  []string
	Importance       ImportanceMode
	CacheSize        int
	Observer         Observer
	OnEvent          func(Event)
}

type snapshot struct {
	models map[string]*Model
}

// Registry publishes an immutable dataset to model map. Readers load the
// current snapshot without locking; writers are serialized and swap in a copy.
type Registry struct {
	current atomic.Pointer[snapshot]
	mu      sync.Mutex
	version uint64

	candidates []string
	excluded   map[string]bool
	importance ImportanceMode
	cache      *lru.Cache[string, string]
	observer   Observer
	onEvent    func(Event)
	logger     *zap.Logger
}

func New(opts Options) (*Registry, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if len(opts.TargetCandidates) == 0 {
		opts.TargetCandidates = DefaultTargetCandidates
	}
	if opts.ExcludedColumns == nil {
		opts.ExcludedColumns = DefaultExcludedColumns
	}
	if opts.Importance == "" {
		opts.Importance = ImportanceGain
	}
	if !opts.Importance.Valid() {
		return nil, fmt.Errorf("unknown importance mode %q", opts.Importance)
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	cache, err := lru.New[string, string](opts.CacheSize)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		candidates: opts.TargetCandidates,
		excluded:   make(map[string]bool, len(opts.ExcludedColumns)),
		importance: opts.Importance,
		cache:      cache,
		observer:   opts.Observer,
		onEvent:    opts.OnEvent,
		logger:     opts.Logger.Named("registry"),
	}
	for _, c := range opts.ExcludedColumns {
		r.excluded[c] = true
	}
	return r, nil
}

// ResolveTarget picks the label column from columns in record order: the
// first candidate present verbatim, then the first column matching a
// lower-case candidate ignoring case, then the first candidate.
func (r *Registry) ResolveTarget(columns []string) string {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c] = true
	}
	for _, c := range r.candidates {
		if present[c] {
			return c
		}
	}
	for _, col := range columns {
		for _, c := range r.candidates {
			if c == strings.ToLower(c) && strings.EqualFold(col, c) {
				return col
			}
		}
	}
	return r.candidates[0]
}

// Build trains a model for one dataset and publishes it, replacing any
// previous model under the same key.
func (r *Registry) Build(ds dataset.Dataset) (*Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := r.build(ds)
	if err != nil {
		return nil, err
	}
	next := &snapshot{models: make(map[string]*Model)}
	if cur := r.current.Load(); cur != nil {
		for k, v := range cur.models {
			next.models[k] = v
		}
	}
	next.models[m.Key] = m
	r.current.Store(next)
	return m, nil
}

// Reinitialize rebuilds every dataset and swaps the whole map at once. A
// dataset that fails to build keeps its previously published model, if any,
// and its error is part of the joined result. Keys in keep that are absent
// from datasets, typically because their source could not be read, also
// keep their current model; any other key not in datasets is dropped.
func (r *Registry) Reinitialize(datasets []dataset.Dataset, keep ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := &snapshot{models: make(map[string]*Model, len(datasets))}
	var previous map[string]*Model
	if cur := r.current.Load(); cur != nil {
		previous = cur.models
	}
	retain := func(key string) {
		if old, ok := previous[key]; ok {
			r.logger.Warn("keeping previous model",
				zap.String("dataset", key),
				zap.Uint64("version", old.Version))
			next.models[key] = old
		}
	}

	var errs []error
	for _, ds := range datasets {
		m, err := r.build(ds)
		if err != nil {
			errs = append(errs, err)
			retain(ds.Key)
			continue
		}
		next.models[m.Key] = m
	}
	for _, key := range keep {
		if _, ok := next.models[key]; !ok {
			retain(key)
		}
	}
	r.current.Store(next)
	r.cache.Purge()

	keys := next.keys()
	r.logger.Info("models initialized", zap.Strings("datasets", keys), zap.Int("failed", len(errs)))
	r.emit(Event{Type: "reinitialized", Datasets: keys})
	return errors.Join(errs...)
}

func (r *Registry) build(ds dataset.Dataset) (*Model, error) {
	start := time.Now()
	r.version++
	m, err := r.newModel(ds, r.version)
	if err != nil {
		r.logger.Error("failed to build model", zap.String("dataset", ds.Key), zap.Error(err))
		if r.observer != nil {
			r.observer.BuildFailed(ds.Key)
		}
		r.emit(Event{Type: "failed", Dataset: ds.Key, Error: err.Error()})
		return nil, err
	}
	took := time.Since(start)

	r.logger.Info("model built",
		zap.String("dataset", m.Key),
		zap.Uint64("version", m.Version),
		zap.String("target", m.Target),
		zap.Strings("attributes", m.Attributes),
		zap.Int("records", len(m.Records)),
		zap.Int("holdout", len(m.Holdout)),
		zap.Int("depth", m.Tree.Depth()),
		zap.Duration("took", took))
	if r.observer != nil {
		r.observer.ModelBuilt(m.Key, len(m.Records), took)
	}
	r.emit(Event{
		Type:    "built",
		Dataset: m.Key,
		Version: m.Version,
		Records: len(m.Records),
		Depth:   m.Tree.Depth(),
		Nodes:   m.Tree.Size(),
	})
	return m, nil
}

func (r *Registry) emit(e Event) {
	if r.onEvent == nil {
		return
	}
	e.Timestamp = time.Now()
	r.onEvent(e)
}

// Initialized reports whether a model map has been published.
func (r *Registry) Initialized() bool {
	return r.current.Load() != nil
}

// Model returns the published model for key.
func (r *Registry) Model(key string) (*Model, error) {
	cur := r.current.Load()
	if cur == nil {
		return nil, fmt.Errorf("%s: %w", key, ErrModelNotFound)
	}
	m, ok := cur.models[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrModelNotFound)
	}
	return m, nil
}

// Datasets lists the published dataset keys in sorted order.
func (r *Registry) Datasets() []string {
	cur := r.current.Load()
	if cur == nil {
		return []string{}
	}
	return cur.keys()
}

func (s *snapshot) keys() []string {
	keys := make([]string, 0, len(s.models))
	for k := range s.models {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
