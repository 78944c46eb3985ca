package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"counsellor/dataset"
	"counsellor/db"
	"counsellor/registry"
)

// ReloadFunc re-reads every dataset and rebuilds the published models.
type ReloadFunc func(r *http.Request) error

// Reloader 串行化数据集重载 (启动、文件监听、HTTP 接口)
type Reloader struct {
	mu       sync.Mutex
	loader   *dataset.Loader
	registry *registry.Registry
	store    *db.Store
	logger   *zap.Logger
}

// NewReloader store may be nil; evaluations are then only logged.
func NewReloader(loader *dataset.Loader, reg *registry.Registry, store *db.Store, logger *zap.Logger) *Reloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reloader{loader: loader, registry: reg, store: store, logger: logger.Named("reload")}
}

// Reload loads the dataset directory and reinitializes the registry. A file
// that cannot be parsed leaves its published model in place and its error
// is returned with any build failures.
func (rl *Reloader) Reload(ctx context.Context) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	datasets, loadErr := rl.loader.Load(ctx)
	failed := dataset.FailedKeys(loadErr)
	if loadErr != nil && len(failed) == 0 {
		return loadErr
	}
	buildErr := rl.registry.Reinitialize(datasets, failed...)

	for _, key := range rl.registry.Datasets() {
		eval, err := rl.registry.Evaluate(key)
		if errors.Is(err, registry.ErrNoHoldout) {
			continue
		}
		if err != nil {
			rl.logger.Warn("evaluation failed", zap.String("dataset", key), zap.Error(err))
			continue
		}
		rl.logger.Info("model evaluated",
			zap.String("dataset", key),
			zap.Float64("accuracy", eval.Accuracy),
			zap.Int("total", eval.Total))
		if rl.store == nil {
			continue
		}
		if err := rl.store.SaveEvaluation(ctx, eval); err != nil {
			rl.logger.Warn("failed to store evaluation", zap.String("dataset", key), zap.Error(err))
		}
	}
	return errors.Join(loadErr, buildErr)
}

// HandlerFunc adapts Reload to the reload endpoint.
func (rl *Reloader) HandlerFunc() ReloadFunc {
	return func(r *http.Request) error {
		return rl.Reload(r.Context())
	}
}

func handleReload(reload ReloadFunc, h *handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		err := reload(r)
		datasets := h.registry.Datasets()
		if err != nil {
			// partial failures still publish the datasets that built
			h.logger.Warn("reload finished with errors", zap.Error(err))
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success":  false,
				"error":    err.Error(),
				"datasets": datasets,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"datasets": datasets,
			"took":     time.Since(start).String(),
		})
	}
}
