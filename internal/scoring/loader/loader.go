// Package loader resolves the active scoring config from the persisted store,
// an environment override or the hardcoded default, and applies operator
// updates.
package loader

import (
	"context"
	stderrors "errors"
	"os"
	"sync"
	"time"

	"teed-waitlist/internal/common/errors"
	"teed-waitlist/internal/common/logger"
	"teed-waitlist/internal/common/metrics"
	"teed-waitlist/internal/common/validation"
	"teed-waitlist/internal/scoring"
	"teed-waitlist/internal/scoring/store"
)

// Source names the tier that served a config.
type Source string

const (
	SourcePersisted   Source = "persisted-store"
	SourceEnvironment Source = "environment-override"
	SourceDefault     Source = "hardcoded-default"
)

const (
	DefaultCacheTTL = 5 * time.Minute
	DefaultRetryTTL = 10 * time.Second
	DefaultEnvVar   = "WAITLIST_SCORING_CONFIG"
)

type ConfigStore interface {
	Load(ctx context.Context) (*store.Record, error)
	Save(ctx context.Context, cfg *scoring.Config) error
}

type HistoryStore interface {
	Append(ctx context.Context, e store.HistoryEntry) error
}

// Notifier is told about every committed config change.
type Notifier interface {
	ConfigChanged(ctx context.Context, cfg *scoring.Config, updatedBy, reason string) error
}

// Options tunes a Loader. RetryTTL bounds how long a result is cached after
// the store failed to answer.
type Options struct {
	CacheTTL  time.Duration
	RetryTTL  time.Duration
	EnvVar    string
	LookupEnv func(string) (string, bool)
	Now       func() time.Time
	Notifier  Notifier
}

type cacheEntry struct {
	cfg       *scoring.Config
	source    Source
	expiresAt time.Time
}

// Loader owns the config cache. It is safe for concurrent use; concurrent
// updates are not serialized against each other and the last Save wins.
type Loader struct {
	store    ConfigStore
	history  HistoryStore
	notifier Notifier
	log      logger.Logger

	ttl       time.Duration
	retryTTL  time.Duration
	envVar    string
	lookupEnv func(string) (string, bool)
	now       func() time.Time

	mu    sync.Mutex
	cache *cacheEntry
}

func New(cs ConfigStore, hs HistoryStore, log logger.Logger, opts Options) *Loader {
	l := &Loader{
		store:     cs,
		history:   hs,
		notifier:  opts.Notifier,
		log:       log,
		ttl:       opts.CacheTTL,
		retryTTL:  opts.RetryTTL,
		envVar:    opts.EnvVar,
		lookupEnv: opts.LookupEnv,
		now:       opts.Now,
	}
	if l.ttl <= 0 {
		l.ttl = DefaultCacheTTL
	}
	if l.retryTTL <= 0 {
		l.retryTTL = DefaultRetryTTL
	}
	if l.envVar == "" {
		l.envVar = DefaultEnvVar
	}
	if l.lookupEnv == nil {
		l.lookupEnv = os.LookupEnv
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// GetConfig returns a private copy of the active config and the tier it came
// from. It never fails: every tier failure falls through to the default.
//
// When the store is unreachable the last persisted config keeps being served
// if one is cached, and the result is only held for the retry window. Nothing
// is cached when the caller's context is already done.
func (l *Loader) GetConfig(ctx context.Context, forceRefresh bool) (*scoring.Config, Source) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if !forceRefresh && l.cache != nil && now.Before(l.cache.expiresAt) {
		return l.cache.cfg.Clone(), l.cache.source
	}

	cfg, source, storeErr := l.resolve(ctx)
	expiresAt := now.Add(l.ttl)
	if storeErr != nil {
		if l.cache != nil && l.cache.source == SourcePersisted {
			cfg, source = l.cache.cfg, SourcePersisted
			l.log.Warn("Serving last persisted scoring config", map[string]interface{}{
				"version": cfg.Metadata.Version,
			})
		}
		if ctx.Err() != nil {
			metrics.ConfigLoads.WithLabelValues(string(source)).Inc()
			return cfg.Clone(), source
		}
		expiresAt = now.Add(l.retryTTL)
	}

	l.cache = &cacheEntry{cfg: cfg, source: source, expiresAt: expiresAt}
	metrics.ConfigLoads.WithLabelValues(string(source)).Inc()

	l.log.Debug("Scoring config resolved", map[string]interface{}{
		"source":  string(source),
		"version": cfg.Metadata.Version,
	})
	return cfg.Clone(), source
}

// Invalidate drops the cached config so the next GetConfig re-resolves.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.cache = nil
	l.mu.Unlock()
}

// resolve walks the tiers. The returned error is non-nil only when the store
// could not be read; an absent or invalid row is not an error.
func (l *Loader) resolve(ctx context.Context) (*scoring.Config, Source, error) {
	cfg, err := l.fromStore(ctx)
	if cfg != nil {
		return cfg, SourcePersisted, nil
	}
	if env := l.fromEnvironment(); env != nil {
		return env, SourceEnvironment, err
	}
	return scoring.DefaultConfig(), SourceDefault, err
}

func (l *Loader) fromStore(ctx context.Context) (*scoring.Config, error) {
	if l.store == nil {
		return nil, nil
	}
	rec, err := l.store.Load(ctx)
	if stderrors.Is(err, store.ErrNotFound) {
		metrics.ConfigSourceRejected.WithLabelValues(string(SourcePersisted), "absent").Inc()
		return nil, nil
	}
	if err != nil {
		metrics.ConfigSourceRejected.WithLabelValues(string(SourcePersisted), "unreachable").Inc()
		l.log.Warn("Scoring config store unavailable, falling back", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}

	cfg, errs := scoring.ParseConfig(rec.Config)
	if len(errs) > 0 {
		l.rejected(SourcePersisted, errs)
		return nil, nil
	}
	if rec.Threshold != nil {
		cfg.AutoApproval.Threshold = *rec.Threshold
		if errs := scoring.Validate(cfg); len(errs) > 0 {
			l.rejected(SourcePersisted, errs)
			return nil, nil
		}
	}
	if cfg.Metadata.LastUpdated.IsZero() {
		cfg.Metadata.LastUpdated = rec.UpdatedAt
	}
	return cfg, nil
}

func (l *Loader) fromEnvironment() *scoring.Config {
	raw, ok := l.lookupEnv(l.envVar)
	if !ok || raw == "" {
		return nil
	}
	cfg, errs := scoring.ParseConfig([]byte(raw))
	if len(errs) > 0 {
		l.rejected(SourceEnvironment, errs)
		return nil
	}
	return cfg
}

func (l *Loader) rejected(source Source, errs []validation.ValidationError) {
	metrics.ConfigSourceRejected.WithLabelValues(string(source), "invalid").Inc()
	l.log.Warn("Scoring config failed validation, falling back", map[string]interface{}{
		"source": string(source),
		"errors": validation.Summarize(errs),
	})
}

// UpdateConfig merges patch into the active config and persists the result.
// Validation failures return a VALIDATION_ERROR and persist nothing. An
// unreadable store returns an UPSTREAM_DATA_ERROR and persists nothing.
func (l *Loader) UpdateConfig(ctx context.Context, patch *scoring.Patch, updatedBy, reason string) (*scoring.Config, error) {
	current, err := l.resolveForUpdate(ctx)
	if err != nil {
		return nil, err
	}
	return l.commit(ctx, current, scoring.Apply(current, patch), updatedBy, reason)
}

// ResetToDefault replaces the active config with the hardcoded table. The version
// still moves forward from the current one.
func (l *Loader) ResetToDefault(ctx context.Context, updatedBy string) (*scoring.Config, error) {
	current, err := l.resolveForUpdate(ctx)
	if err != nil {
		return nil, err
	}
	return l.commit(ctx, current, scoring.DefaultConfig(), updatedBy, "reset to default")
}

// resolveForUpdate reads the base for a write straight from the tiers,
// bypassing the cache. A store read error aborts the write.
func (l *Loader) resolveForUpdate(ctx context.Context) (*scoring.Config, error) {
	cfg, _, err := l.resolve(ctx)
	if err != nil {
		metrics.ConfigUpdates.WithLabelValues("store_unavailable").Inc()
		l.log.Error("Refusing config update, current config could not be read", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, errors.NewUpstreamDataError("scoring_config", err)
	}
	return cfg, nil
}

func (l *Loader) commit(ctx context.Context, current, next *scoring.Config, updatedBy, reason string) (*scoring.Config, error) {
	next.Metadata.Version = scoring.BumpPatch(current.Metadata.Version)
	next.Metadata.LastUpdated = l.now().UTC()
	next.Metadata.UpdatedBy = updatedBy

	log := l.log.With(map[string]interface{}{
		"updated_by": updatedBy,
		"version":    next.Metadata.Version,
	})

	if errs := scoring.Validate(next); len(errs) > 0 {
		metrics.ConfigUpdates.WithLabelValues("invalid").Inc()
		return nil, errors.NewValidationError("scoring config is invalid", validation.Summarize(errs)).
			WithMetadata("errors", errs)
	}

	if l.store == nil {
		metrics.ConfigUpdates.WithLabelValues("persist_failed").Inc()
		return nil, errors.NewConfigPersistError(stderrors.New("no config store configured"))
	}
	if err := l.store.Save(ctx, next); err != nil {
		metrics.ConfigUpdates.WithLabelValues("persist_failed").Inc()
		log.Error("Failed to persist scoring config", map[string]interface{}{"error": err.Error()})
		return nil, errors.NewConfigPersistError(err)
	}

	if l.history != nil {
		entry := store.HistoryEntry{
			ConfigVersion: next.Metadata.Version,
			Config:        next,
			ChangedBy:     updatedBy,
			Reason:        reason,
			CreatedAt:     next.Metadata.LastUpdated,
		}
		if err := l.history.Append(ctx, entry); err != nil {
			log.Error("Config saved but history entry was not written", map[string]interface{}{
				"error":  err.Error(),
				"reason": reason,
			})
		}
	}

	l.Invalidate()
	metrics.ConfigUpdates.WithLabelValues("saved").Inc()
	log.Info("Scoring config updated", map[string]interface{}{"reason": reason})

	if l.notifier != nil {
		if err := l.notifier.ConfigChanged(ctx, next, updatedBy, reason); err != nil {
			log.Warn("Config change notification failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return next.Clone(), nil
}
