package loader

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teed-waitlist/internal/common/errors"
	"teed-waitlist/internal/common/logger"
	"teed-waitlist/internal/scoring"
	"teed-waitlist/internal/scoring/store"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeStore struct {
	mu      sync.Mutex
	record  *store.Record
	loadErr error
	saveErr error
	loads   int
	saved   []*scoring.Config
}

func (f *fakeStore) Load(ctx context.Context) (*store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.record == nil {
		return nil, store.ErrNotFound
	}
	cp := *f.record
	return &cp, nil
}

func (f *fakeStore) Save(ctx context.Context, cfg *scoring.Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	threshold := cfg.AutoApproval.Threshold
	f.record = &store.Record{Config: raw, Threshold: &threshold, UpdatedAt: cfg.Metadata.LastUpdated}
	f.saved = append(f.saved, cfg.Clone())
	return nil
}

type fakeHistory struct {
	entries []store.HistoryEntry
	err     error
}

func (f *fakeHistory) Append(ctx context.Context, e store.HistoryEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

type fakeNotifier struct {
	calls []string
	err   error
}

func (f *fakeNotifier) ConfigChanged(ctx context.Context, cfg *scoring.Config, updatedBy, reason string) error {
	f.calls = append(f.calls, cfg.Metadata.Version)
	return f.err
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func envOf(values map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := values[k]
		return v, ok
	}
}

func recordOf(t *testing.T, cfg interface{}) *store.Record {
	t.Helper()
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	return &store.Record{Config: raw, UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func customConfig(threshold float64) *scoring.Config {
	cfg := scoring.DefaultConfig()
	cfg.AutoApproval.Threshold = threshold
	cfg.Metadata.Version = "1.4.2"
	return cfg
}

func newTestLoader(t *testing.T, cs ConfigStore, hs HistoryStore, env map[string]string) (*Loader, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	l := New(cs, hs, logger.NewTestLogger(t), Options{
		LookupEnv: envOf(env),
		Now:       clock.Now,
	})
	return l, clock
}

func envJSON(t *testing.T, cfg *scoring.Config) string {
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	return string(raw)
}

// ==========================
// Source Chain Tests
// ==========================

func TestGetConfig_SourceChain(t *testing.T) {
	tests := []struct {
		name              string
		store             *fakeStore
		env               map[string]string
		expectedSource    Source
		expectedThreshold float64
	}{
		{
			name:              "persisted store wins",
			store:             &fakeStore{record: recordOf(t, customConfig(6))},
			env:               map[string]string{DefaultEnvVar: envJSON(t, customConfig(7))},
			expectedSource:    SourcePersisted,
			expectedThreshold: 6,
		},
		{
			name:              "store row missing uses environment",
			store:             &fakeStore{},
			env:               map[string]string{DefaultEnvVar: envJSON(t, customConfig(7))},
			expectedSource:    SourceEnvironment,
			expectedThreshold: 7,
		},
		{
			name:              "store unreachable uses environment",
			store:             &fakeStore{loadErr: stderrors.New("dial tcp: connection refused")},
			env:               map[string]string{DefaultEnvVar: envJSON(t, customConfig(7))},
			expectedSource:    SourceEnvironment,
			expectedThreshold: 7,
		},
		{
			name:              "invalid stored config uses environment",
			store:             &fakeStore{record: recordOf(t, map[string]interface{}{"weights": map[string]interface{}{}})},
			env:               map[string]string{DefaultEnvVar: envJSON(t, customConfig(7))},
			expectedSource:    SourceEnvironment,
			expectedThreshold: 7,
		},
		{
			name:              "invalid environment uses default",
			store:             &fakeStore{},
			env:               map[string]string{DefaultEnvVar: `{"weights":`},
			expectedSource:    SourceDefault,
			expectedThreshold: 4,
		},
		{
			name:              "empty environment uses default",
			store:             &fakeStore{loadErr: stderrors.New("timeout")},
			env:               map[string]string{DefaultEnvVar: ""},
			expectedSource:    SourceDefault,
			expectedThreshold: 4,
		},
		{
			name:              "nothing configured uses default",
			store:             &fakeStore{},
			expectedSource:    SourceDefault,
			expectedThreshold: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLoader(t, tt.store, nil, tt.env)

			cfg, source := l.GetConfig(context.Background(), false)
			require.NotNil(t, cfg)
			assert.Equal(t, tt.expectedSource, source)
			assert.Equal(t, tt.expectedThreshold, cfg.AutoApproval.Threshold)
		})
	}
}

func TestGetConfig_ThresholdColumnOverridesDocument(t *testing.T) {
	rec := recordOf(t, customConfig(6))
	threshold := 8.5
	rec.Threshold = &threshold

	l, _ := newTestLoader(t, &fakeStore{record: rec}, nil, nil)
	cfg, source := l.GetConfig(context.Background(), false)

	assert.Equal(t, SourcePersisted, source)
	assert.Equal(t, 8.5, cfg.AutoApproval.Threshold)
}

func TestGetConfig_ThresholdColumnAboveCapRejectsRow(t *testing.T) {
	rec := recordOf(t, customConfig(6))
	threshold := 11.0
	rec.Threshold = &threshold

	l, _ := newTestLoader(t, &fakeStore{record: rec}, nil, nil)
	_, source := l.GetConfig(context.Background(), false)

	assert.Equal(t, SourceDefault, source)
}

func TestGetConfig_NilStore(t *testing.T) {
	l, _ := newTestLoader(t, nil, nil, nil)

	cfg, source := l.GetConfig(context.Background(), false)
	assert.Equal(t, SourceDefault, source)
	assert.Equal(t, scoring.DefaultVersion, cfg.Metadata.Version)
}

// ==========================
// Cache Tests
// ==========================

func TestGetConfig_CachesWithinWindow(t *testing.T) {
	fs := &fakeStore{record: recordOf(t, customConfig(6))}
	l, clock := newTestLoader(t, fs, nil, nil)
	ctx := context.Background()

	l.GetConfig(ctx, false)
	clock.Advance(4*time.Minute + 59*time.Second)
	l.GetConfig(ctx, false)
	assert.Equal(t, 1, fs.loads)

	clock.Advance(time.Second)
	l.GetConfig(ctx, false)
	assert.Equal(t, 2, fs.loads, "expired after five minutes")

	l.GetConfig(ctx, true)
	assert.Equal(t, 3, fs.loads, "forceRefresh bypasses the cache")
}

func TestGetConfig_ReturnsPrivateCopies(t *testing.T) {
	l, _ := newTestLoader(t, &fakeStore{}, nil, nil)
	ctx := context.Background()

	first, _ := l.GetConfig(ctx, false)
	first.Weights.Role[scoring.RoleGolfer] = 99

	second, _ := l.GetConfig(ctx, false)
	assert.Equal(t, 0.0, second.Weights.Role[scoring.RoleGolfer])
}

func TestInvalidate(t *testing.T) {
	fs := &fakeStore{}
	l, _ := newTestLoader(t, fs, nil, nil)
	ctx := context.Background()

	l.GetConfig(ctx, false)
	l.Invalidate()
	l.GetConfig(ctx, false)
	assert.Equal(t, 2, fs.loads)
}

func TestGetConfig_StoreErrorKeepsLastPersisted(t *testing.T) {
	fs := &fakeStore{record: recordOf(t, customConfig(7))}
	l, clock := newTestLoader(t, fs, nil, nil)
	ctx := context.Background()

	l.GetConfig(ctx, false)
	clock.Advance(DefaultCacheTTL)
	fs.loadErr = context.DeadlineExceeded

	cfg, source := l.GetConfig(ctx, false)
	assert.Equal(t, SourcePersisted, source)
	assert.Equal(t, 7.0, cfg.AutoApproval.Threshold)
	assert.Equal(t, "1.4.2", cfg.Metadata.Version)
}

func TestGetConfig_StoreErrorFallbackIsShortLived(t *testing.T) {
	fs := &fakeStore{loadErr: stderrors.New("dial tcp: connection refused")}
	l, clock := newTestLoader(t, fs, nil, nil)
	ctx := context.Background()

	_, source := l.GetConfig(ctx, false)
	assert.Equal(t, SourceDefault, source)

	fs.mu.Lock()
	fs.loadErr = nil
	fs.record = recordOf(t, customConfig(7))
	fs.mu.Unlock()

	_, source = l.GetConfig(ctx, false)
	assert.Equal(t, SourceDefault, source, "fallback held for the retry window")
	assert.Equal(t, 1, fs.loads)

	clock.Advance(DefaultRetryTTL)
	cfg, source := l.GetConfig(ctx, false)
	assert.Equal(t, SourcePersisted, source)
	assert.Equal(t, 7.0, cfg.AutoApproval.Threshold)
}

// ctxStore fails reads for callers whose context is already done.
type ctxStore struct {
	fakeStore
}

func (c *ctxStore) Load(ctx context.Context) (*store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.fakeStore.Load(ctx)
}

func TestGetConfig_CancelledCallerDoesNotPoisonCache(t *testing.T) {
	cs := &ctxStore{fakeStore: fakeStore{record: recordOf(t, customConfig(7))}}
	l, _ := newTestLoader(t, cs, nil, nil)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	_, source := l.GetConfig(cancelled, false)
	assert.Equal(t, SourceDefault, source)

	cfg, source := l.GetConfig(context.Background(), false)
	assert.Equal(t, SourcePersisted, source)
	assert.Equal(t, 7.0, cfg.AutoApproval.Threshold)
}

// ==========================
// Update Tests
// ==========================

func TestUpdateConfig_RoundTrip(t *testing.T) {
	fs := &fakeStore{}
	hs := &fakeHistory{}
	notifier := &fakeNotifier{}
	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	l := New(fs, hs, logger.NewTestLogger(t), Options{
		LookupEnv: envOf(nil),
		Now:       clock.Now,
		Notifier:  notifier,
	})
	ctx := context.Background()

	before, _ := l.GetConfig(ctx, false)
	clock.Advance(time.Minute)

	threshold := 5.5
	patch := &scoring.Patch{
		Weights:      &scoring.WeightsPatch{Role: scoring.PointTable{scoring.RoleCreator: 2.5}},
		AutoApproval: &scoring.AutoApprovalPatch{Threshold: &threshold},
	}
	updated, err := l.UpdateConfig(ctx, patch, "op-7", "reward creators")
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", updated.Metadata.Version)

	after, source := l.GetConfig(ctx, true)
	assert.Equal(t, SourcePersisted, source)

	expected := scoring.Apply(scoring.DefaultConfig(), patch)
	assert.Equal(t, expected.Weights, after.Weights)
	assert.Equal(t, expected.AutoApproval, after.AutoApproval)
	assert.Equal(t, "1.0.1", after.Metadata.Version)
	assert.Equal(t, "op-7", after.Metadata.UpdatedBy)
	assert.True(t, after.Metadata.LastUpdated.After(before.Metadata.LastUpdated))

	require.Len(t, hs.entries, 1)
	assert.Equal(t, "1.0.1", hs.entries[0].ConfigVersion)
	assert.Equal(t, "op-7", hs.entries[0].ChangedBy)
	assert.Equal(t, "reward creators", hs.entries[0].Reason)
	assert.Equal(t, []string{"1.0.1"}, notifier.calls)
}

func TestUpdateConfig_InvalidatesCache(t *testing.T) {
	fs := &fakeStore{}
	l, _ := newTestLoader(t, fs, &fakeHistory{}, nil)
	ctx := context.Background()

	l.GetConfig(ctx, false)
	threshold := 7.0
	_, err := l.UpdateConfig(ctx, &scoring.Patch{AutoApproval: &scoring.AutoApprovalPatch{Threshold: &threshold}}, "op", "")
	require.NoError(t, err)

	cfg, source := l.GetConfig(ctx, false)
	assert.Equal(t, SourcePersisted, source)
	assert.Equal(t, 7.0, cfg.AutoApproval.Threshold)
}

func TestUpdateConfig_ValidationFailurePersistsNothing(t *testing.T) {
	fs := &fakeStore{}
	hs := &fakeHistory{}
	l, _ := newTestLoader(t, fs, hs, nil)

	threshold := 12.0
	_, err := l.UpdateConfig(context.Background(),
		&scoring.Patch{AutoApproval: &scoring.AutoApprovalPatch{Threshold: &threshold}}, "op", "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))
	assert.Empty(t, fs.saved)
	assert.Empty(t, hs.entries)
}

func TestUpdateConfig_PersistFailure(t *testing.T) {
	fs := &fakeStore{saveErr: stderrors.New("disk full")}
	hs := &fakeHistory{}
	l, _ := newTestLoader(t, fs, hs, nil)

	_, err := l.UpdateConfig(context.Background(), &scoring.Patch{}, "op", "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConfigPersist))
	assert.Empty(t, hs.entries)
}

func TestUpdateConfig_HistoryFailureIsNotFatal(t *testing.T) {
	fs := &fakeStore{}
	l, _ := newTestLoader(t, fs, &fakeHistory{err: stderrors.New("history table locked")}, nil)

	cfg, err := l.UpdateConfig(context.Background(), &scoring.Patch{}, "op", "noop")

	require.NoError(t, err)
	assert.Equal(t, "1.0.1", cfg.Metadata.Version)
	assert.Len(t, fs.saved, 1)
}

func TestUpdateConfig_NotifierFailureIsNotFatal(t *testing.T) {
	l := New(&fakeStore{}, &fakeHistory{}, logger.NewNoOpLogger(), Options{
		LookupEnv: envOf(nil),
		Notifier:  &fakeNotifier{err: stderrors.New("sns throttled")},
	})

	_, err := l.UpdateConfig(context.Background(), &scoring.Patch{}, "op", "")
	assert.NoError(t, err)
}

func TestUpdateConfig_VersionBumpsFromCurrent(t *testing.T) {
	fs := &fakeStore{record: recordOf(t, customConfig(6))}
	l, _ := newTestLoader(t, fs, &fakeHistory{}, nil)
	ctx := context.Background()

	cfg, err := l.UpdateConfig(ctx, &scoring.Patch{}, "op", "")
	require.NoError(t, err)
	assert.Equal(t, "1.4.3", cfg.Metadata.Version)

	cfg, err = l.UpdateConfig(ctx, &scoring.Patch{}, "op", "")
	require.NoError(t, err)
	assert.Equal(t, "1.4.4", cfg.Metadata.Version)
}

func TestResetToDefault(t *testing.T) {
	custom := customConfig(6)
	custom.Weights.Role["coach"] = 2
	fs := &fakeStore{record: recordOf(t, custom)}
	hs := &fakeHistory{}
	l, _ := newTestLoader(t, fs, hs, nil)
	ctx := context.Background()

	cfg, err := l.ResetToDefault(ctx, "op-1")
	require.NoError(t, err)

	def := scoring.DefaultConfig()
	assert.Equal(t, def.Weights, cfg.Weights, "custom keys are dropped")
	assert.Equal(t, def.AutoApproval, cfg.AutoApproval)
	assert.Equal(t, "1.4.3", cfg.Metadata.Version)
	assert.Equal(t, "op-1", cfg.Metadata.UpdatedBy)
	require.Len(t, hs.entries, 1)
	assert.Equal(t, "reset to default", hs.entries[0].Reason)
}

func TestUpdateConfig_NoStore(t *testing.T) {
	l, _ := newTestLoader(t, nil, nil, nil)

	_, err := l.UpdateConfig(context.Background(), &scoring.Patch{}, "op", "")
	assert.True(t, errors.Is(err, errors.ErrCodeConfigPersist))
}

func TestUpdateConfig_StoreUnreadablePersistsNothing(t *testing.T) {
	custom := customConfig(6)
	custom.Weights.Role[scoring.RoleGolfer] = 5
	fs := &fakeStore{record: recordOf(t, custom)}
	hs := &fakeHistory{}
	l, _ := newTestLoader(t, fs, hs, map[string]string{DefaultEnvVar: envJSON(t, customConfig(7))})
	ctx := context.Background()

	l.GetConfig(ctx, false)
	fs.loadErr = context.DeadlineExceeded

	threshold := 5.0
	_, err := l.UpdateConfig(ctx, &scoring.Patch{AutoApproval: &scoring.AutoApprovalPatch{Threshold: &threshold}}, "op", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeUpstreamData))

	_, err = l.ResetToDefault(ctx, "op")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeUpstreamData))

	assert.Empty(t, fs.saved)
	assert.Empty(t, hs.entries)

	fs.loadErr = nil
	cfg, source := l.GetConfig(ctx, true)
	assert.Equal(t, SourcePersisted, source)
	assert.Equal(t, 5.0, cfg.Weights.Role[scoring.RoleGolfer])
	assert.Equal(t, "1.4.2", cfg.Metadata.Version)
}
