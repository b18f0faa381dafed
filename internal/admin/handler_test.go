package admin

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teed-waitlist/internal/common/auth"
	"teed-waitlist/internal/common/errors"
	"teed-waitlist/internal/common/logger"
	"teed-waitlist/internal/scoring"
	"teed-waitlist/internal/scoring/loader"
	"teed-waitlist/internal/scoring/store"
	"teed-waitlist/internal/waitlist"
)

// ==========================
// Fakes
// ==========================

type fakeConfigManager struct {
	cfg       *scoring.Config
	source    loader.Source
	updateErr error

	patches   []*scoring.Patch
	updatedBy string
	reason    string
	resets    int
}

func newFakeConfigManager() *fakeConfigManager {
	return &fakeConfigManager{cfg: scoring.DefaultConfig(), source: loader.SourceDefault}
}

func (f *fakeConfigManager) GetConfig(ctx context.Context, forceRefresh bool) (*scoring.Config, loader.Source) {
	return f.cfg.Clone(), f.source
}

func (f *fakeConfigManager) UpdateConfig(ctx context.Context, patch *scoring.Patch, updatedBy, reason string) (*scoring.Config, error) {
	f.patches = append(f.patches, patch)
	f.updatedBy, f.reason = updatedBy, reason
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	next := scoring.Apply(f.cfg, patch)
	next.Metadata.Version = scoring.BumpPatch(f.cfg.Metadata.Version)
	next.Metadata.UpdatedBy = updatedBy
	f.cfg, f.source = next, loader.SourcePersisted
	return next.Clone(), nil
}

func (f *fakeConfigManager) ResetToDefault(ctx context.Context, updatedBy string) (*scoring.Config, error) {
	f.resets++
	f.updatedBy = updatedBy
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	next := scoring.DefaultConfig()
	next.Metadata.Version = scoring.BumpPatch(f.cfg.Metadata.Version)
	f.cfg = next
	return next.Clone(), nil
}

type fakeApplicants struct {
	pending  []waitlist.Application
	approved int
	err      error
	limits   []int
}

func (f *fakeApplicants) SelectPending(ctx context.Context, limit int) ([]waitlist.Application, error) {
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.pending) {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeApplicants) CountApproved(ctx context.Context) (int, error) {
	return f.approved, f.err
}

type fakeEnrichment struct {
	profile      *waitlist.Profile
	equipment    *waitlist.Equipment
	profileErr   error
	equipmentErr error
}

func (f *fakeEnrichment) Profile(ctx context.Context, userID string) (*waitlist.Profile, error) {
	return f.profile, f.profileErr
}

func (f *fakeEnrichment) Equipment(ctx context.Context, userID string) (*waitlist.Equipment, error) {
	return f.equipment, f.equipmentErr
}

type fakeHistory struct {
	entries []store.HistoryEntry
	err     error
	limit   int
}

func (f *fakeHistory) List(ctx context.Context, limit int) ([]store.HistoryEntry, error) {
	f.limit = limit
	return f.entries, f.err
}

// ==========================
// Test Helper Functions
// ==========================

type testEnv struct {
	router  *gin.Engine
	config  *fakeConfigManager
	apps    *fakeApplicants
	enrich  *fakeEnrichment
	history *fakeHistory
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		config:  newFakeConfigManager(),
		apps:    &fakeApplicants{pending: createApplications(fitterAnswers(), golferAnswers(), creatorAnswers())},
		enrich:  &fakeEnrichment{},
		history: &fakeHistory{},
	}
	h := NewHandler(env.config, env.apps, env.enrich, env.history, nil, logger.NewTestLogger(t), Options{
		CapacityLimit:     150,
		SimulateMaxSample: 2,
	})

	env.router = gin.New()
	rg := env.router.Group("/api/admin/scoring", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), &auth.Identity{UserID: "op-1", Roles: []string{auth.OperatorRole}})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	h.RegisterRoutes(rg)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/api/admin/scoring"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w, out
}

func errorCode(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	e, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "response has no error object: %v", body)
	return e["code"].(string)
}

// ==========================
// Get Tests
// ==========================

func TestHandler_GetConfig(t *testing.T) {
	env := setupTestEnv(t)

	w, body := env.do(t, http.MethodGet, "/config", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(loader.SourceDefault), body["source"])
	assert.NotContains(t, body, "statistics")
	cfg := body["config"].(map[string]interface{})
	assert.Equal(t, 4.0, cfg["autoApproval"].(map[string]interface{})["threshold"])
}

func TestHandler_GetConfig_WithStatistics(t *testing.T) {
	env := setupTestEnv(t)
	env.apps.approved = 20

	w, body := env.do(t, http.MethodGet, "/config?includeStats=true", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	stats := body["statistics"].(map[string]interface{})
	assert.Equal(t, 3.0, stats["pendingCount"])
	assert.Equal(t, 1.0, stats["wouldAutoApprove"])
	assert.Equal(t, 20.0, stats["approvedCount"])
	assert.Equal(t, 150.0, stats["capacityLimit"])
}

func TestHandler_GetConfig_StatisticsFailureOmitted(t *testing.T) {
	env := setupTestEnv(t)
	env.apps.err = stderrors.New("connection refused")

	w, body := env.do(t, http.MethodGet, "/config?includeStats=true", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, body, "statistics")
	assert.Contains(t, body, "config")
}

// ==========================
// Update Tests
// ==========================

func TestHandler_UpdateConfig(t *testing.T) {
	env := setupTestEnv(t)

	w, body := env.do(t, http.MethodPut, "/config", map[string]interface{}{
		"config": map[string]interface{}{
			"weights": map[string]interface{}{"role": map[string]interface{}{"golfer": 1}},
		},
		"threshold": 5,
		"reason":    "tighten intake",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 5.0, body["threshold"])
	assert.Contains(t, body["message"], "1.0.1")

	require.Len(t, env.config.patches, 1)
	p := env.config.patches[0]
	assert.Equal(t, 1.0, p.Weights.Role[scoring.RoleGolfer])
	assert.Equal(t, 5.0, *p.AutoApproval.Threshold)
	assert.Equal(t, "op-1", env.config.updatedBy)
	assert.Equal(t, "tighten intake", env.config.reason)
}

func TestHandler_UpdateConfig_ThresholdOnly(t *testing.T) {
	env := setupTestEnv(t)

	w, _ := env.do(t, http.MethodPut, "/config", map[string]interface{}{"threshold": 0})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.0, env.config.cfg.AutoApproval.Threshold)
}

func TestHandler_UpdateConfig_Rejected(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
	}{
		{"nothing to update", map[string]interface{}{"reason": "noop"}},
		{"empty config", map[string]interface{}{"config": map[string]interface{}{}}},
		{"threshold above ten", map[string]interface{}{"threshold": 10.5}},
		{"negative threshold", map[string]interface{}{"threshold": -1}},
		{"malformed body", "not an object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t)

			w, body := env.do(t, http.MethodPut, "/config", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, string(errors.ErrCodeValidation), errorCode(t, body))
			assert.Empty(t, env.config.patches)
		})
	}
}

func TestHandler_UpdateConfig_LoaderErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   errors.ErrorCode
	}{
		{"invalid merged config", errors.NewValidationError("scoring config is invalid", "threshold above cap"), http.StatusBadRequest, errors.ErrCodeValidation},
		{"store down", errors.NewConfigPersistError(stderrors.New("timeout")), http.StatusInternalServerError, errors.ErrCodeConfigPersist},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t)
			env.config.updateErr = tt.err

			w, body := env.do(t, http.MethodPut, "/config", map[string]interface{}{"threshold": 6})

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, string(tt.code), errorCode(t, body))
		})
	}
}

func TestHandler_UpdateConfig_HidesInternalDetails(t *testing.T) {
	env := setupTestEnv(t)
	env.config.updateErr = errors.NewConfigPersistError(stderrors.New("pq: password authentication failed"))

	w, _ := env.do(t, http.MethodPut, "/config", map[string]interface{}{"threshold": 6})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
}

// ==========================
// Test Scoring Tests
// ==========================

func TestHandler_TestScoring(t *testing.T) {
	env := setupTestEnv(t)

	w, body := env.do(t, http.MethodPost, "/test", map[string]interface{}{"answers": fitterAnswers()})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 8.0, body["score"])
	meta := body["metadata"].(map[string]interface{})
	assert.Equal(t, false, meta["usingTestConfig"])
	assert.Equal(t, true, meta["meetsThreshold"])
	assert.Equal(t, scoring.DefaultVersion, meta["configVersion"])
	breakdown := body["breakdown"].(map[string]interface{})
	assert.Equal(t, 3.0, breakdown["role"])
}

func TestHandler_TestScoring_WithTestConfig(t *testing.T) {
	env := setupTestEnv(t)

	w, body := env.do(t, http.MethodPost, "/test", map[string]interface{}{
		"answers": fitterAnswers(),
		"testConfig": map[string]interface{}{
			"weights":      map[string]interface{}{"role": map[string]interface{}{"fitter_builder": 0}},
			"autoApproval": map[string]interface{}{"threshold": 6},
		},
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5.0, body["score"])
	meta := body["metadata"].(map[string]interface{})
	assert.Equal(t, true, meta["usingTestConfig"])
	assert.Equal(t, false, meta["meetsThreshold"])
	assert.Equal(t, 3.0, env.config.cfg.Weights.Role[scoring.RoleFitterBuilder], "live config untouched")
}

func TestHandler_TestScoring_InvalidTestConfig(t *testing.T) {
	env := setupTestEnv(t)

	w, body := env.do(t, http.MethodPost, "/test", map[string]interface{}{
		"answers":    fitterAnswers(),
		"testConfig": map[string]interface{}{"weights": map[string]interface{}{"totalCap": 2}},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(errors.ErrCodeValidation), errorCode(t, body))
}

func TestHandler_TestScoring_Enrichment(t *testing.T) {
	env := setupTestEnv(t)
	env.enrich.profile = &waitlist.Profile{UserID: "user-9", CompletionPercent: 100, HasLocation: true}
	env.enrich.equipment = &waitlist.Equipment{UserID: "user-9", ItemCount: 3, HasPhoto: true}

	w, body := env.do(t, http.MethodPost, "/test", map[string]interface{}{
		"answers":          golferAnswers(),
		"userId":           "user-9",
		"includeProfile":   true,
		"includeEquipment": true,
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, body["score"], "bonuses capped at 2")
	assert.Contains(t, body, "profileData")
	assert.Contains(t, body, "equipmentData")
}

func TestHandler_TestScoring_EnrichmentFailureOmitted(t *testing.T) {
	env := setupTestEnv(t)
	env.enrich.profileErr = waitlist.ErrProfileNotFound
	env.enrich.equipmentErr = stderrors.New("redis down")

	w, body := env.do(t, http.MethodPost, "/test", map[string]interface{}{
		"answers":          fitterAnswers(),
		"userId":           "ghost",
		"includeProfile":   true,
		"includeEquipment": true,
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 8.0, body["score"])
	assert.NotContains(t, body, "profileData")
	assert.NotContains(t, body, "equipmentData")
}

// ==========================
// Simulate Tests
// ==========================

func TestHandler_Simulate(t *testing.T) {
	env := setupTestEnv(t)
	env.apps.pending = env.apps.pending[:2]

	w, body := env.do(t, http.MethodPost, "/simulate", map[string]interface{}{
		"testConfig": map[string]interface{}{
			"weights": map[string]interface{}{"role": map[string]interface{}{"fitter_builder": 1}},
		},
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sim := body["simulation"].(map[string]interface{})
	assert.Equal(t, 2.0, sim["sampleSize"])
	stats := sim["statistics"].(map[string]interface{})
	assert.Equal(t, 1.0, stats["decreased"])
	assert.Len(t, sim["changes"], 1)
}

func TestHandler_Simulate_ClampsSampleSize(t *testing.T) {
	env := setupTestEnv(t)

	w, _ := env.do(t, http.MethodPost, "/simulate", map[string]interface{}{
		"testThreshold": 3,
		"sampleSize":    500,
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{2}, env.apps.limits)
}

func TestHandler_Simulate_Rejected(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
	}{
		{"missing testConfig", map[string]interface{}{"sampleSize": 10}},
		{"threshold out of range", map[string]interface{}{"testThreshold": 11}},
		{"threshold above totalCap", map[string]interface{}{
			"testConfig":    map[string]interface{}{"weights": map[string]interface{}{"totalCap": 5}},
			"testThreshold": 6,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t)

			w, body := env.do(t, http.MethodPost, "/simulate", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, string(errors.ErrCodeValidation), errorCode(t, body))
			assert.Empty(t, env.apps.limits)
		})
	}
}

func TestHandler_Simulate_UpstreamFailure(t *testing.T) {
	env := setupTestEnv(t)
	env.apps.err = stderrors.New("connection reset")

	w, body := env.do(t, http.MethodPost, "/simulate", map[string]interface{}{"testThreshold": 3})

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, string(errors.ErrCodeUpstreamData), errorCode(t, body))
}

// ==========================
// Reset and History Tests
// ==========================

func TestHandler_Reset(t *testing.T) {
	env := setupTestEnv(t)
	env.config.cfg.AutoApproval.Threshold = 7
	env.config.cfg.Metadata.Version = "1.0.4"

	w, body := env.do(t, http.MethodPost, "/reset", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 1, env.config.resets)
	assert.Equal(t, "op-1", env.config.updatedBy)
	assert.Equal(t, 4.0, env.config.cfg.AutoApproval.Threshold)
	assert.Equal(t, "1.0.5", env.config.cfg.Metadata.Version)
}

func TestHandler_Reset_PersistFailure(t *testing.T) {
	env := setupTestEnv(t)
	env.config.updateErr = errors.NewConfigPersistError(stderrors.New("read-only"))

	w, body := env.do(t, http.MethodPost, "/reset", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, string(errors.ErrCodeConfigPersist), errorCode(t, body))
}

func TestHandler_History(t *testing.T) {
	env := setupTestEnv(t)
	env.history.entries = []store.HistoryEntry{
		{ID: "h-2", ConfigVersion: "1.0.2", ChangedBy: "op-1", Reason: "second", CreatedAt: time.Now()},
		{ID: "h-1", ConfigVersion: "1.0.1", ChangedBy: "op-1", Reason: "first", CreatedAt: time.Now()},
	}

	w, body := env.do(t, http.MethodGet, "/history?limit=500", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["history"], 2)
	assert.Equal(t, maxHistory, env.history.limit)
}

func TestHandler_History_DefaultsAndEmpty(t *testing.T) {
	env := setupTestEnv(t)

	w, body := env.do(t, http.MethodGet, "/history?limit=abc", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultHistory, env.history.limit)
	assert.NotNil(t, body["history"])
	assert.Empty(t, body["history"])
}
