// Package admin serves the operator-only scoring configuration endpoints.
package admin

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"teed-waitlist/internal/common/auth"
	"teed-waitlist/internal/common/errors"
	"teed-waitlist/internal/common/logger"
	"teed-waitlist/internal/common/metrics"
	"teed-waitlist/internal/common/observability"
	"teed-waitlist/internal/common/validation"
	"teed-waitlist/internal/scoring"
	"teed-waitlist/internal/scoring/loader"
	"teed-waitlist/internal/scoring/store"
	"teed-waitlist/internal/waitlist"
)

var errNoApplicantStore = stderrors.New("applicant store not configured")

const (
	DefaultSampleSize = 50
	MaxThreshold      = 10.0
	defaultHistory    = 20
	maxHistory        = 100
)

type ConfigManager interface {
	GetConfig(ctx context.Context, forceRefresh bool) (*scoring.Config, loader.Source)
	UpdateConfig(ctx context.Context, patch *scoring.Patch, updatedBy, reason string) (*scoring.Config, error)
	ResetToDefault(ctx context.Context, updatedBy string) (*scoring.Config, error)
}

type ApplicantStore interface {
	SelectPending(ctx context.Context, limit int) ([]waitlist.Application, error)
	CountApproved(ctx context.Context) (int, error)
}

type Enrichment interface {
	Profile(ctx context.Context, userID string) (*waitlist.Profile, error)
	Equipment(ctx context.Context, userID string) (*waitlist.Equipment, error)
}

type HistoryReader interface {
	List(ctx context.Context, limit int) ([]store.HistoryEntry, error)
}

type Options struct {
	CapacityLimit     int
	SimulateMaxSample int
	StatisticsSample  int
}

type Handler struct {
	config      ConfigManager
	apps        ApplicantStore
	enrich      Enrichment
	history     HistoryReader
	obs         *observability.Observability
	logger      logger.Logger
	capacity    int
	maxSample   int
	statsSample int
}

func NewHandler(cm ConfigManager, apps ApplicantStore, enrich Enrichment, history HistoryReader,
	obs *observability.Observability, log logger.Logger, opts Options) *Handler {
	h := &Handler{
		config:      cm,
		apps:        apps,
		enrich:      enrich,
		history:     history,
		obs:         obs,
		logger:      log.WithFields(map[string]interface{}{"component": "admin"}),
		capacity:    opts.CapacityLimit,
		maxSample:   opts.SimulateMaxSample,
		statsSample: opts.StatisticsSample,
	}
	if h.maxSample <= 0 {
		h.maxSample = 100
	}
	if h.statsSample <= 0 {
		h.statsSample = 500
	}
	if h.obs == nil {
		h.obs = observability.NewNoop()
	}
	return h
}

// RegisterRoutes mounts the endpoints on a group that already enforces operator
// auth.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/config", h.instrument("get", h.GetConfig))
	rg.PUT("/config", h.instrument("update", h.UpdateConfig))
	rg.POST("/test", h.instrument("test", h.TestScoring))
	rg.POST("/simulate", h.instrument("simulate", h.Simulate))
	rg.POST("/reset", h.instrument("reset", h.Reset))
	rg.GET("/history", h.instrument("history", h.History))
}

func (h *Handler) instrument(op string, fn gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set("operation", op)
		fn(c)
		status := c.Writer.Status()
		metrics.AdminRequests.WithLabelValues(op, strconv.Itoa(status)).Inc()
		h.obs.RecordAdminRequest(c.Request.Context(), op, status, time.Since(start))
	}
}

func (h *Handler) GetConfig(c *gin.Context) {
	ctx := c.Request.Context()
	cfg, source := h.config.GetConfig(ctx, false)

	resp := gin.H{"config": cfg, "source": source}
	if includeStats, _ := strconv.ParseBool(c.Query("includeStats")); includeStats {
		if stats, err := h.statistics(ctx, cfg); err != nil {
			h.logger.Warn("statistics unavailable", map[string]interface{}{
				"operator": operatorID(c),
				"error":    err.Error(),
			})
		} else {
			resp["statistics"] = stats
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) statistics(ctx context.Context, cfg *scoring.Config) (*Statistics, error) {
	if h.apps == nil {
		return nil, errors.NewUpstreamDataError("applicants", errNoApplicantStore)
	}
	pending, err := h.apps.SelectPending(ctx, h.statsSample)
	if err != nil {
		return nil, err
	}
	approved, err := h.apps.CountApproved(ctx)
	if err != nil {
		return nil, err
	}
	metrics.ScoringOperations.WithLabelValues("statistics").Add(float64(len(pending)))
	stats := ComputeStatistics(pending, cfg, approved, h.capacity)
	return &stats, nil
}

type UpdateRequest struct {
	Config    *scoring.Patch `json:"config"`
	Threshold *float64       `json:"threshold"`
	Reason    string         `json:"reason"`
}

func (h *Handler) UpdateConfig(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}
	if req.Config.IsEmpty() && req.Threshold == nil {
		h.fail(c, errors.NewValidationError("nothing to update", "provide config and/or threshold"))
		return
	}
	if req.Threshold != nil {
		if err := checkThreshold("threshold", *req.Threshold); err != nil {
			h.fail(c, err)
			return
		}
	}

	patch := req.Config
	if patch == nil {
		patch = &scoring.Patch{}
	}
	if req.Threshold != nil {
		if patch.AutoApproval == nil {
			patch.AutoApproval = &scoring.AutoApprovalPatch{}
		}
		patch.AutoApproval.Threshold = req.Threshold
	}

	operator := operatorID(c)
	cfg, err := h.config.UpdateConfig(c.Request.Context(), patch, operator, req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.logger.Info("scoring config updated", map[string]interface{}{
		"operator": operator,
		"version":  cfg.Metadata.Version,
		"reason":   req.Reason,
	})
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"config":    cfg,
		"threshold": cfg.AutoApproval.Threshold,
		"message":   "Scoring configuration updated to version " + cfg.Metadata.Version,
	})
}

type TestRequest struct {
	Answers          scoring.Answers `json:"answers"`
	TestConfig       *scoring.Patch  `json:"testConfig"`
	IncludeProfile   bool            `json:"includeProfile"`
	IncludeEquipment bool            `json:"includeEquipment"`
	UserID           string          `json:"userId"`
}

func (h *Handler) TestScoring(c *gin.Context) {
	var req TestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}
	ctx := c.Request.Context()

	cfg, source := h.config.GetConfig(ctx, false)
	usingTest := !req.TestConfig.IsEmpty()
	if usingTest {
		cfg = scoring.Apply(cfg, req.TestConfig)
		if errs := scoring.Validate(cfg); len(errs) > 0 {
			h.fail(c, invalidConfig("testConfig", errs))
			return
		}
	}

	resp := gin.H{}
	answers := req.Answers
	var profile *waitlist.Profile
	var equipment *waitlist.Equipment
	if req.UserID != "" && h.enrich != nil {
		if req.IncludeProfile {
			p, err := h.enrich.Profile(ctx, req.UserID)
			if err != nil {
				h.logger.Warn("profile enrichment skipped", map[string]interface{}{"userId": req.UserID, "error": err.Error()})
			} else {
				profile = p
				resp["profileData"] = p
			}
		}
		if req.IncludeEquipment {
			e, err := h.enrich.Equipment(ctx, req.UserID)
			if err != nil {
				h.logger.Warn("equipment enrichment skipped", map[string]interface{}{"userId": req.UserID, "error": err.Error()})
			} else {
				equipment = e
				resp["equipmentData"] = e
			}
		}
	}
	answers = waitlist.Enrich(answers, profile, equipment)

	breakdown := scoring.Evaluate(answers, cfg)
	metrics.ScoringOperations.WithLabelValues("test").Inc()

	resp["score"] = breakdown.Total
	resp["breakdown"] = breakdown
	resp["metadata"] = gin.H{
		"configVersion":   cfg.Metadata.Version,
		"configSource":    source,
		"usingTestConfig": usingTest,
		"threshold":       cfg.AutoApproval.Threshold,
		"meetsThreshold":  breakdown.Total >= cfg.AutoApproval.Threshold,
		"totalCap":        cfg.Weights.TotalCap,
	}
	c.JSON(http.StatusOK, resp)
}

type SimulateRequest struct {
	TestConfig    *scoring.Patch `json:"testConfig"`
	TestThreshold *float64       `json:"testThreshold"`
	SampleSize    int            `json:"sampleSize"`
}

func (h *Handler) Simulate(c *gin.Context) {
	var req SimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}
	if req.TestConfig.IsEmpty() && req.TestThreshold == nil {
		h.fail(c, errors.NewValidationError("testConfig is required", "provide testConfig and/or testThreshold"))
		return
	}
	if req.TestThreshold != nil {
		if err := checkThreshold("testThreshold", *req.TestThreshold); err != nil {
			h.fail(c, err)
			return
		}
	}
	ctx := c.Request.Context()

	current, _ := h.config.GetConfig(ctx, false)
	trial := scoring.Apply(current, req.TestConfig)
	if req.TestThreshold != nil {
		trial.AutoApproval.Threshold = *req.TestThreshold
	}
	if errs := scoring.Validate(trial); len(errs) > 0 {
		h.fail(c, invalidConfig("testConfig", errs))
		return
	}

	size := req.SampleSize
	if size <= 0 {
		size = DefaultSampleSize
	}
	if size > h.maxSample {
		size = h.maxSample
	}

	if h.apps == nil {
		h.fail(c, errors.NewUpstreamDataError("applicants", errNoApplicantStore))
		return
	}
	pending, err := h.apps.SelectPending(ctx, size)
	if err != nil {
		h.fail(c, errors.NewUpstreamDataError("applicants", err))
		return
	}

	sim := Simulate(pending, current, trial)
	metrics.ScoringOperations.WithLabelValues("simulate").Add(float64(2 * len(pending)))

	h.logger.Info("scoring simulation run", map[string]interface{}{
		"operator":   operatorID(c),
		"sampleSize": sim.SampleSize,
		"avgChange":  sim.Statistics.AverageChange,
	})
	c.JSON(http.StatusOK, gin.H{"simulation": sim})
}

func (h *Handler) Reset(c *gin.Context) {
	operator := operatorID(c)
	cfg, err := h.config.ResetToDefault(c.Request.Context(), operator)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.logger.Info("scoring config reset", map[string]interface{}{
		"operator": operator,
		"version":  cfg.Metadata.Version,
	})
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"config":  cfg,
		"message": "Scoring configuration reset to defaults",
	})
}

func (h *Handler) History(c *gin.Context) {
	if h.history == nil {
		h.fail(c, errors.NewNotFoundError("history", "scoring_config_history"))
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistory)))
	if err != nil || limit <= 0 {
		limit = defaultHistory
	}
	if limit > maxHistory {
		limit = maxHistory
	}

	entries, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, errors.NewUpstreamDataError("scoring_config_history", err))
		return
	}
	if entries == nil {
		entries = []store.HistoryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

func (h *Handler) fail(c *gin.Context, err error) {
	stdErr := errors.Normalize(err)
	fields := map[string]interface{}{
		"operation": c.GetString("operation"),
		"operator":  operatorID(c),
		"code":      string(stdErr.Code),
	}
	status := errors.HTTPStatus(stdErr.Code)
	if status >= http.StatusInternalServerError {
		fields["error"] = stdErr.Error()
		h.logger.Error("admin request failed", fields)
	} else {
		h.logger.Warn("admin request rejected", fields)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": errors.PublicBody(stdErr)})
}

func operatorID(c *gin.Context) string {
	if id, ok := auth.IdentityFromContext(c.Request.Context()); ok {
		return id.UserID
	}
	return ""
}

func checkThreshold(field string, v float64) error {
	if v < 0 || v > MaxThreshold {
		return errors.NewValidationError(field+" must be between 0 and 10", strconv.FormatFloat(v, 'f', -1, 64)).
			WithMetadata("field", field)
	}
	return nil
}

func invalidConfig(field string, errs []validation.ValidationError) error {
	return errors.NewValidationError(field+" is invalid", validation.Summarize(errs)).WithMetadata("errors", errs)
}
