package scoreapplicant

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"teed-waitlist/internal/common/errors"
	"teed-waitlist/internal/common/logger"
	"teed-waitlist/internal/common/metrics"
	"teed-waitlist/internal/scoring"
	"teed-waitlist/internal/scoring/loader"
	"teed-waitlist/internal/waitlist"
)

const (
	TaskType = "waitlist-score-applicant"
)

type ConfigSource interface {
	GetConfig(ctx context.Context, forceRefresh bool) (*scoring.Config, loader.Source)
}

type Applications interface {
	SelectByID(ctx context.Context, id string) (*waitlist.Application, error)
	CountApproved(ctx context.Context) (int, error)
}

type Enrichment interface {
	Profile(ctx context.Context, userID string) (*waitlist.Profile, error)
	Equipment(ctx context.Context, userID string) (*waitlist.Equipment, error)
}

type Handler struct {
	config       *Config
	scoring      ConfigSource
	apps         Applications
	enrich       Enrichment
	logger       logger.Logger
	errorHandler *errors.ErrorHandler
}

func NewHandler(config *Config, cfgSource ConfigSource, apps Applications, enrich Enrichment, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		scoring:      cfgSource,
		apps:         apps,
		enrich:       enrich,
		logger:       l,
		errorHandler: errors.NewErrorHandler(l),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(ctx, client, job, errors.NewValidationError("invalid job variables", err.Error()))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	answers, err := h.resolveAnswers(ctx, input)
	if err != nil {
		return nil, err
	}
	answers = h.enrichAnswers(ctx, input, answers)

	cfg, source := h.scoring.GetConfig(ctx, false)
	breakdown := scoring.Evaluate(answers, cfg)
	metrics.ScoringOperations.WithLabelValues("worker").Inc()
	metrics.ScoreDistribution.Observe(breakdown.Total)

	autoApprove, err := h.autoApprove(ctx, cfg, breakdown.Total, input.EmailVerified)
	if err != nil {
		return nil, err
	}

	h.logger.Info("applicant scored", map[string]interface{}{
		"applicationId": input.ApplicationID,
		"score":         breakdown.Total,
		"autoApprove":   autoApprove,
		"configVersion": cfg.Metadata.Version,
	})

	return &Output{
		Score:         breakdown.Total,
		Breakdown:     breakdown,
		AutoApprove:   autoApprove,
		Threshold:     cfg.AutoApproval.Threshold,
		ConfigVersion: cfg.Metadata.Version,
		ConfigSource:  string(source),
	}, nil
}

func (h *Handler) resolveAnswers(ctx context.Context, input *Input) (scoring.Answers, error) {
	if input.Answers != nil {
		return *input.Answers, nil
	}
	if input.ApplicationID == "" {
		return scoring.Answers{}, errors.NewValidationError("answers or applicationId is required", "")
	}
	if h.apps == nil {
		return scoring.Answers{}, errors.NewUpstreamDataError("waitlist_applications", stderrors.New("application store not configured"))
	}

	app, err := h.apps.SelectByID(ctx, input.ApplicationID)
	if err != nil {
		if stderrors.Is(err, waitlist.ErrApplicationNotFound) {
			return scoring.Answers{}, errors.NewNotFoundError("application", input.ApplicationID)
		}
		return scoring.Answers{}, errors.NewUpstreamDataError("waitlist_applications", err)
	}
	if input.UserID == "" {
		input.UserID = app.UserID
	}
	if !input.EmailVerified {
		input.EmailVerified = app.EmailVerified
	}
	return app.Answers, nil
}

func (h *Handler) enrichAnswers(ctx context.Context, input *Input, answers scoring.Answers) scoring.Answers {
	if h.enrich == nil || input.UserID == "" {
		return answers
	}
	var profile *waitlist.Profile
	var equipment *waitlist.Equipment
	if input.IncludeProfile {
		p, err := h.enrich.Profile(ctx, input.UserID)
		if err != nil {
			h.logger.Warn("profile enrichment skipped", map[string]interface{}{"userId": input.UserID, "error": err.Error()})
		}
		profile = p
	}
	if input.IncludeEquipment {
		e, err := h.enrich.Equipment(ctx, input.UserID)
		if err != nil {
			h.logger.Warn("equipment enrichment skipped", map[string]interface{}{"userId": input.UserID, "error": err.Error()})
		}
		equipment = e
	}
	return waitlist.Enrich(answers, profile, equipment)
}

// autoApprove reports eligibility only; the approval itself is left to the
// process so the capacity counter is claimed in one place.
func (h *Handler) autoApprove(ctx context.Context, cfg *scoring.Config, score float64, emailVerified bool) (bool, error) {
	if score < cfg.AutoApproval.Threshold {
		return false, nil
	}
	if cfg.AutoApproval.RequireEmailVerification && !emailVerified {
		return false, nil
	}
	if h.apps == nil {
		return false, nil
	}
	approved, err := h.apps.CountApproved(ctx)
	if err != nil {
		return false, errors.NewUpstreamDataError("waitlist_capacity", err)
	}
	limit := cfg.AutoApproval.EffectiveCapacity(h.config.CapacityLimit)
	return cfg.AutoApproval.ShouldAutoApprove(score, approved, limit), nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		h.failJob(ctx, client, job, errors.NewInternalError(fmt.Errorf("encode output: %w", err)))
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := errors.Normalize(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, stdErr)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
