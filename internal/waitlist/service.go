package waitlist

import (
	"context"
	"fmt"
	"strings"

	"teed-waitlist/internal/common/errors"
	"teed-waitlist/internal/common/logger"
	"teed-waitlist/internal/common/metrics"
	"teed-waitlist/internal/common/validation"
	"teed-waitlist/internal/scoring"
	"teed-waitlist/internal/scoring/loader"
)

const applySchema = `{
	"type": "object",
	"required": ["email", "answers"],
	"properties": {
		"email":         {"type": "string", "format": "email", "maxLength": 254},
		"userId":        {"type": "string"},
		"inviteCode":    {"type": "string", "maxLength": 64},
		"emailVerified": {"type": "boolean"},
		"answers": {
			"type": "object",
			"required": ["role"],
			"properties": {
				"role":          {"type": "string", "minLength": 1},
				"shareChannels": {"type": "array", "items": {"type": "string"}, "maxItems": 20},
				"learnChannels": {"type": "array", "items": {"type": "string"}, "maxItems": 20},
				"uses":          {"type": "array", "items": {"type": "string"}, "maxItems": 20}
			}
		}
	}
}`

var applyValidator = validation.MustCompile(applySchema)

type ConfigSource interface {
	GetConfig(ctx context.Context, forceRefresh bool) (*scoring.Config, loader.Source)
}

type Applications interface {
	Insert(ctx context.Context, app *Application) error
	CountApproved(ctx context.Context) (int, error)
	ApproveWithCeiling(ctx context.Context, id string, ceiling int) (bool, error)
}

// Enrichment supplies the member signals that earn bonus points. It is
// satisfied by Enricher.
type Enrichment interface {
	Profile(ctx context.Context, userID string) (*Profile, error)
	Equipment(ctx context.Context, userID string) (*Equipment, error)
}

// Mailer is satisfied by aws.SESClient.
type Mailer interface {
	SendText(ctx context.Context, to, subject, body string) (string, error)
}

type ApplyRequest struct {
	Email         string          `json:"email"`
	UserID        string          `json:"userId,omitempty"`
	InviteCode    string          `json:"inviteCode,omitempty"`
	EmailVerified bool            `json:"emailVerified"`
	Answers       scoring.Answers `json:"answers"`
}

type ApplyResult struct {
	ApplicationID string            `json:"applicationId"`
	Status        string            `json:"status"`
	Score         float64           `json:"score"`
	Breakdown     scoring.Breakdown `json:"breakdown"`
	AutoApproved  bool              `json:"autoApproved"`
	ConfigVersion string            `json:"configVersion"`
}

// Service scores new applications and admits those that clear the threshold
// while capacity remains.
type Service struct {
	config   ConfigSource
	apps     Applications
	enrich   Enrichment
	mailer   Mailer
	capacity int
	logger   logger.Logger
}

func NewService(cfg ConfigSource, apps Applications, enrich Enrichment, mailer Mailer, capacityLimit int, log logger.Logger) *Service {
	return &Service{
		config:   cfg,
		apps:     apps,
		enrich:   enrich,
		mailer:   mailer,
		capacity: capacityLimit,
		logger:   log.WithFields(map[string]interface{}{"component": "waitlist"}),
	}
}

func (s *Service) Apply(ctx context.Context, req ApplyRequest) (*ApplyResult, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if res := applyValidator.ValidateValue(req); !res.Valid {
		return nil, errors.NewValidationError("invalid application", validation.Summarize(res.Errors)).
			WithMetadata("errors", res.Errors)
	}

	answers := s.bonusSignals(ctx, req)

	cfg, source := s.config.GetConfig(ctx, false)
	breakdown := scoring.Evaluate(answers, cfg)
	metrics.ScoringOperations.WithLabelValues("apply").Inc()
	metrics.ScoreDistribution.Observe(breakdown.Total)

	app := &Application{
		Email:         req.Email,
		UserID:        req.UserID,
		Answers:       answers,
		Score:         breakdown.Total,
		Status:        StatusPending,
		EmailVerified: req.EmailVerified,
	}
	if err := s.apps.Insert(ctx, app); err != nil {
		s.logger.Error("failed to store application", map[string]interface{}{"error": err.Error()})
		return nil, errors.NewUpstreamDataError("waitlist_applications", err)
	}

	result := &ApplyResult{
		ApplicationID: app.ID,
		Status:        StatusPending,
		Score:         breakdown.Total,
		Breakdown:     breakdown,
		ConfigVersion: cfg.Metadata.Version,
	}

	outcome := s.admit(ctx, cfg, app, req.EmailVerified)
	metrics.AutoApprovalDecisions.WithLabelValues(outcome).Inc()
	if outcome == "approved" {
		result.Status = StatusApproved
		result.AutoApproved = true
		s.sendApproval(ctx, app)
	}

	s.logger.Info("application scored", map[string]interface{}{
		"applicationId": app.ID,
		"score":         breakdown.Total,
		"outcome":       outcome,
		"configSource":  string(source),
		"configVersion": cfg.Metadata.Version,
	})
	return result, nil
}

// bonusSignals drops the bonus fields sent by the applicant. The invite flag
// comes from the invite code and the rest from the member's live profile.
func (s *Service) bonusSignals(ctx context.Context, req ApplyRequest) scoring.Answers {
	answers := req.Answers
	answers.HasInviteCode = nil
	answers.HasLocation = nil
	answers.ProfileCompletion = nil
	answers.Equipment = nil

	if strings.TrimSpace(req.InviteCode) != "" {
		hasInvite := true
		answers.HasInviteCode = &hasInvite
	}
	if req.UserID == "" || s.enrich == nil {
		return answers
	}

	profile, err := s.enrich.Profile(ctx, req.UserID)
	if err != nil {
		s.logger.Warn("profile enrichment failed, scoring without it", map[string]interface{}{
			"userId": req.UserID,
			"error":  err.Error(),
		})
		profile = nil
	}
	equipment, err := s.enrich.Equipment(ctx, req.UserID)
	if err != nil {
		s.logger.Warn("equipment enrichment failed, scoring without it", map[string]interface{}{
			"userId": req.UserID,
			"error":  err.Error(),
		})
		equipment = nil
	}
	return Enrich(answers, profile, equipment)
}

// admit returns the decision outcome label.
func (s *Service) admit(ctx context.Context, cfg *scoring.Config, app *Application, emailVerified bool) string {
	if app.Score < cfg.AutoApproval.Threshold {
		return "below_threshold"
	}
	if cfg.AutoApproval.RequireEmailVerification && !emailVerified {
		return "unverified"
	}

	ceiling := cfg.AutoApproval.EffectiveCapacity(s.capacity)
	approved, err := s.apps.CountApproved(ctx)
	if err != nil {
		s.logger.Warn("could not read approved count, leaving application pending", map[string]interface{}{
			"applicationId": app.ID,
			"error":         err.Error(),
		})
		return "error"
	}
	if !cfg.AutoApproval.ShouldAutoApprove(app.Score, approved, ceiling) {
		return "capacity_full"
	}

	ok, err := s.apps.ApproveWithCeiling(ctx, app.ID, ceiling)
	if err != nil {
		s.logger.Warn("approval failed, leaving application pending", map[string]interface{}{
			"applicationId": app.ID,
			"error":         err.Error(),
		})
		return "error"
	}
	if !ok {
		return "lost_race"
	}
	return "approved"
}

func (s *Service) sendApproval(ctx context.Context, app *Application) {
	if s.mailer == nil {
		return
	}
	body := fmt.Sprintf("Good news! Your Teed.club application has been approved.\n\nSign in with %s to start building your bag.", app.Email)
	if _, err := s.mailer.SendText(ctx, app.Email, "You're in: welcome to Teed.club", body); err != nil {
		s.logger.Warn("approval email failed", map[string]interface{}{
			"applicationId": app.ID,
			"error":         err.Error(),
		})
	}
}
