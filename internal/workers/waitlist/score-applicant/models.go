package scoreapplicant

import "teed-waitlist/internal/scoring"

// Input carries either the answers inline or the id of a stored application.
// Inline answers win when both are present.
type Input struct {
	ApplicationID    string           `json:"applicationId,omitempty"`
	UserID           string           `json:"userId,omitempty"`
	Answers          *scoring.Answers `json:"answers,omitempty"`
	EmailVerified    bool             `json:"emailVerified"`
	IncludeProfile   bool             `json:"includeProfile"`
	IncludeEquipment bool             `json:"includeEquipment"`
}

type Output struct {
	Score         float64           `json:"score"`
	Breakdown     scoring.Breakdown `json:"breakdown"`
	AutoApprove   bool              `json:"autoApprove"`
	Threshold     float64           `json:"threshold"`
	ConfigVersion string            `json:"configVersion"`
	ConfigSource  string            `json:"configSource"`
}
