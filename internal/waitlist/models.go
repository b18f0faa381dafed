// Package waitlist stores applications, enriches answers with live profile data
// and admits applicants.
package waitlist

import (
	"time"

	"teed-waitlist/internal/scoring"
)

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

type Application struct {
	ID            string          `json:"id"`
	Email         string          `json:"email"`
	UserID        string          `json:"userId,omitempty"`
	Answers       scoring.Answers `json:"answers"`
	Score         float64         `json:"score"`
	Status        string          `json:"status"`
	EmailVerified bool            `json:"emailVerified"`
	CreatedAt     time.Time       `json:"createdAt"`
	ApprovedAt    *time.Time      `json:"approvedAt,omitempty"`
}

// Profile is the enrichment read from a member's profile row.
type Profile struct {
	UserID            string  `json:"userId"`
	CompletionPercent float64 `json:"completionPercent"`
	HasLocation       bool    `json:"hasLocation"`
}

// Equipment summarizes a member's bag contents.
type Equipment struct {
	UserID    string `json:"userId"`
	ItemCount int    `json:"itemCount"`
	HasPhoto  bool   `json:"hasPhoto"`
}

// Enrich overlays live profile and equipment signals on answers. Nil inputs
// leave the corresponding fields untouched.
func Enrich(answers scoring.Answers, p *Profile, e *Equipment) scoring.Answers {
	if p != nil {
		completion := p.CompletionPercent
		answers.ProfileCompletion = &completion
		hasLocation := p.HasLocation
		answers.HasLocation = &hasLocation
	}
	if e != nil {
		answers.Equipment = &scoring.EquipmentEngagement{
			FirstItemAdded: e.ItemCount > 0,
			ItemCount:      e.ItemCount,
			HasPhoto:       e.HasPhoto,
		}
	}
	return answers
}
