// Package scoring holds the waitlist weight table, the pure scoring function and
// the auto-approval decision.
package scoring

import "time"

// Closed answer enumerations. Values outside these sets are accepted by Score and
// contribute nothing.
const (
	RoleGolfer        = "golfer"
	RoleFitterBuilder = "fitter_builder"
	RoleCreator       = "creator"
	RoleLeagueCaptain = "league_captain"
	RoleRetailerOther = "retailer_other"

	FrequencyNever      = "never"
	FrequencyRarely     = "rarely"
	FrequencyFewPerYear = "few_per_year"
	FrequencyMonthly    = "monthly"
	FrequencyWeeklyPlus = "weekly_plus"

	ChannelReddit      = "reddit"
	ChannelGolfWRX     = "golfwrx"
	ChannelSocialMedia = "socialMedia"
	ChannelYouTube     = "youtube"
	ChannelPodcasts    = "podcasts"
	ChannelFitters     = "fitters"
	ChannelNone        = "none"

	SpendUnder300    = "<300"
	Spend300To750    = "300_750"
	Spend750To1500   = "750_1500"
	Spend1500To3000  = "1500_3000"
	Spend3000AndOver = "3000_plus"

	UseDiscoverSetups = "discover_setups"
	UseTrackEquipment = "track_equipment"
	UseBuySell        = "buy_sell"
	UseFollowFriends  = "follow_friends"
	UseSaveDeals      = "save_deals"
	UseShareSetup     = "share_setup"
	UseGetFitted      = "get_fitted"
)

// DefaultVersion is the version stamped on the hardcoded table.
const DefaultVersion = "1.0.0"

// Answers is one applicant's questionnaire plus optional engagement signals.
// Nil optional fields skip their bonus entirely.
type Answers struct {
	Role              string               `json:"role"`
	ShareChannels     []string             `json:"shareChannels,omitempty"`
	LearnChannels     []string             `json:"learnChannels,omitempty"`
	Spend             string               `json:"spend,omitempty"`
	Uses              []string             `json:"uses,omitempty"`
	BuyFrequency      string               `json:"buyFrequency,omitempty"`
	ShareFrequency    string               `json:"shareFrequency,omitempty"`
	HasLocation       *bool                `json:"hasLocation,omitempty"`
	HasInviteCode     *bool                `json:"hasInviteCode,omitempty"`
	ProfileCompletion *float64             `json:"profileCompletion,omitempty"`
	Equipment         *EquipmentEngagement `json:"equipment,omitempty"`
}

type EquipmentEngagement struct {
	FirstItemAdded bool `json:"firstItemAdded"`
	ItemCount      int  `json:"itemCount"`
	HasPhoto       bool `json:"hasPhoto"`
}

// Config is the versioned weight table plus auto-approval settings.
type Config struct {
	Weights      Weights      `json:"weights"`
	AutoApproval AutoApproval `json:"autoApproval"`
	Metadata     Metadata     `json:"metadata"`
}

// PointTable maps an enumeration value to its points.
type PointTable map[string]float64

type Weights struct {
	Role           PointTable `json:"role"`
	ShareChannels  PointTable `json:"shareChannels"`
	LearnChannels  PointTable `json:"learnChannels"`
	Spend          PointTable `json:"spend"`
	Uses           PointTable `json:"uses"`
	BuyFrequency   PointTable `json:"buyFrequency"`
	ShareFrequency PointTable `json:"shareFrequency"`
	Bonuses        Bonuses    `json:"bonuses"`
	Caps           Caps       `json:"caps"`
	TotalCap       float64    `json:"totalCap"`
}

// Caps bound the contribution of the multi-valued dimensions and of all bonuses
// combined.
type Caps struct {
	ShareChannels float64 `json:"shareChannels"`
	LearnChannels float64 `json:"learnChannels"`
	Uses          float64 `json:"uses"`
	Bonuses       float64 `json:"bonuses"`
}

type Bonuses struct {
	Location          float64                `json:"location"`
	InviteCode        float64                `json:"inviteCode"`
	ProfileCompletion ProfileCompletionBonus `json:"profileCompletion"`
	Equipment         EquipmentBonus         `json:"equipment"`
}

// ProfileCompletionBonus awards Points once completion reaches MinPercent.
type ProfileCompletionBonus struct {
	MinPercent float64 `json:"minPercent"`
	Points     float64 `json:"points"`
}

type EquipmentBonus struct {
	FirstItem  float64 `json:"firstItem"`
	PerItem    float64 `json:"perItem"`
	PerItemCap float64 `json:"perItemCap"`
	HasPhoto   float64 `json:"hasPhoto"`
}

type AutoApproval struct {
	Threshold                float64 `json:"threshold"`
	RequireEmailVerification bool    `json:"requireEmailVerification"`
	// CapacityBuffer spots are held back for manual review.
	CapacityBuffer int `json:"capacityBuffer"`
}

type Metadata struct {
	Version     string    `json:"version"`
	LastUpdated time.Time `json:"lastUpdated"`
	UpdatedBy   string    `json:"updatedBy,omitempty"`
	Description string    `json:"description,omitempty"`
}

// DefaultConfig returns a fresh copy of the hardcoded weight table.
func DefaultConfig() *Config {
	return &Config{
		Weights: Weights{
			Role: PointTable{
				RoleGolfer:        0,
				RoleFitterBuilder: 3,
				RoleCreator:       2,
				RoleLeagueCaptain: 2,
				RoleRetailerOther: 1,
			},
			ShareChannels: PointTable{
				ChannelReddit:      1,
				ChannelGolfWRX:     1,
				ChannelSocialMedia: 1,
				ChannelNone:        0,
			},
			LearnChannels: PointTable{
				ChannelYouTube:     1,
				ChannelReddit:      1,
				ChannelGolfWRX:     1,
				ChannelPodcasts:    1,
				ChannelSocialMedia: 1,
				ChannelFitters:     1,
				ChannelNone:        0,
			},
			Spend: PointTable{
				SpendUnder300:    0,
				Spend300To750:    0,
				Spend750To1500:   0.5,
				Spend1500To3000:  1,
				Spend3000AndOver: 1,
			},
			Uses: PointTable{
				UseDiscoverSetups: 0,
				UseTrackEquipment: 0,
				UseBuySell:        0.5,
				UseFollowFriends:  0,
				UseSaveDeals:      0,
				UseShareSetup:     1,
				UseGetFitted:      0.5,
			},
			BuyFrequency: PointTable{
				FrequencyNever:      0,
				FrequencyRarely:     0,
				FrequencyFewPerYear: 1,
				FrequencyMonthly:    2,
				FrequencyWeeklyPlus: 2,
			},
			ShareFrequency: PointTable{
				FrequencyNever:      0,
				FrequencyRarely:     0,
				FrequencyFewPerYear: 1,
				FrequencyMonthly:    2,
				FrequencyWeeklyPlus: 2,
			},
			Bonuses: Bonuses{
				Location:   0.5,
				InviteCode: 1,
				ProfileCompletion: ProfileCompletionBonus{
					MinPercent: 80,
					Points:     0.5,
				},
				Equipment: EquipmentBonus{
					FirstItem:  0.5,
					PerItem:    0.1,
					PerItemCap: 0.5,
					HasPhoto:   0.5,
				},
			},
			Caps: Caps{
				ShareChannels: 2,
				LearnChannels: 1,
				Uses:          1,
				Bonuses:       2,
			},
			TotalCap: 10,
		},
		AutoApproval: AutoApproval{
			Threshold:                4,
			RequireEmailVerification: true,
			CapacityBuffer:           0,
		},
		Metadata: Metadata{
			Version:     DefaultVersion,
			Description: "Default waitlist scoring weights",
		},
	}
}

// Clone returns a deep copy so cached configs are never mutated through callers.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Weights.Role = c.Weights.Role.clone()
	out.Weights.ShareChannels = c.Weights.ShareChannels.clone()
	out.Weights.LearnChannels = c.Weights.LearnChannels.clone()
	out.Weights.Spend = c.Weights.Spend.clone()
	out.Weights.Uses = c.Weights.Uses.clone()
	out.Weights.BuyFrequency = c.Weights.BuyFrequency.clone()
	out.Weights.ShareFrequency = c.Weights.ShareFrequency.clone()
	return &out
}

func (p PointTable) clone() PointTable {
	if p == nil {
		return nil
	}
	out := make(PointTable, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
