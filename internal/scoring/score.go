package scoring

import "math"

// Breakdown is the per-dimension contribution behind a score. Raw is the sum
// before rounding and clamping.
type Breakdown struct {
	Role           float64 `json:"role"`
	ShareChannels  float64 `json:"shareChannels"`
	LearnChannels  float64 `json:"learnChannels"`
	Spend          float64 `json:"spend"`
	Uses           float64 `json:"uses"`
	BuyFrequency   float64 `json:"buyFrequency"`
	ShareFrequency float64 `json:"shareFrequency"`
	Bonuses        float64 `json:"bonuses"`
	Raw            float64 `json:"raw"`
	Total          float64 `json:"total"`
}

// Score returns the applicant's score in [0, cfg.Weights.TotalCap], rounded to
// one decimal place.
func Score(answers Answers, cfg *Config) float64 {
	return Evaluate(answers, cfg).Total
}

// Evaluate computes the score together with its breakdown. It never fails: unknown
// enumeration values, empty sets and a nil config all contribute zero.
func Evaluate(answers Answers, cfg *Config) Breakdown {
	if cfg == nil {
		return Breakdown{}
	}
	w := cfg.Weights

	b := Breakdown{
		Role:           lookup(w.Role, answers.Role),
		ShareChannels:  sumSet(w.ShareChannels, answers.ShareChannels, w.Caps.ShareChannels),
		LearnChannels:  sumSet(w.LearnChannels, answers.LearnChannels, w.Caps.LearnChannels),
		Spend:          lookup(w.Spend, answers.Spend),
		Uses:           sumSet(w.Uses, answers.Uses, w.Caps.Uses),
		BuyFrequency:   lookup(w.BuyFrequency, answers.BuyFrequency),
		ShareFrequency: lookup(w.ShareFrequency, answers.ShareFrequency),
		Bonuses:        bonuses(w.Bonuses, answers, w.Caps.Bonuses),
	}

	b.Raw = b.Role + b.ShareChannels + b.LearnChannels + b.Spend + b.Uses +
		b.BuyFrequency + b.ShareFrequency + b.Bonuses
	b.Total = clamp(roundTenth(b.Raw), 0, math.Max(w.TotalCap, 0))
	return b
}

func lookup(table PointTable, value string) float64 {
	if value == "" {
		return 0
	}
	return finite(table[value])
}

// sumSet adds the weight of each distinct member and clamps the result to
// [0, limit].
func sumSet(table PointTable, members []string, limit float64) float64 {
	if len(members) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(members))
	var total float64
	for _, m := range members {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		total += lookup(table, m)
	}
	return clamp(total, 0, math.Max(limit, 0))
}

func bonuses(cfg Bonuses, a Answers, limit float64) float64 {
	var total float64
	if a.HasLocation != nil && *a.HasLocation {
		total += finite(cfg.Location)
	}
	if a.HasInviteCode != nil && *a.HasInviteCode {
		total += finite(cfg.InviteCode)
	}
	if a.ProfileCompletion != nil && *a.ProfileCompletion >= cfg.ProfileCompletion.MinPercent {
		total += finite(cfg.ProfileCompletion.Points)
	}
	if e := a.Equipment; e != nil {
		if e.FirstItemAdded || e.ItemCount > 0 {
			total += finite(cfg.Equipment.FirstItem)
		}
		if e.ItemCount > 0 {
			total += clamp(finite(cfg.Equipment.PerItem)*float64(e.ItemCount), 0, math.Max(cfg.Equipment.PerItemCap, 0))
		}
		if e.HasPhoto {
			total += finite(cfg.Equipment.HasPhoto)
		}
	}
	return clamp(total, 0, math.Max(limit, 0))
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
