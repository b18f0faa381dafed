package scoring

// Patch is a partial ScoringConfig update. Nil sections and nil fields are left
// untouched; point tables merge key by key.
type Patch struct {
	Weights      *WeightsPatch      `json:"weights,omitempty"`
	AutoApproval *AutoApprovalPatch `json:"autoApproval,omitempty"`
	Metadata     *MetadataPatch     `json:"metadata,omitempty"`
}

type WeightsPatch struct {
	Role           PointTable    `json:"role,omitempty"`
	ShareChannels  PointTable    `json:"shareChannels,omitempty"`
	LearnChannels  PointTable    `json:"learnChannels,omitempty"`
	Spend          PointTable    `json:"spend,omitempty"`
	Uses           PointTable    `json:"uses,omitempty"`
	BuyFrequency   PointTable    `json:"buyFrequency,omitempty"`
	ShareFrequency PointTable    `json:"shareFrequency,omitempty"`
	Bonuses        *BonusesPatch `json:"bonuses,omitempty"`
	Caps           *CapsPatch    `json:"caps,omitempty"`
	TotalCap       *float64      `json:"totalCap,omitempty"`
}

type BonusesPatch struct {
	Location          *float64                     `json:"location,omitempty"`
	InviteCode        *float64                     `json:"inviteCode,omitempty"`
	ProfileCompletion *ProfileCompletionBonusPatch `json:"profileCompletion,omitempty"`
	Equipment         *EquipmentBonusPatch         `json:"equipment,omitempty"`
}

type ProfileCompletionBonusPatch struct {
	MinPercent *float64 `json:"minPercent,omitempty"`
	Points     *float64 `json:"points,omitempty"`
}

type EquipmentBonusPatch struct {
	FirstItem  *float64 `json:"firstItem,omitempty"`
	PerItem    *float64 `json:"perItem,omitempty"`
	PerItemCap *float64 `json:"perItemCap,omitempty"`
	HasPhoto   *float64 `json:"hasPhoto,omitempty"`
}

type CapsPatch struct {
	ShareChannels *float64 `json:"shareChannels,omitempty"`
	LearnChannels *float64 `json:"learnChannels,omitempty"`
	Uses          *float64 `json:"uses,omitempty"`
	Bonuses       *float64 `json:"bonuses,omitempty"`
}

type AutoApprovalPatch struct {
	Threshold                *float64 `json:"threshold,omitempty"`
	RequireEmailVerification *bool    `json:"requireEmailVerification,omitempty"`
	CapacityBuffer           *int     `json:"capacityBuffer,omitempty"`
}

// MetadataPatch only carries the description; version, timestamp and author are
// stamped by the loader.
type MetadataPatch struct {
	Description *string `json:"description,omitempty"`
}

// IsEmpty reports whether applying p would change nothing.
func (p *Patch) IsEmpty() bool {
	return p == nil || (p.Weights == nil && p.AutoApproval == nil && p.Metadata == nil)
}

// Apply returns a copy of base with p merged in. base is not modified.
func Apply(base *Config, p *Patch) *Config {
	out := base.Clone()
	if out == nil {
		out = DefaultConfig()
	}
	if p == nil {
		return out
	}
	if p.Weights != nil {
		mergeWeights(&out.Weights, p.Weights)
	}
	if p.AutoApproval != nil {
		mergeAutoApproval(&out.AutoApproval, p.AutoApproval)
	}
	if p.Metadata != nil && p.Metadata.Description != nil {
		out.Metadata.Description = *p.Metadata.Description
	}
	return out
}

func mergeWeights(w *Weights, p *WeightsPatch) {
	w.Role = mergeTable(w.Role, p.Role)
	w.ShareChannels = mergeTable(w.ShareChannels, p.ShareChannels)
	w.LearnChannels = mergeTable(w.LearnChannels, p.LearnChannels)
	w.Spend = mergeTable(w.Spend, p.Spend)
	w.Uses = mergeTable(w.Uses, p.Uses)
	w.BuyFrequency = mergeTable(w.BuyFrequency, p.BuyFrequency)
	w.ShareFrequency = mergeTable(w.ShareFrequency, p.ShareFrequency)

	if p.Bonuses != nil {
		mergeBonuses(&w.Bonuses, p.Bonuses)
	}
	if c := p.Caps; c != nil {
		setFloat(&w.Caps.ShareChannels, c.ShareChannels)
		setFloat(&w.Caps.LearnChannels, c.LearnChannels)
		setFloat(&w.Caps.Uses, c.Uses)
		setFloat(&w.Caps.Bonuses, c.Bonuses)
	}
	setFloat(&w.TotalCap, p.TotalCap)
}

func mergeBonuses(b *Bonuses, p *BonusesPatch) {
	setFloat(&b.Location, p.Location)
	setFloat(&b.InviteCode, p.InviteCode)
	if pc := p.ProfileCompletion; pc != nil {
		setFloat(&b.ProfileCompletion.MinPercent, pc.MinPercent)
		setFloat(&b.ProfileCompletion.Points, pc.Points)
	}
	if e := p.Equipment; e != nil {
		setFloat(&b.Equipment.FirstItem, e.FirstItem)
		setFloat(&b.Equipment.PerItem, e.PerItem)
		setFloat(&b.Equipment.PerItemCap, e.PerItemCap)
		setFloat(&b.Equipment.HasPhoto, e.HasPhoto)
	}
}

func mergeAutoApproval(a *AutoApproval, p *AutoApprovalPatch) {
	setFloat(&a.Threshold, p.Threshold)
	if p.RequireEmailVerification != nil {
		a.RequireEmailVerification = *p.RequireEmailVerification
	}
	if p.CapacityBuffer != nil {
		a.CapacityBuffer = *p.CapacityBuffer
	}
}

func mergeTable(dst, src PointTable) PointTable {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(PointTable, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}
