package scoring

// ShouldAutoApprove reports whether an applicant with this score may be admitted
// without review. It does not reserve capacity; admission must re-check the
// count atomically.
func (a AutoApproval) ShouldAutoApprove(score float64, currentApprovedCount, capacityLimit int) bool {
	return score >= a.Threshold && currentApprovedCount < capacityLimit
}

// EffectiveCapacity is the auto-fill ceiling once the manual-review buffer is
// held back.
func (a AutoApproval) EffectiveCapacity(capacityLimit int) int {
	limit := capacityLimit - a.CapacityBuffer
	if limit < 0 {
		return 0
	}
	return limit
}

// ShouldAutoApprove applies cfg's auto-approval threshold.
func ShouldAutoApprove(cfg *Config, score float64, currentApprovedCount, capacityLimit int) bool {
	if cfg == nil {
		return false
	}
	return cfg.AutoApproval.ShouldAutoApprove(score, currentApprovedCount, capacityLimit)
}
