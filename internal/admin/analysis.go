package admin

import (
	"fmt"
	"math"
	"sort"

	"teed-waitlist/internal/scoring"
	"teed-waitlist/internal/waitlist"
)

// MaxReportedChanges bounds the per-applicant list in a simulation response.
const MaxReportedChanges = 10

// bucketEdges split [0, 10] into the histogram ranges; the last bucket is closed.
var bucketEdges = []float64{0, 2, 4, 6, 8, 10}

type Bucket struct {
	Range string `json:"range"`
	Count int    `json:"count"`
}

type Statistics struct {
	PendingCount     int      `json:"pendingCount"`
	AverageScore     float64  `json:"averageScore"`
	Distribution     []Bucket `json:"distribution"`
	Eligible         int      `json:"eligible"`
	WouldAutoApprove int      `json:"wouldAutoApprove"`
	ApprovedCount    int      `json:"approvedCount"`
	CapacityLimit    int      `json:"capacityLimit"`
}

// ComputeStatistics re-scores pending applicants against cfg. Eligible counts
// applicants at or above the threshold; WouldAutoApprove is that count limited
// to the spots left under the effective capacity.
func ComputeStatistics(apps []waitlist.Application, cfg *scoring.Config, approved, capacity int) Statistics {
	stats := Statistics{
		PendingCount:  len(apps),
		Distribution:  emptyBuckets(),
		ApprovedCount: approved,
		CapacityLimit: capacity,
	}
	if len(apps) == 0 {
		return stats
	}

	var total float64
	for _, app := range apps {
		s := scoring.Score(app.Answers, cfg)
		total += s
		stats.Distribution[bucketIndex(s)].Count++
		if s >= cfg.AutoApproval.Threshold {
			stats.Eligible++
		}
	}
	remaining := cfg.AutoApproval.EffectiveCapacity(capacity) - approved
	if remaining < 0 {
		remaining = 0
	}
	stats.WouldAutoApprove = min(stats.Eligible, remaining)
	stats.AverageScore = round2(total / float64(len(apps)))
	return stats
}

type Change struct {
	ApplicationID      string  `json:"applicationId"`
	Email              string  `json:"email,omitempty"`
	CurrentScore       float64 `json:"currentScore"`
	NewScore           float64 `json:"newScore"`
	Delta              float64 `json:"delta"`
	CurrentAutoApprove bool    `json:"currentAutoApprove"`
	NewAutoApprove     bool    `json:"newAutoApprove"`
}

type SimulationStatistics struct {
	AverageCurrentScore float64 `json:"averageCurrentScore"`
	AverageNewScore     float64 `json:"averageNewScore"`
	AverageChange       float64 `json:"averageChange"`
	Increased           int     `json:"increased"`
	Decreased           int     `json:"decreased"`
	Unchanged           int     `json:"unchanged"`
	CurrentAutoApprove  int     `json:"currentAutoApprove"`
	NewAutoApprove      int     `json:"newAutoApprove"`
	GainingEligibility  int     `json:"gainingEligibility"`
	LosingEligibility   int     `json:"losingEligibility"`
}

type Simulation struct {
	SampleSize int                  `json:"sampleSize"`
	Changes    []Change             `json:"changes"`
	Statistics SimulationStatistics `json:"statistics"`
}

// Simulate scores every applicant under both configs. Eligibility compares the
// score with each config's threshold only; capacity is the same on both sides.
func Simulate(apps []waitlist.Application, current, trial *scoring.Config) Simulation {
	sim := Simulation{SampleSize: len(apps), Changes: []Change{}}
	if len(apps) == 0 {
		return sim
	}

	var (
		changes            []Change
		sumCurrent, sumNew float64
	)
	st := &sim.Statistics
	for _, app := range apps {
		before := scoring.Score(app.Answers, current)
		after := scoring.Score(app.Answers, trial)
		c := Change{
			ApplicationID:      app.ID,
			Email:              app.Email,
			CurrentScore:       before,
			NewScore:           after,
			Delta:              round2(after - before),
			CurrentAutoApprove: before >= current.AutoApproval.Threshold,
			NewAutoApprove:     after >= trial.AutoApproval.Threshold,
		}
		sumCurrent += before
		sumNew += after

		switch {
		case c.Delta > 0:
			st.Increased++
		case c.Delta < 0:
			st.Decreased++
		default:
			st.Unchanged++
		}
		if c.CurrentAutoApprove {
			st.CurrentAutoApprove++
		}
		if c.NewAutoApprove {
			st.NewAutoApprove++
		}
		if c.NewAutoApprove && !c.CurrentAutoApprove {
			st.GainingEligibility++
		}
		if c.CurrentAutoApprove && !c.NewAutoApprove {
			st.LosingEligibility++
		}
		if c.Delta != 0 || c.CurrentAutoApprove != c.NewAutoApprove {
			changes = append(changes, c)
		}
	}

	n := float64(len(apps))
	st.AverageCurrentScore = round2(sumCurrent / n)
	st.AverageNewScore = round2(sumNew / n)
	st.AverageChange = round2((sumNew - sumCurrent) / n)

	sort.SliceStable(changes, func(i, j int) bool {
		return math.Abs(changes[i].Delta) > math.Abs(changes[j].Delta)
	})
	if len(changes) > MaxReportedChanges {
		changes = changes[:MaxReportedChanges]
	}
	if changes != nil {
		sim.Changes = changes
	}
	return sim
}

func emptyBuckets() []Bucket {
	out := make([]Bucket, len(bucketEdges)-1)
	for i := range out {
		out[i].Range = fmt.Sprintf("%g-%g", bucketEdges[i], bucketEdges[i+1])
	}
	return out
}

func bucketIndex(score float64) int {
	for i := 1; i < len(bucketEdges)-1; i++ {
		if score < bucketEdges[i] {
			return i - 1
		}
	}
	return len(bucketEdges) - 2
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
