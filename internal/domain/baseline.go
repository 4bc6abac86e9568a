package domain

import "time"

// BaselineScope identifies the aggregation scope a Baseline or running stat
// applies to: a whole workflow, or a specific task within it.
type BaselineScope struct {
	WorkflowName string `json:"workflowName"`
	TaskID       string `json:"taskId,omitempty"` // empty means workflow-level scope
}

func (s BaselineScope) String() string {
	if s.TaskID == "" {
		return s.WorkflowName
	}
	return s.WorkflowName + "/" + s.TaskID
}

// Baseline is a per-scope duration distribution summary used for z-score
// anomaly evaluation, refreshed hourly from the most recent N completed
// records.
type Baseline struct {
	Scope       BaselineScope `json:"scope"`
	Mean        float64       `json:"mean"`
	StdDev      float64       `json:"stddev"`
	SampleCount int           `json:"sampleCount"`
	RefreshedAt time.Time     `json:"refreshedAt"`
}

// AnomalySeverity buckets a detected z-score.
type AnomalySeverity string

const (
	SeverityMinor    AnomalySeverity = "Minor"
	SeverityMajor    AnomalySeverity = "Major"
	SeverityCritical AnomalySeverity = "Critical"
)

// AnomalyEvent is emitted when an observed duration deviates from its
// scope's Baseline beyond the configured threshold.
type AnomalyEvent struct {
	Scope       BaselineScope   `json:"scope"`
	ExecutionID string          `json:"executionId"`
	DurationMs  float64         `json:"durationMs"`
	ZScore      float64         `json:"zScore"`
	Severity    AnomalySeverity `json:"severity"`
	DetectedAt  time.Time       `json:"detectedAt"`
}

// Severity buckets an absolute z-score per the engine's fixed thresholds:
// Minor [2,3), Major [3,4), Critical >= 4. Returns ("", false) below 2.
func SeverityForZScore(absZ float64) (AnomalySeverity, bool) {
	switch {
	case absZ >= 4:
		return SeverityCritical, true
	case absZ >= 3:
		return SeverityMajor, true
	case absZ >= 2:
		return SeverityMinor, true
	default:
		return "", false
	}
}
