package models

// This file defines the stage-specific payload variants referenced by
// §4.8. Each variant embeds StageOutputEnvelope and is validated against
// this shape before being accepted as a step's output (pkg/workflow).

// QuestionKind enumerates the categories a clarifying question may carry.
type QuestionKind string

const (
	QuestionRequirement  QuestionKind = "requirement"
	QuestionConstraint   QuestionKind = "constraint"
	QuestionScope        QuestionKind = "scope"
	QuestionStakeholder  QuestionKind = "stakeholder"
	QuestionTechnical    QuestionKind = "technical"
	QuestionBusiness     QuestionKind = "business"
	QuestionTimeline     QuestionKind = "timeline"
	QuestionIntegration  QuestionKind = "integration"
	QuestionData         QuestionKind = "data"
	QuestionSecurity     QuestionKind = "security"
)

// Importance ranks a clarifying question's urgency.
type Importance string

const (
	ImportanceCritical Importance = "critical"
	ImportanceHigh     Importance = "high"
	ImportanceMedium   Importance = "medium"
	ImportanceLow      Importance = "low"
)

// ClarifyingQuestion is one question the Clarifier stage raises.
type ClarifyingQuestion struct {
	ID                string       `json:"id"`
	Text              string       `json:"text"`
	Kind              QuestionKind `json:"kind"`
	Importance        Importance   `json:"importance"`
	SuggestedAnswers  []string     `json:"suggested_answers,omitempty"`
	Context           string       `json:"context,omitempty"`
}

// ClarifierOutput is the Clarifier stage's payload.
type ClarifierOutput struct {
	StageOutputEnvelope
	Questions         []ClarifyingQuestion `json:"questions"`
	AnalysisSummary   string                `json:"analysis_summary"`
	IdentifiedGaps    []string              `json:"identified_gaps"`
	Assumptions       []string              `json:"assumptions"`
}

// DocumentSection is one titled section of a synthesized document.
type DocumentSection struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Kind    string `json:"kind"`
	Order   int    `json:"order"`
}

// Document is the as-is / to-be document shape produced by the Synthesizer.
type Document struct {
	Title             string            `json:"title"`
	ExecutiveSummary  string            `json:"executive_summary"`
	Sections          []DocumentSection `json:"sections"`
}

// GapAnalysisItem describes one delta between current and future state.
type GapAnalysisItem struct {
	Area        string `json:"area"`
	Current     string `json:"current"`
	Future      string `json:"future"`
	Impact      string `json:"impact"`
}

// RiskItem is one risk-and-mitigation pairing.
type RiskItem struct {
	Risk       string `json:"risk"`
	Mitigation string `json:"mitigation"`
	Severity   string `json:"severity"`
}

// SynthesizerOutput is the Synthesizer stage's payload.
type SynthesizerOutput struct {
	StageOutputEnvelope
	AsIsDocument           Document          `json:"as_is_document"`
	ToBeDocument           Document          `json:"to_be_document"`
	GapAnalysis            []GapAnalysisItem `json:"gap_analysis"`
	ImplementationApproach string            `json:"implementation_approach"`
	RisksAndMitigation     []RiskItem        `json:"risks_and_mitigation"`
}

// Task is one developer task the Taskmaster stage produces.
type Task struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	UserStories     []string `json:"user_stories"`
	TechnicalNotes  []string `json:"technical_notes"`
	EstimatedEffort string   `json:"estimated_effort"`
	Priority        string   `json:"priority"`
	Dependencies    []string `json:"dependencies"`
	Labels          []string `json:"labels"`
	Epic            string   `json:"epic,omitempty"`
}

// TaskmasterOutput is the Taskmaster stage's payload.
type TaskmasterOutput struct {
	StageOutputEnvelope
	Tasks                  []Task   `json:"tasks"`
	TaskBreakdownSummary   string   `json:"task_breakdown_summary"`
	ImplementationPhases   []string `json:"implementation_phases"`
	ResourceRequirements   string   `json:"resource_requirements"`
	TimelineEstimate       string   `json:"timeline_estimate"`
}

// ApprovalStatus is the Verifier stage's final disposition.
type ApprovalStatus string

const (
	ApprovalApproved    ApprovalStatus = "approved"
	ApprovalNeedsReview ApprovalStatus = "needs_review"
	ApprovalRejected    ApprovalStatus = "rejected"
)

// CheckCategory classifies a verification check; a failure in any of
// {accuracy, feasibility, compliance} forces ApprovalRejected regardless of
// overall score (§4.8).
type CheckCategory string

const (
	CheckAccuracy    CheckCategory = "accuracy"
	CheckFeasibility CheckCategory = "feasibility"
	CheckCompliance  CheckCategory = "compliance"
	CheckOther       CheckCategory = "other"
)

// VerificationCheck is one pass/fail check the Verifier ran.
type VerificationCheck struct {
	Name     string        `json:"name"`
	Category CheckCategory `json:"category"`
	Passed   bool          `json:"passed"`
	Detail   string        `json:"detail,omitempty"`
}

// OverallValidation summarizes the Verifier's check results.
type OverallValidation struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Score    float64  `json:"score"`
}

// VerifierOutput is the Verifier stage's payload.
type VerifierOutput struct {
	StageOutputEnvelope
	VerificationChecks []VerificationCheck `json:"verification_checks"`
	ConsistencyChecks  []VerificationCheck `json:"consistency_checks"`
	OverallValidation  OverallValidation   `json:"overall_validation"`
	Recommendations    []string            `json:"recommendations"`
	FlaggedIssues      []string            `json:"flagged_issues"`
	ApprovalStatus     ApprovalStatus      `json:"approval_status"`
}

// DeriveApprovalStatus implements the deterministic derivation rule from
// §4.8: any failing check in {accuracy, feasibility, compliance} forces
// rejection; otherwise the overall score buckets the outcome.
func DeriveApprovalStatus(checks []VerificationCheck, score float64) ApprovalStatus {
	for _, c := range checks {
		if c.Passed {
			continue
		}
		switch c.Category {
		case CheckAccuracy, CheckFeasibility, CheckCompliance:
			return ApprovalRejected
		}
	}
	switch {
	case score >= 0.8:
		return ApprovalApproved
	case score >= 0.6:
		return ApprovalNeedsReview
	default:
		return ApprovalRejected
	}
}
