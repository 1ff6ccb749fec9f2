package models

// CohortName identifies a behavioral cohort. Cohorts are independent
// predicates, not a partition: an entity may appear in several.
type CohortName string

const (
	CohortExportersWeek1    CohortName = "EXPORTERS_WEEK1"
	CohortEditors3PlusWeek1 CohortName = "EDITORS_3PLUS_WEEK1"
	CohortOneAndDone        CohortName = "ONE_AND_DONE"
	CohortCollaboratorsWeek1 CohortName = "COLLABORATORS_WEEK1"
)

// Cohort is a named group of entities built fresh per request.
type Cohort struct {
	Name      CohortName `json:"name"`
	MemberIDs []string   `json:"memberIds"`
	DefinedAt TimeRange  `json:"definedAt"`
}

// Size returns the member count.
func (c Cohort) Size() int { return len(c.MemberIDs) }

// RetentionPoint is one period of a cohort's retention curve.
type RetentionPoint struct {
	CohortName    CohortName `json:"cohortName"`
	PeriodIndex   int        `json:"periodIndex"`
	ActiveCount   int        `json:"activeCount"`
	CohortSize    int        `json:"cohortSize"`
	RetentionRate float64    `json:"retentionRate"`
}

// RetentionCurve is the full per-period retention series for one cohort.
// Curves may legitimately be non-monotonic; no smoothing is applied.
type RetentionCurve struct {
	CohortName CohortName       `json:"cohortName"`
	Size       int              `json:"size"`
	Points     []RetentionPoint `json:"points"`
}
