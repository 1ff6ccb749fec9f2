package engine

import (
	"log/slog"
	"sort"
	"time"

	"github.com/pulsestack/pulse-insights/internal/models"
	"github.com/pulsestack/pulse-insights/internal/utils"
)

// CohortSet is the output of one cohort-building pass: the named cohorts
// plus the qualifying date anchoring each member's retention periods.
type CohortSet struct {
	Cohorts map[models.CohortName]models.Cohort
	Anchors map[string]time.Time
}

// CohortBuilder partitions entities into named, non-exclusive behavioral
// cohorts based on their activity in the fixed observation window after
// their qualifying signup event.
type CohortBuilder struct {
	params Params
	logger *slog.Logger
}

// NewCohortBuilder constructs a CohortBuilder.
func NewCohortBuilder(params Params, logger *slog.Logger) *CohortBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CohortBuilder{params: params.withDefaults(), logger: logger}
}

// entityActivity is the per-entity snapshot the cohort predicates read.
// Predicates never look at raw events directly; they share this one view.
type entityActivity struct {
	entityID    string
	qualifiedAt time.Time

	week1Exports  int
	week1Edits    int
	week1Collabs  int

	lifetimeCreates int
	lifetimeEdits   int
	lifetimeExports int
}

// cohortPredicates are independent boolean filters over the shared snapshot.
// Non-exclusive on purpose: an entity may satisfy several at once.
var cohortPredicates = map[models.CohortName]func(entityActivity) bool{
	models.CohortExportersWeek1: func(a entityActivity) bool {
		return a.week1Exports >= 1
	},
	models.CohortEditors3PlusWeek1: func(a entityActivity) bool {
		return a.week1Edits >= 3
	},
	models.CohortCollaboratorsWeek1: func(a entityActivity) bool {
		return a.week1Collabs >= 1
	},
	// One-and-done is a lifetime characterization, not a week-1 one: exactly
	// one creation and zero edits/exports over the whole observation period.
	models.CohortOneAndDone: func(a entityActivity) bool {
		return a.lifetimeCreates == 1 && a.lifetimeEdits == 0 && a.lifetimeExports == 0
	},
}

// Build classifies every entity whose qualifying signup event falls inside
// signupWindow. Entities without a qualifying event are excluded entirely;
// that is not an error. Running Build twice on identical input yields
// identical member sets.
func (b *CohortBuilder) Build(signupWindow models.TimeRange, events []models.Event) (CohortSet, error) {
	if err := signupWindow.Validate(); err != nil {
		return CohortSet{}, utils.InvalidRange("engine.CohortBuilder.Build", err.Error())
	}

	activities := b.collectActivity(signupWindow, events)

	set := CohortSet{
		Cohorts: make(map[models.CohortName]models.Cohort, len(cohortPredicates)),
		Anchors: make(map[string]time.Time, len(activities)),
	}
	for _, activity := range activities {
		set.Anchors[activity.entityID] = activity.qualifiedAt
	}

	for name, predicate := range cohortPredicates {
		members := make([]string, 0)
		for _, activity := range activities {
			if predicate(activity) {
				members = append(members, activity.entityID)
			}
		}
		sort.Strings(members)
		set.Cohorts[name] = models.Cohort{
			Name:      name,
			MemberIDs: members,
			DefinedAt: signupWindow,
		}
	}

	b.logger.Debug("cohorts built",
		slog.Int("qualified_entities", len(activities)),
		slog.Int("cohorts", len(set.Cohorts)))

	return set, nil
}

// collectActivity finds each entity's first signup event, keeps only those
// qualifying inside the window, and tallies week-1 and lifetime counts.
// Events are assumed timestamp-ordered (the ingest boundary guarantees it).
func (b *CohortBuilder) collectActivity(signupWindow models.TimeRange, events []models.Event) []entityActivity {
	qualified := make(map[string]*entityActivity)

	for _, event := range events {
		if event.Type != models.EventSignup {
			continue
		}
		if _, seen := qualified[event.EntityID]; seen {
			continue
		}
		if !signupWindow.Contains(event.Timestamp) {
			// First signup outside the window disqualifies the entity for
			// this pass; a later signup is not "first".
			qualified[event.EntityID] = nil
			continue
		}
		qualified[event.EntityID] = &entityActivity{
			entityID:    event.EntityID,
			qualifiedAt: event.Timestamp,
		}
	}

	week1 := time.Duration(b.params.WeekWindowDays) * 24 * time.Hour
	for _, event := range events {
		activity := qualified[event.EntityID]
		if activity == nil {
			continue
		}
		inWeek1 := !event.Timestamp.Before(activity.qualifiedAt) &&
			event.Timestamp.Before(activity.qualifiedAt.Add(week1))

		switch event.Type {
		case models.EventExport:
			activity.lifetimeExports++
			if inWeek1 {
				activity.week1Exports++
			}
		case models.EventEdit:
			activity.lifetimeEdits++
			if inWeek1 {
				activity.week1Edits++
			}
		case models.EventCollaborate:
			if inWeek1 {
				activity.week1Collabs++
			}
		case models.EventCreate:
			activity.lifetimeCreates++
		}
	}

	activities := make([]entityActivity, 0, len(qualified))
	for _, activity := range qualified {
		if activity != nil {
			activities = append(activities, *activity)
		}
	}
	sort.Slice(activities, func(i, j int) bool {
		return activities[i].entityID < activities[j].entityID
	})
	return activities
}
