package engine

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/pulsestack/pulse-insights/internal/models"
	"github.com/pulsestack/pulse-insights/internal/utils"
)

func buildTestEvents(base time.Time) []models.Event {
	return []models.Event{
		// exporter: signs up day 0, exports day 2, also edits 3 times in week 1
		{EntityID: "exporter", Type: models.EventSignup, Timestamp: day(base, 0)},
		{EntityID: "exporter", Type: models.EventEdit, Timestamp: day(base, 1)},
		{EntityID: "exporter", Type: models.EventEdit, Timestamp: day(base, 1).Add(time.Hour)},
		{EntityID: "exporter", Type: models.EventEdit, Timestamp: day(base, 2)},
		{EntityID: "exporter", Type: models.EventExport, Timestamp: day(base, 2).Add(time.Hour)},

		// lateExporter: exports only after week 1 ends
		{EntityID: "lateExporter", Type: models.EventSignup, Timestamp: day(base, 0)},
		{EntityID: "lateExporter", Type: models.EventExport, Timestamp: day(base, 9)},

		// oneAndDone: one create, nothing else ever
		{EntityID: "oneAndDone", Type: models.EventSignup, Timestamp: day(base, 1)},
		{EntityID: "oneAndDone", Type: models.EventCreate, Timestamp: day(base, 1).Add(time.Hour)},

		// collaborator: shares within week 1
		{EntityID: "collaborator", Type: models.EventSignup, Timestamp: day(base, 2)},
		{EntityID: "collaborator", Type: models.EventCollaborate, Timestamp: day(base, 4)},

		// outsider: first signup before the window, active afterwards
		{EntityID: "outsider", Type: models.EventSignup, Timestamp: day(base, -3)},
		{EntityID: "outsider", Type: models.EventExport, Timestamp: day(base, 1)},
	}
}

func TestCohortBuilderPredicates(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	window := models.TimeRange{Start: base, End: day(base, 7)}
	builder := NewCohortBuilder(DefaultParams(), nil)

	set, err := builder.Build(window, buildTestEvents(base))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	exporters := set.Cohorts[models.CohortExportersWeek1]
	if !reflect.DeepEqual(exporters.MemberIDs, []string{"exporter"}) {
		t.Fatalf("exporters: got %v", exporters.MemberIDs)
	}

	editors := set.Cohorts[models.CohortEditors3PlusWeek1]
	if !reflect.DeepEqual(editors.MemberIDs, []string{"exporter"}) {
		t.Fatalf("editors: got %v", editors.MemberIDs)
	}

	oneAndDone := set.Cohorts[models.CohortOneAndDone]
	if !reflect.DeepEqual(oneAndDone.MemberIDs, []string{"oneAndDone"}) {
		t.Fatalf("one-and-done: got %v", oneAndDone.MemberIDs)
	}

	collaborators := set.Cohorts[models.CohortCollaboratorsWeek1]
	if !reflect.DeepEqual(collaborators.MemberIDs, []string{"collaborator"}) {
		t.Fatalf("collaborators: got %v", collaborators.MemberIDs)
	}
}

func TestCohortMembershipIsNonExclusive(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	window := models.TimeRange{Start: base, End: day(base, 7)}
	builder := NewCohortBuilder(DefaultParams(), nil)

	set, err := builder.Build(window, buildTestEvents(base))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// "exporter" qualifies as both exporter and heavy editor.
	inBoth := 0
	for _, name := range []models.CohortName{models.CohortExportersWeek1, models.CohortEditors3PlusWeek1} {
		for _, id := range set.Cohorts[name].MemberIDs {
			if id == "exporter" {
				inBoth++
			}
		}
	}
	if inBoth != 2 {
		t.Fatalf("expected exporter in two cohorts, found in %d", inBoth)
	}
}

func TestCohortFirstSignupOutsideWindowDisqualifies(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	window := models.TimeRange{Start: base, End: day(base, 7)}
	builder := NewCohortBuilder(DefaultParams(), nil)

	set, err := builder.Build(window, buildTestEvents(base))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for name, cohort := range set.Cohorts {
		for _, id := range cohort.MemberIDs {
			if id == "outsider" {
				t.Fatalf("outsider must not appear in %s", name)
			}
		}
	}
	if _, ok := set.Anchors["outsider"]; ok {
		t.Fatalf("outsider must not have an anchor")
	}
}

func TestCohortBuildIsDeterministic(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	window := models.TimeRange{Start: base, End: day(base, 7)}
	builder := NewCohortBuilder(DefaultParams(), nil)
	events := buildTestEvents(base)

	first, err := builder.Build(window, events)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, err := builder.Build(window, events)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("two builds over identical input differ")
	}
}

func TestCohortBuildInvalidWindow(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	builder := NewCohortBuilder(DefaultParams(), nil)

	_, err := builder.Build(models.TimeRange{Start: day(base, 7), End: base}, nil)
	if !errors.Is(err, utils.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}
