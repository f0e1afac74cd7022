package testfixtures

import (
	"context"
	"testing"

	"github.com/example/item-scheduler/internal/application"
)

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	gen := NewIDGenerator("item")
	if gen.Last() != "" {
		t.Fatalf("expected no id before the first call, got %q", gen.Last())
	}

	first := gen.Next()
	second := gen.Next()
	if first != "item-1" || second != "item-2" || gen.Last() != "item-2" {
		t.Fatalf("unexpected identifiers: %q, %q, last %q", first, second, gen.Last())
	}
}

func TestIDGeneratorNamesOverrides(t *testing.T) {
	ids := NewIDGenerator("row")
	svc := NewServiceFactory(WithIDGenerator(ids)).NewItemService(t, ItemServiceDeps{})
	ctx := context.Background()

	series, err := svc.CreateItem(ctx, application.CreateItemParams{Input: NewItemFixture().Input()})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	override, err := svc.EditOccurrence(ctx, application.EditOccurrenceParams{
		SeriesID:     series.ID,
		OriginalDate: Date("2024-01-08"),
		Fields:       application.OccurrenceInput{Title: "Moved"},
	})
	if err != nil {
		t.Fatalf("EditOccurrence failed: %v", err)
	}
	if series.ID != "row-1" || override.ID != "row-2" || ids.Last() != override.ID {
		t.Fatalf("unexpected ids: series %q override %q", series.ID, override.ID)
	}
}

func TestNilIDGeneratorKeepsServiceDefault(t *testing.T) {
	var gen *IDGenerator
	if gen.NextFunc() != nil {
		t.Fatal("expected nil func from nil generator")
	}
}
