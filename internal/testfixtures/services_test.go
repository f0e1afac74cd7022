package testfixtures

import (
	"context"
	"testing"

	"github.com/example/item-scheduler/internal/application"
)

func TestServiceFactoryNewItemService(t *testing.T) {
	factory := NewServiceFactory()
	svc := factory.NewItemService(t, ItemServiceDeps{})

	fixture := NewItemFixture(WithTitle("Team sync"))
	series, err := svc.CreateItem(context.Background(), application.CreateItemParams{Input: fixture.Input()})
	if err != nil {
		t.Fatalf("CreateItem returned error: %v", err)
	}

	if series.ID != "id-1" {
		t.Fatalf("expected generated ID id-1, got %q", series.ID)
	}
	if !series.CreatedAt.Equal(factory.Clock.Now()) {
		t.Fatalf("expected timestamp %v, got %v", factory.Clock.Now(), series.CreatedAt)
	}
}

func TestSQLiteHarnessStoresFixtures(t *testing.T) {
	harness := NewSQLiteHarness(t)
	ctx := context.Background()

	seeded := harness.Seed(t, NewItemFixture(WithItemID("series-a"), WithDueTime(9, 0)))
	if len(seeded) != 1 || seeded[0].DueTime == nil || seeded[0].DueTime.Hour != 9 {
		t.Fatalf("unexpected seeded rows: %#v", seeded)
	}
	if _, err := harness.Exceptions.SaveOverride(ctx, OverrideItem("override-a", "series-a", "2024-01-08", "2024-01-09")); err != nil {
		t.Fatalf("SaveOverride failed: %v", err)
	}

	stored, err := harness.Items.GetItem(ctx, "override-a")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if stored.ParentID != "series-a" || stored.OriginalDate != Date("2024-01-08") {
		t.Fatalf("unexpected override lineage: %#v", stored)
	}
}
