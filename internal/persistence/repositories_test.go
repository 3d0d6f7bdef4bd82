package persistence_test

import (
	"context"
	"slices"
	"testing"

	"github.com/ownlytics/mcptix-sub000/internal/persistence"
	"github.com/ownlytics/mcptix-sub000/internal/testfixtures"
)

func newStore(t *testing.T) persistence.TicketStore {
	t.Helper()
	return testfixtures.NewSQLiteHarness(t).Tickets
}

func columnIDs(t *testing.T, store persistence.TicketStore, status persistence.Status) []string {
	t.Helper()

	tickets, err := store.ListTickets(context.Background(), persistence.TicketFilter{
		Status: status,
		Sort:   persistence.SortPosition,
		Order:  persistence.SortDesc,
	})
	if err != nil {
		t.Fatalf("ListTickets returned error: %v", err)
	}
	ids := make([]string, 0, len(tickets))
	for _, ticket := range tickets {
		ids = append(ids, ticket.ID)
	}
	return ids
}

func TestEnumValidation(t *testing.T) {
	t.Parallel()

	for _, status := range persistence.Statuses() {
		if !status.Valid() {
			t.Fatalf("expected %q to be valid", status)
		}
	}
	if persistence.Status("done").Valid() {
		t.Fatal("expected unknown status to be invalid")
	}
	if !persistence.PriorityHigh.Valid() || persistence.Priority("urgent").Valid() {
		t.Fatal("unexpected priority validation")
	}
	if !persistence.AuthorAgent.Valid() || persistence.Author("").Valid() {
		t.Fatal("unexpected author validation")
	}
	if !persistence.SortPosition.Valid() || persistence.SortField("rank").Valid() {
		t.Fatal("unexpected sort field validation")
	}
}

func TestTicketStore_ReorderReadsBackInPositionOrder(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	ctx := context.Background()

	a := testfixtures.NewTicketFixture(testfixtures.WithPosition(3000)).Insert(t, store)
	b := testfixtures.NewTicketFixture(testfixtures.WithPosition(1000)).Insert(t, store)

	ok, err := store.ReorderTicket(ctx, b, 2000)
	if err != nil || !ok {
		t.Fatalf("ReorderTicket = %v, %v", ok, err)
	}

	if got := columnIDs(t, store, persistence.StatusBacklog); !slices.Equal(got, []string{a, b}) {
		t.Fatalf("expected order [%s %s], got %v", a, b, got)
	}
}

func TestTicketStore_MoveWithoutPositionLandsAtBottom(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	ctx := context.Background()

	existing := testfixtures.SeedColumn(t, store, persistence.StatusInProgress, "x", "y")
	moving := testfixtures.NewTicketFixture().Insert(t, store)

	if ok, err := store.MoveTicket(ctx, moving, persistence.StatusInProgress, nil); err != nil || !ok {
		t.Fatalf("MoveTicket = %v, %v", ok, err)
	}
	want := append(slices.Clone(existing), moving)
	if got := columnIDs(t, store, persistence.StatusInProgress); !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	lonely := testfixtures.NewTicketFixture().Insert(t, store)
	if ok, err := store.MoveTicket(ctx, lonely, persistence.StatusCompleted, nil); err != nil || !ok {
		t.Fatalf("MoveTicket = %v, %v", ok, err)
	}
	ticket, found, err := store.GetTicket(ctx, lonely)
	if err != nil || !found {
		t.Fatalf("GetTicket = %v, %v", found, err)
	}
	if ticket.Position <= 0 {
		t.Fatalf("expected positive default position, got %v", ticket.Position)
	}
}

func TestTicketStore_GetNext(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	ctx := context.Background()

	if _, found, err := store.GetNextTicket(ctx, persistence.StatusUpNext); err != nil || found {
		t.Fatalf("expected empty column to report not found, got %v, %v", found, err)
	}

	testfixtures.NewTicketFixture(testfixtures.WithStatus(persistence.StatusUpNext), testfixtures.WithPosition(5000)).Insert(t, store)
	later := testfixtures.NewTicketFixture(testfixtures.WithStatus(persistence.StatusUpNext), testfixtures.WithPosition(5000)).Insert(t, store)

	next, found, err := store.GetNextTicket(ctx, persistence.StatusUpNext)
	if err != nil || !found {
		t.Fatalf("GetNextTicket = %v, %v", found, err)
	}
	if next.ID != later {
		t.Fatalf("expected the later updated ticket %s, got %s", later, next.ID)
	}
}

func TestTicketStore_DeleteCascades(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	ctx := context.Background()

	id := testfixtures.NewTicketFixture(
		testfixtures.WithComplexity(persistence.ComplexityInput{FilesTouched: testfixtures.Metric(1)}),
		testfixtures.WithComment("first", persistence.AuthorDeveloper),
	).Insert(t, store)

	deleted, err := store.DeleteTicket(ctx, id)
	if err != nil || !deleted {
		t.Fatalf("DeleteTicket = %v, %v", deleted, err)
	}
	if _, found, err := store.GetTicket(ctx, id); err != nil || found {
		t.Fatalf("expected deleted ticket to be gone, got %v, %v", found, err)
	}
	if _, err := store.AddComment(ctx, id, persistence.NewComment{Content: "late", Author: persistence.AuthorAgent}); err == nil {
		t.Fatal("expected comment on deleted ticket to fail")
	}
}

func TestTicketStore_PartialComplexityUpdatePreservesFields(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	ctx := context.Background()

	fixture := testfixtures.NewTicketFixture(testfixtures.WithComplexity(persistence.ComplexityInput{
		FilesTouched:     testfixtures.Metric(5),
		TestCasesWritten: testfixtures.Metric(2),
	}))
	id := fixture.Insert(t, store)

	ok, err := store.UpdateTicket(ctx, persistence.TicketUpdate{
		ID:         id,
		Title:      fixture.Title,
		Priority:   fixture.Priority,
		Status:     fixture.Status,
		Complexity: &persistence.ComplexityInput{EdgeCases: testfixtures.Metric(7)},
	})
	if err != nil || !ok {
		t.Fatalf("UpdateTicket = %v, %v", ok, err)
	}

	ticket, _, err := store.GetTicket(ctx, id)
	if err != nil {
		t.Fatalf("GetTicket returned error: %v", err)
	}
	got := ticket.Complexity
	if got.FilesTouched != 5 || got.TestCasesWritten != 2 || got.EdgeCases != 7 {
		t.Fatalf("expected merged complexity, got %+v", got)
	}
}

func TestTicketStore_RenormalizeKeepsOrder(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	ctx := context.Background()

	ids := make([]string, 0, 3)
	for _, position := range []float64{1.0000000003, 1.0000000002, 1.0000000001} {
		ids = append(ids, testfixtures.NewTicketFixture(testfixtures.WithPosition(position)).Insert(t, store))
	}

	crowded, err := store.NeedsRenormalize(ctx, persistence.StatusBacklog)
	if err != nil || !crowded {
		t.Fatalf("NeedsRenormalize = %v, %v", crowded, err)
	}

	n, err := store.RenormalizeColumn(ctx, persistence.StatusBacklog)
	if err != nil || n != 3 {
		t.Fatalf("RenormalizeColumn = %d, %v", n, err)
	}
	if got := columnIDs(t, store, persistence.StatusBacklog); !slices.Equal(got, ids) {
		t.Fatalf("expected order %v, got %v", ids, got)
	}
	if crowded, _ := store.NeedsRenormalize(ctx, persistence.StatusBacklog); crowded {
		t.Fatal("expected gaps to be restored")
	}
}
