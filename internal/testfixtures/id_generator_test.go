package testfixtures

import (
	"context"
	"sync"
	"testing"

	"github.com/ownlytics/mcptix-sub000/internal/persistence"
)

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	gen := NewIDGenerator("ticket")

	if first, second := gen.Next(), gen.Next(); first != "ticket-1" || second != "ticket-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}

	gen.Reset()
	if next := gen.Next(); next != "ticket-1" {
		t.Fatalf("expected ticket-1 after reset, got %q", next)
	}
}

func TestIDGeneratorIsSafeForConcurrentUse(t *testing.T) {
	gen := NewIDGenerator("")

	var wg sync.WaitGroup
	seen := sync.Map{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, dup := seen.LoadOrStore(gen.Next(), struct{}{}); dup {
				t.Error("duplicate identifier issued")
			}
		}()
	}
	wg.Wait()

	if gen.Issued() != 50 {
		t.Fatalf("expected 50 identifiers, got %d", gen.Issued())
	}
}

func TestIDGeneratorFeedsStoreIdentifiers(t *testing.T) {
	ids := NewIDGenerator("cmt")
	harness := NewSQLiteHarness(t, WithHarnessIDs(ids))

	ticketID := NewTicketFixture(WithTicketID("fixed"), WithComment("hello", persistence.AuthorAgent)).Insert(t, harness.Tickets)
	ticket, _, err := harness.Tickets.GetTicket(context.Background(), ticketID)
	if err != nil {
		t.Fatalf("GetTicket returned error: %v", err)
	}

	if len(ticket.Comments) != 1 || ticket.Comments[0].ID != "cmt-1" {
		t.Fatalf("expected generated comment id cmt-1, got %+v", ticket.Comments)
	}
	if ids.Issued() != 1 {
		t.Fatalf("expected only the comment id to be generated, got %d", ids.Issued())
	}
}
