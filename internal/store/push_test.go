package store

import (
	"testing"

	"github.com/dukerupert/homecal/internal/database"
)

func setupPushTestDB(t *testing.T) *PushStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPushStore(db)
}

func TestPushSubscriptionUpsert(t *testing.T) {
	ps := setupPushTestDB(t)

	sub, err := ps.CreateSubscription("https://push.example.com/abc", "key1", "auth1", "Kitchen tablet")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sub.ID == 0 || sub.DeviceName != "Kitchen tablet" {
		t.Errorf("sub = %+v", sub)
	}

	again, err := ps.CreateSubscription("https://push.example.com/abc", "key2", "auth2", "Hallway")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if again.ID != sub.ID {
		t.Errorf("upsert id = %d, want %d", again.ID, sub.ID)
	}
	if again.P256dhKey != "key2" || again.DeviceName != "Hallway" {
		t.Errorf("upsert did not update keys: %+v", again)
	}

	subs, err := ps.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 {
		t.Errorf("len = %d, want 1", len(subs))
	}
}

func TestPushSubscriptionDelete(t *testing.T) {
	ps := setupPushTestDB(t)

	a, _ := ps.CreateSubscription("https://push.example.com/a", "k", "a", "")
	ps.CreateSubscription("https://push.example.com/b", "k", "a", "")

	if err := ps.DeleteSubscription(a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := ps.GetByID(a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("got = %+v, want nil", got)
	}

	if err := ps.DeleteByEndpoint("https://push.example.com/b"); err != nil {
		t.Fatalf("delete by endpoint: %v", err)
	}
	subs, _ := ps.List()
	if len(subs) != 0 {
		t.Errorf("len = %d, want 0", len(subs))
	}
}
