package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"DaryoAI/models"
	"DaryoAI/pkg/database"

	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: "sqlite", DSN: ":memory:"}, true)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	return db
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db, 0, nil)
	ctx := context.Background()

	c1, conv1, err := s.GetOrCreate(ctx, ClientInfo{ExternalID: "u-1", Name: "Ali", Email: "ali@example.com"})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if c1.ExternalID != "u-1" || c1.Name != "Ali" || conv1.ClientID != c1.ID {
		t.Fatalf("unexpected client/conversation %+v %+v", c1, conv1)
	}
	c2, conv2, err := s.GetOrCreate(ctx, ClientInfo{ExternalID: "u-1", Name: "Other"})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if c2.ID != c1.ID || conv2.ID != conv1.ID || c2.Name != "Ali" {
		t.Fatalf("expected the same rows, got %+v %+v", c2, conv2)
	}
	var n int64
	db.Model(&models.Conversation{}).Count(&n)
	if n != 1 {
		t.Fatalf("expected one conversation, got %d", n)
	}
}

func TestGetOrCreateRespectsClientCap(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db, 2, nil)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if _, _, err := s.GetOrCreate(ctx, ClientInfo{ExternalID: id}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if _, _, err := s.GetOrCreate(ctx, ClientInfo{ExternalID: "c"}); !errors.Is(err, ErrClientLimitReached) {
		t.Fatalf("expected ErrClientLimitReached, got %v", err)
	}
	var n int64
	db.Model(&models.Client{}).Count(&n)
	if n != 2 {
		t.Fatalf("rejected client must be removed, have %d clients", n)
	}
	// existing clients keep working at the cap
	if _, _, err := s.GetOrCreate(ctx, ClientInfo{ExternalID: "a"}); err != nil {
		t.Fatalf("existing client at cap: %v", err)
	}
}

func TestFindByExternalID(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db, 0, nil)
	ctx := context.Background()

	if _, _, err := s.FindByExternalID(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	lonely := models.Client{ExternalID: "lonely"}
	db.Create(&lonely)
	c, conv, err := s.FindByExternalID(ctx, "lonely")
	if !errors.Is(err, ErrNotFound) || c == nil || conv != nil {
		t.Fatalf("expected client without conversation, got %v %v %v", c, conv, err)
	}

	s.GetOrCreate(ctx, ClientInfo{ExternalID: "u-2"})
	c, conv, err = s.FindByExternalID(ctx, "u-2")
	if err != nil || conv == nil || conv.ClientID != c.ID {
		t.Fatalf("unexpected result %v %v %v", c, conv, err)
	}
}

func TestMessagesAreAscending(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db, 0, nil)
	ctx := context.Background()
	_, conv, _ := s.GetOrCreate(ctx, ClientInfo{ExternalID: "u"})
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	s.AppendClientMessage(ctx, conv.ID, "second", t0.Add(time.Minute))
	s.AppendClientMessage(ctx, conv.ID, "first", t0)
	s.AppendAIMessage(ctx, conv.ID, "third", t0.Add(2*time.Minute))

	msgs, err := s.Messages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 3 || msgs[0].Content != "first" || msgs[1].Content != "second" || msgs[2].Sender != models.SenderAI {
		t.Fatalf("unexpected order %+v", msgs)
	}
}

func TestRecentHistoryWindow(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db, 0, nil)
	ctx := context.Background()
	_, conv, _ := s.GetOrCreate(ctx, ClientInfo{ExternalID: "u"})
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	// never opened, no messages: empty, window opened at t0
	got, err := s.RecentHistory(ctx, conv, t0)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty history, got %v err=%v", got, err)
	}
	var stored models.Conversation
	db.First(&stored, conv.ID)
	if stored.LastRefreshed == nil || !stored.LastRefreshed.Equal(t0) {
		t.Fatalf("window start must be persisted, got %v", stored.LastRefreshed)
	}

	s.AppendClientMessage(ctx, conv.ID, "q1", t0.Add(time.Minute))
	s.AppendAIMessage(ctx, conv.ID, "a1", t0.Add(2*time.Minute))
	s.AppendClientMessage(ctx, conv.ID, "q2", t0.Add(30*time.Minute))

	// inside the window: everything since t0
	got, _ = s.RecentHistory(ctx, conv, t0.Add(time.Hour))
	if len(got) != 3 || got[0].Content != "q1" || got[2].Content != "q2" {
		t.Fatalf("expected full window, got %+v", got)
	}

	// exactly two hours later the window resets to the latest client message
	reset := t0.Add(HistoryWindow)
	got, _ = s.RecentHistory(ctx, conv, reset)
	if len(got) != 1 || got[0].Content != "q2" {
		t.Fatalf("expected only the latest client message, got %+v", got)
	}
	if !conv.LastRefreshed.Equal(reset) {
		t.Fatalf("in-memory window start not advanced: %v", conv.LastRefreshed)
	}

	// messages before the new window start are gone from later reads
	s.AppendClientMessage(ctx, conv.ID, "q3", reset.Add(time.Minute))
	got, _ = s.RecentHistory(ctx, conv, reset.Add(2*time.Minute))
	if len(got) != 1 || got[0].Content != "q3" {
		t.Fatalf("expected only messages after the reset, got %+v", got)
	}
}

func TestListConversationsAndSetMuhbir(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db, 0, nil)
	ctx := context.Background()
	c, conv, _ := s.GetOrCreate(ctx, ClientInfo{ExternalID: "rep", Name: "Reporter"})
	s.AppendClientMessage(ctx, conv.ID, "hi", time.Now())

	rows, total, err := s.ListConversations(ctx, 0, 10)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if total != 1 || len(rows) != 1 || rows[0].ExternalID != "rep" || rows[0].MessageCount != 1 {
		t.Fatalf("unexpected rows %+v total=%d", rows, total)
	}

	updated, err := s.SetMuhbir(ctx, c.ID, true)
	if err != nil || !updated.IsMuhbir {
		t.Fatalf("SetMuhbir: %+v %v", updated, err)
	}
	loaded, err := s.Conversation(ctx, conv.ID)
	if err != nil || !loaded.Client.IsMuhbir {
		t.Fatalf("expected muhbir client on conversation, got %+v %v", loaded, err)
	}
	if _, err := s.SetMuhbir(ctx, 999, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
