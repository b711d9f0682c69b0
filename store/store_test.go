package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/chatkit/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate; a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestConversationRoundTrip(t *testing.T) {
	db := testDB(t)

	conv := &models.Conversation{
		TopicID:   "t1",
		Name:      "general",
		UpdatedAt: 100,
		Sticky:    true,
	}
	if err := db.SaveConversation(conv); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetConversation("t1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "general" || !got.Sticky || got.UpdatedAt != 100 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.CachedAt == 0 {
		t.Error("CachedAt not stamped on save")
	}

	if _, err := db.GetConversation("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing row error = %v, want ErrNotFound", err)
	}
}

func TestCorruptRowIsStorageError(t *testing.T) {
	db := testDB(t)

	if _, err := db.Exec(
		`INSERT INTO conversations (partition, key, value, sort_by) VALUES ('', 't1', 'not json', 1)`,
	); err != nil {
		t.Fatal(err)
	}

	_, err := db.GetConversation("t1")
	if !errors.Is(err, ErrStorage) {
		t.Errorf("corrupt row error = %v, want ErrStorage", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("corrupt row must not look like a miss")
	}
}

func TestMergeConversationPreservesNewerLocalState(t *testing.T) {
	db := testDB(t)

	local := &models.Conversation{
		TopicID:       "t1",
		LastSeq:       10,
		LastReadSeq:   8,
		LastSenderID:  "alice",
		LastMessage:   &models.Content{Type: models.ContentTypeText, Text: "newest"},
		LastMessageAt: 500,
		UpdatedAt:     500,
		Tags:          []models.Tag{{ID: "work"}},
		Extra:         map[string]any{"a": "1", "b": "2"},
	}
	if err := db.SaveConversation(local); err != nil {
		t.Fatal(err)
	}

	// Server page that lags behind the locally observed state.
	incoming := &models.Conversation{
		TopicID:   "t1",
		LastSeq:   7,
		UpdatedAt: 400,
		Extra:     map[string]any{"b": "3", "c": "4"},
	}
	merged, err := db.MergeConversation(incoming)
	if err != nil {
		t.Fatal(err)
	}

	if merged.LastSeq != 10 {
		t.Errorf("LastSeq = %d, want 10 (stored copy is ahead)", merged.LastSeq)
	}
	if merged.LastMessage == nil || merged.LastMessage.Text != "newest" {
		t.Error("last message fields must survive a stale page")
	}
	if merged.UpdatedAt != 500 {
		t.Errorf("UpdatedAt = %d, want 500 (never decreases)", merged.UpdatedAt)
	}
	if merged.LastReadSeq != 8 {
		t.Errorf("LastReadSeq = %d, want 8", merged.LastReadSeq)
	}
	if merged.Unread != 2 {
		t.Errorf("Unread = %d, want 2", merged.Unread)
	}
	if len(merged.Tags) != 1 || merged.Tags[0].ID != "work" {
		t.Error("tags must be kept when the incoming record carries none")
	}
	// Extra merges per key: b overwritten, a kept, c added.
	if merged.Extra["a"] != "1" || merged.Extra["b"] != "3" || merged.Extra["c"] != "4" {
		t.Errorf("extra merge = %v", merged.Extra)
	}
}

func TestMergeConversationTagsReplaceWhole(t *testing.T) {
	db := testDB(t)

	if err := db.SaveConversation(&models.Conversation{
		TopicID: "t1",
		Tags:    []models.Tag{{ID: "a"}, {ID: "b"}},
	}); err != nil {
		t.Fatal(err)
	}

	merged, err := db.MergeConversation(&models.Conversation{
		TopicID: "t1",
		Tags:    []models.Tag{{ID: "c"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(merged.Tags) != 1 || merged.Tags[0].ID != "c" {
		t.Errorf("tags = %v, want whole-list replace to [c]", merged.Tags)
	}
}

func TestApplyChatToConversationAtomicAdvance(t *testing.T) {
	db := testDB(t)

	req := &models.ChatRequest{
		Type:      models.RequestTypeChat,
		TopicID:   "t1",
		ChatID:    "m1",
		Seq:       3,
		Attendee:  "bob",
		CreatedAt: 1000,
		Content:   &models.Content{Type: models.ContentTypeText, Text: "hi"},
	}
	conv, err := db.ApplyChatToConversation(req, true)
	if err != nil {
		t.Fatal(err)
	}
	if conv.LastSeq != 3 || conv.LastMessage == nil || conv.LastMessage.Text != "hi" {
		t.Errorf("conversation not advanced: %+v", conv)
	}
	if conv.UpdatedAt != 1000 {
		t.Errorf("UpdatedAt = %d, want 1000", conv.UpdatedAt)
	}
	if conv.Unread != 3 {
		t.Errorf("Unread = %d, want 3", conv.Unread)
	}

	// An older frame must not roll the denormalized fields back.
	stale := &models.ChatRequest{
		Type: models.RequestTypeChat, TopicID: "t1", ChatID: "m0",
		Seq: 2, CreatedAt: 900,
		Content: &models.Content{Type: models.ContentTypeText, Text: "old"},
	}
	conv, err = db.ApplyChatToConversation(stale, true)
	if err != nil {
		t.Fatal(err)
	}
	if conv.LastSeq != 3 || conv.LastMessage.Text != "hi" {
		t.Errorf("stale frame rolled conversation back: %+v", conv)
	}
}

func TestSetConversationReadZeroesUnread(t *testing.T) {
	db := testDB(t)

	req := &models.ChatRequest{
		Type: models.RequestTypeChat, TopicID: "t1", ChatID: "m1",
		Seq: 5, CreatedAt: 100,
		Content: &models.Content{Type: models.ContentTypeText, Text: "x"},
	}
	if _, err := db.ApplyChatToConversation(req, true); err != nil {
		t.Fatal(err)
	}

	conv, err := db.SetConversationRead("t1")
	if err != nil {
		t.Fatal(err)
	}
	if conv.Unread != 0 || conv.LastReadSeq != 5 {
		t.Errorf("read mark: unread=%d lastReadSeq=%d", conv.Unread, conv.LastReadSeq)
	}
}

func TestUnreadTotal(t *testing.T) {
	db := testDB(t)

	for i, unread := range []int64{2, 0, 3} {
		conv := &models.Conversation{
			TopicID:     "t" + string(rune('a'+i)),
			LastSeq:     unread,
			LastReadSeq: 0,
			UpdatedAt:   int64(i + 1),
		}
		if _, err := db.MergeConversation(conv); err != nil {
			t.Fatal(err)
		}
	}

	total, err := db.UnreadTotal(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 {
		t.Errorf("unread total = %d, want 5", total)
	}
}

func TestQueryConversationsDescendingWithCursor(t *testing.T) {
	db := testDB(t)

	for i := int64(1); i <= 10; i++ {
		conv := &models.Conversation{TopicID: topicID(i), UpdatedAt: i}
		if err := db.SaveConversation(conv); err != nil {
			t.Fatal(err)
		}
	}

	page, err := db.QueryConversations(0, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 4 || page[0].UpdatedAt != 10 || page[3].UpdatedAt != 7 {
		t.Fatalf("first page wrong: %d items, bounds %d..%d",
			len(page), page[0].UpdatedAt, page[len(page)-1].UpdatedAt)
	}

	// Cursor is exclusive: the next page starts strictly below it.
	page, err = db.QueryConversations(page[3].UpdatedAt, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 4 || page[0].UpdatedAt != 6 {
		t.Fatalf("second page wrong: %d items, head %d", len(page), page[0].UpdatedAt)
	}
}

func TestFilterConversationsCancelledMidScan(t *testing.T) {
	db := testDB(t)

	for i := int64(1); i <= 50; i++ {
		if err := db.SaveConversation(&models.Conversation{TopicID: topicID(i), UpdatedAt: i}); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	seen := 0
	_, err := db.FilterConversations(ctx, 0, 100, func(c *models.Conversation) bool {
		seen++
		if seen == 5 {
			cancel()
		}
		return true
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if seen > 6 {
		t.Errorf("predicate ran %d times after cancellation", seen)
	}
}

func TestFilterConversationsStopsAtLimit(t *testing.T) {
	db := testDB(t)

	for i := int64(1); i <= 20; i++ {
		if err := db.SaveConversation(&models.Conversation{
			TopicID:   topicID(i),
			UpdatedAt: i,
			Sticky:    i%2 == 0,
		}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.FilterConversations(context.Background(), 0, 3, func(c *models.Conversation) bool {
		return c.Sticky
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d matches, want 3", len(got))
	}
	// Descending by updatedAt: 20, 18, 16.
	if got[0].UpdatedAt != 20 || got[2].UpdatedAt != 16 {
		t.Errorf("matches out of order: %d..%d", got[0].UpdatedAt, got[2].UpdatedAt)
	}
}

func TestPruneConversationsKeepsNewest(t *testing.T) {
	db := testDB(t)

	for i := int64(1); i <= 10; i++ {
		if err := db.SaveConversation(&models.Conversation{TopicID: topicID(i), UpdatedAt: i}); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.PruneConversations(3); err != nil {
		t.Fatal(err)
	}

	remaining, err := db.QueryConversations(0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 3 {
		t.Fatalf("kept %d rows, want 3", len(remaining))
	}
	if remaining[0].UpdatedAt != 10 || remaining[2].UpdatedAt != 8 {
		t.Errorf("pruned the wrong rows: %d..%d", remaining[0].UpdatedAt, remaining[2].UpdatedAt)
	}
}

func TestRemoveConversationLeavesTombstone(t *testing.T) {
	db := testDB(t)

	if err := db.SaveConversation(&models.Conversation{TopicID: "t1", UpdatedAt: 1}); err != nil {
		t.Fatal(err)
	}
	if err := db.RemoveConversation("t1"); err != nil {
		t.Fatal(err)
	}

	if _, err := db.GetConversation("t1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("row survived removal: %v", err)
	}
	dead, err := db.HasTombstone("t1", 10*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !dead {
		t.Error("tombstone missing after removal")
	}
	// An expired tombstone no longer blocks resurrection.
	dead, err = db.HasTombstone("t1", -time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if dead {
		t.Error("expired tombstone still reported")
	}
}

func TestUserStubNeverDowngradesConfirmed(t *testing.T) {
	db := testDB(t)

	if err := db.SaveUser(&models.User{UserID: "u1", Name: "Alice"}); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveUserStub(&models.User{UserID: "u1"}); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetUser("u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.IsPartial || got.Name != "Alice" {
		t.Errorf("confirmed record downgraded: %+v", got)
	}
}

func TestKVRoundTrip(t *testing.T) {
	db := testDB(t)

	if err := db.SetValue("cursor", "42"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetValue("cursor", "43"); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetValue("cursor")
	if err != nil {
		t.Fatal(err)
	}
	if got != "43" {
		t.Errorf("value = %q, want 43", got)
	}
	if err := db.DeleteValue("cursor"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetValue("cursor"); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted key error = %v, want ErrNotFound", err)
	}
}

func TestIsCacheExpired(t *testing.T) {
	now := time.Now().UnixMilli()
	if IsCacheExpired(now, time.Minute) {
		t.Error("fresh stamp reported expired")
	}
	if !IsCacheExpired(now-2*60*1000, time.Minute) {
		t.Error("old stamp reported fresh")
	}
	if !IsCacheExpired(0, time.Minute) {
		t.Error("zero stamp must count as expired")
	}
}

func topicID(i int64) string {
	return fmt.Sprintf("topic-%d", i)
}
