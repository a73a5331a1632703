package corpus_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/corpora/internal/corpus"
)

// newTestStore creates a Store backed by a temp directory for isolation.
func newTestStore(t *testing.T) *corpus.Store {
	t.Helper()
	s, err := corpus.Open(corpus.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// newTestSource registers a source for rows to hang off.
func newTestSource(t *testing.T, s *corpus.Store, vendor string) corpus.Source {
	t.Helper()
	src, err := s.RegisterSource(vendor, "/exports/"+vendor, vendor+" export")
	if err != nil {
		t.Fatalf("register source: %v", err)
	}
	return src
}

// ─── Open / Reopen ──────────────────────────────────────────────────────────

func TestOpen_CreatesDBFile(t *testing.T) {
	dir := t.TempDir()
	s, err := corpus.Open(corpus.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(dir, "corpus.db")); err != nil {
		t.Errorf("db file not created: %v", err)
	}
}

func TestOpen_IdempotentReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := corpus.Config{DataDir: dir}

	s1, err := corpus.Open(cfg)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	src, err := s1.RegisterSource(corpus.VendorClaude, "/exports/claude", "claude")
	if err != nil {
		t.Fatalf("register source: %v", err)
	}
	s1.Close()

	s2, err := corpus.Open(cfg)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()

	got, err := s2.GetSource(src.ID)
	if err != nil {
		t.Fatalf("source not found after reopen: %v", err)
	}
	if got.Vendor != corpus.VendorClaude {
		t.Errorf("Vendor = %q, want %q", got.Vendor, corpus.VendorClaude)
	}
}

// ─── Sources ────────────────────────────────────────────────────────────────

func TestRegisterSource_RejectsUnknownVendor(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.RegisterSource("copilot", "/exports", "nope"); err == nil {
		t.Fatal("expected error for unknown vendor")
	}
}

func TestUpdateSourceLabel(t *testing.T) {
	s := newTestStore(t)
	src := newTestSource(t, s, corpus.VendorGrok)

	if err := s.UpdateSourceLabel(src.ID, "work grok", "#ff8800"); err != nil {
		t.Fatalf("update label: %v", err)
	}
	got, err := s.GetSource(src.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Label != "work grok" || got.Color != "#ff8800" {
		t.Errorf("label/color = %q/%q, want updated values", got.Label, got.Color)
	}
}

// ─── Conversations ──────────────────────────────────────────────────────────

func TestInsertConversation_InsertOrIgnore(t *testing.T) {
	s := newTestStore(t)
	src := newTestSource(t, s, corpus.VendorChatGPT)

	fields := corpus.ConversationFields{
		SourceID:   src.ID,
		ExternalID: "chatgpt:abcd1234",
		Title:      "Refund policy",
		StartedAt:  1000,
		UpdatedAt:  2000,
	}

	id1, err := s.InsertConversation(fields)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	id2, err := s.InsertConversation(fields)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if id1 != id2 {
		t.Errorf("re-insert returned new id: %d != %d", id1, id2)
	}

	convs, err := s.SelectConversations(corpus.ConversationFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 {
		t.Errorf("conversation count = %d, want 1", len(convs))
	}
}

func TestInsertConversation_MissingSourceIsError(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.InsertConversation(corpus.ConversationFields{Title: "orphan"}); err == nil {
		t.Fatal("expected error for missing source id")
	}
}

func TestInsertConversation_ContentHashFallback(t *testing.T) {
	s := newTestStore(t)
	src := newTestSource(t, s, corpus.VendorGemini)

	// First import carried no stable external id.
	id1, err := s.InsertConversation(corpus.ConversationFields{
		SourceID:    src.ID,
		Title:       "Trip planning",
		StartedAt:   1000,
		UpdatedAt:   1000,
		ContentHash: "deadbeef",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Second import, still no external id — resolved by content hash.
	id2, err := s.InsertConversation(corpus.ConversationFields{
		SourceID:    src.ID,
		Title:       "Trip planning",
		StartedAt:   1000,
		UpdatedAt:   1000,
		ContentHash: "deadbeef",
	})
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Errorf("content hash fallback did not resolve: %d != %d", id1, id2)
	}

	// A different hash is a genuinely new conversation.
	id3, err := s.InsertConversation(corpus.ConversationFields{
		SourceID:    src.ID,
		Title:       "Trip planning",
		StartedAt:   1000,
		UpdatedAt:   1000,
		ContentHash: "cafebabe",
	})
	if err != nil {
		t.Fatal(err)
	}
	if id3 == id1 {
		t.Error("distinct content hash resolved to same conversation")
	}
}

func TestInsertConversation_EmptyExternalIDsDoNotCollide(t *testing.T) {
	s := newTestStore(t)
	src := newTestSource(t, s, corpus.VendorClaude)

	id1, err := s.InsertConversation(corpus.ConversationFields{
		SourceID: src.ID, Title: "one", ContentHash: "h1",
	})
	if err != nil {
		t.Fatal(err)
	}
	id2, err := s.InsertConversation(corpus.ConversationFields{
		SourceID: src.ID, Title: "two", ContentHash: "h2",
	})
	if err != nil {
		t.Fatal(err)
	}
	if id1 == id2 {
		t.Error("two conversations without external ids collapsed into one")
	}
}

func TestSelectConversations_OrderAndFilters(t *testing.T) {
	s := newTestStore(t)
	src := newTestSource(t, s, corpus.VendorChatGPT)
	other := newTestSource(t, s, corpus.VendorClaude)

	older, _ := s.InsertConversation(corpus.ConversationFields{
		SourceID: src.ID, ExternalID: "c-old", Title: "Billing question", UpdatedAt: 1000,
	})
	newer, _ := s.InsertConversation(corpus.ConversationFields{
		SourceID: src.ID, ExternalID: "c-new", Title: "Go generics deep dive", UpdatedAt: 5000,
	})
	_, _ = s.InsertConversation(corpus.ConversationFields{
		SourceID: other.ID, ExternalID: "c-other", Title: "Billing dispute", UpdatedAt: 3000,
	})

	all, err := s.SelectConversations(corpus.ConversationFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("count = %d, want 3", len(all))
	}
	if all[0].ID != newer || all[2].ID != older {
		t.Error("conversations not ordered by updated_at desc")
	}

	bySource, err := s.SelectConversations(corpus.ConversationFilter{SourceID: src.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(bySource) != 2 {
		t.Errorf("source filter count = %d, want 2", len(bySource))
	}

	byTitle, err := s.SelectConversations(corpus.ConversationFilter{TitleRegex: `^billing`})
	if err != nil {
		t.Fatal(err)
	}
	if len(byTitle) != 2 {
		t.Errorf("title regex count = %d, want 2", len(byTitle))
	}

	if _, err := s.SelectConversations(corpus.ConversationFilter{TitleRegex: `([`}); err == nil {
		t.Error("invalid title regex should be an error")
	}
}

// ─── Messages ───────────────────────────────────────────────────────────────

func TestInsertMessage_DedupNoOp(t *testing.T) {
	s := newTestStore(t)
	src := newTestSource(t, s, corpus.VendorChatGPT)
	conv, _ := s.InsertConversation(corpus.ConversationFields{
		SourceID: src.ID, ExternalID: "c1", Title: "t",
	})

	id1, inserted1, err := s.InsertMessage(conv, corpus.RoleUser, 1000, "hello there")
	if err != nil {
		t.Fatal(err)
	}
	if !inserted1 {
		t.Error("first insert should report inserted")
	}

	id2, inserted2, err := s.InsertMessage(conv, corpus.RoleUser, 1000, "hello there")
	if err != nil {
		t.Fatal(err)
	}
	if inserted2 {
		t.Error("identical re-insert should be a no-op")
	}
	if id1 != id2 {
		t.Errorf("dedup returned different id: %d != %d", id1, id2)
	}

	msgs, err := s.ConversationMessages(conv)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Errorf("message count = %d, want 1", len(msgs))
	}
}

func TestInsertMessage_InvalidRole(t *testing.T) {
	s := newTestStore(t)
	src := newTestSource(t, s, corpus.VendorChatGPT)
	conv, _ := s.InsertConversation(corpus.ConversationFields{
		SourceID: src.ID, ExternalID: "c1", Title: "t",
	})

	if _, _, err := s.InsertMessage(conv, "robot", 1000, "beep"); err == nil {
		t.Fatal("expected error for invalid role")
	}
}

func TestConversationMessages_SortedOnRead(t *testing.T) {
	s := newTestStore(t)
	src := newTestSource(t, s, corpus.VendorGrok)
	conv, _ := s.InsertConversation(corpus.ConversationFields{
		SourceID: src.ID, ExternalID: "c1", Title: "t",
	})

	// Inserted out of order on purpose.
	_, _, _ = s.InsertMessage(conv, corpus.RoleAssistant, 3000, "third")
	_, _, _ = s.InsertMessage(conv, corpus.RoleUser, 1000, "first")
	_, _, _ = s.InsertMessage(conv, corpus.RoleUser, 2000, "second")

	msgs, err := s.ConversationMessages(conv)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"first", "second", "third"}
	for i, m := range msgs {
		if m.Text != want[i] {
			t.Errorf("msgs[%d].Text = %q, want %q", i, m.Text, want[i])
		}
	}
}

// Superset scenario: re-ingesting an export with one new message appended
// keeps the conversation count, adds one message, and leaves existing row
// ids untouched.
func TestReingest_SupersetExport(t *testing.T) {
	s := newTestStore(t)
	src := newTestSource(t, s, corpus.VendorChatGPT)

	ingest := func(texts []string) (int64, []int64) {
		conv, err := s.InsertConversation(corpus.ConversationFields{
			SourceID: src.ID, ExternalID: "conv-x", Title: "Conversation X",
		})
		if err != nil {
			t.Fatal(err)
		}
		var ids []int64
		for i, text := range texts {
			id, _, err := s.InsertMessage(conv, corpus.RoleUser, int64(1000*(i+1)), text)
			if err != nil {
				t.Fatal(err)
			}
			ids = append(ids, id)
		}
		return conv, ids
	}

	conv1, ids1 := ingest([]string{"alpha", "beta"})
	conv2, ids2 := ingest([]string{"alpha", "beta", "gamma"})

	if conv1 != conv2 {
		t.Errorf("conversation id changed on re-ingest: %d != %d", conv1, conv2)
	}
	for i := range ids1 {
		if ids1[i] != ids2[i] {
			t.Errorf("pre-existing message %d changed row id: %d != %d", i, ids1[i], ids2[i])
		}
	}

	stats, err := s.CorpusStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalConversations != 1 {
		t.Errorf("conversations = %d, want 1", stats.TotalConversations)
	}
	if stats.TotalMessages != 3 {
		t.Errorf("messages = %d, want 3", stats.TotalMessages)
	}
}

func TestDeleteConversation_CascadesToMessages(t *testing.T) {
	s := newTestStore(t)
	src := newTestSource(t, s, corpus.VendorClaude)
	conv, _ := s.InsertConversation(corpus.ConversationFields{
		SourceID: src.ID, ExternalID: "c1", Title: "t",
	})
	msgID, _, _ := s.InsertMessage(conv, corpus.RoleUser, 1000, "hello")
	_ = s.PutEmbedding(msgID, "test-model", []float32{1, 2, 3})

	if err := s.DeleteConversation(conv); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetMessage(msgID); err != corpus.ErrNotFound {
		t.Errorf("message survived cascade delete: err = %v", err)
	}
	if _, err := s.GetEmbedding(msgID, "test-model"); err != corpus.ErrNotFound {
		t.Errorf("embedding survived cascade delete: err = %v", err)
	}
}

// ─── Content hash ───────────────────────────────────────────────────────────

func TestRefreshContentHash(t *testing.T) {
	s := newTestStore(t)
	src := newTestSource(t, s, corpus.VendorGemini)
	conv, _ := s.InsertConversation(corpus.ConversationFields{
		SourceID: src.ID, ExternalID: "c1", Title: "t",
	})
	_, _, _ = s.InsertMessage(conv, corpus.RoleUser, 1000, "question")
	_, _, _ = s.InsertMessage(conv, corpus.RoleAssistant, 2000, "answer")

	h1, err := s.RefreshContentHash(conv)
	if err != nil {
		t.Fatal(err)
	}
	if h1 == "" {
		t.Fatal("empty content hash")
	}

	// Hash changes when content grows.
	_, _, _ = s.InsertMessage(conv, corpus.RoleUser, 3000, "followup")
	h2, err := s.RefreshContentHash(conv)
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("content hash unchanged after new message")
	}

	got, err := s.GetConversation(conv)
	if err != nil {
		t.Fatal(err)
	}
	if got.ContentHash != h2 {
		t.Errorf("stored hash = %q, want %q", got.ContentHash, h2)
	}
}

// ─── Embeddings ─────────────────────────────────────────────────────────────

func TestPutEmbedding_ReplacesNotAppends(t *testing.T) {
	s := newTestStore(t)
	src := newTestSource(t, s, corpus.VendorChatGPT)
	conv, _ := s.InsertConversation(corpus.ConversationFields{
		SourceID: src.ID, ExternalID: "c1", Title: "t",
	})
	msgID, _, _ := s.InsertMessage(conv, corpus.RoleUser, 1000, "hello")

	if err := s.PutEmbedding(msgID, "model-a", []float32{1, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := s.PutEmbedding(msgID, "model-a", []float32{0, 1, 0}); err != nil {
		t.Fatal(err)
	}

	vec, err := s.GetEmbedding(msgID, "model-a")
	if err != nil {
		t.Fatal(err)
	}
	if vec[0] != 0 || vec[1] != 1 || vec[2] != 0 {
		t.Errorf("vector = %v, want replacement [0 1 0]", vec)
	}

	all, err := s.AllEmbeddings("model-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("embedding rows = %d, want 1 (replace, not append)", len(all))
	}
	if all[0].ConversationID != conv {
		t.Errorf("embedding conversation = %d, want %d", all[0].ConversationID, conv)
	}
}

func TestMessagesWithoutEmbedding(t *testing.T) {
	s := newTestStore(t)
	src := newTestSource(t, s, corpus.VendorClaude)
	conv, _ := s.InsertConversation(corpus.ConversationFields{
		SourceID: src.ID, ExternalID: "c1", Title: "t",
	})
	m1, _, _ := s.InsertMessage(conv, corpus.RoleUser, 1000, "embedded")
	m2, _, _ := s.InsertMessage(conv, corpus.RoleUser, 2000, "pending")
	_ = s.PutEmbedding(m1, "model-a", []float32{1})

	missing, err := s.MessagesWithoutEmbedding("model-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 1 || missing[0].ID != m2 {
		t.Errorf("missing = %+v, want exactly message %d", missing, m2)
	}
}

// ─── Relationships ──────────────────────────────────────────────────────────

func TestUpsertRelationship_ConvergesOnRepeat(t *testing.T) {
	s := newTestStore(t)
	src := newTestSource(t, s, corpus.VendorChatGPT)
	a, _ := s.InsertConversation(corpus.ConversationFields{SourceID: src.ID, ExternalID: "a", Title: "a"})
	b, _ := s.InsertConversation(corpus.ConversationFields{SourceID: src.ID, ExternalID: "b", Title: "b"})

	if err := s.UpsertRelationship(a, b, corpus.RelSimilar, 0.91, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertRelationship(a, b, corpus.RelSimilar, 0.93, ""); err != nil {
		t.Fatal(err)
	}

	rels, err := s.AllRelationships()
	if err != nil {
		t.Fatal(err)
	}
	if len(rels) != 1 {
		t.Fatalf("relationship rows = %d, want 1", len(rels))
	}
	if rels[0].Score != 0.93 {
		t.Errorf("score = %v, want upserted 0.93", rels[0].Score)
	}
}

func TestRelationshipsFor_Symmetric(t *testing.T) {
	s := newTestStore(t)
	src := newTestSource(t, s, corpus.VendorChatGPT)
	a, _ := s.InsertConversation(corpus.ConversationFields{SourceID: src.ID, ExternalID: "a", Title: "a"})
	b, _ := s.InsertConversation(corpus.ConversationFields{SourceID: src.ID, ExternalID: "b", Title: "b"})
	c, _ := s.InsertConversation(corpus.ConversationFields{SourceID: src.ID, ExternalID: "c", Title: "c"})

	_ = s.UpsertRelationship(a, b, corpus.RelSimilar, 0.95, "")
	_ = s.UpsertRelationship(c, b, corpus.RelRelated, 0.82, "")

	// b appears on the right of one edge and the left of none, but both
	// edges must be visible from b.
	rels, err := s.RelationshipsFor(b, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rels) != 2 {
		t.Fatalf("relationships for b = %d, want 2", len(rels))
	}
	// Most similar first.
	if rels[0].Score < rels[1].Score {
		t.Error("relationships not ordered most-similar-first")
	}

	strong, err := s.RelationshipsFor(b, 0.9)
	if err != nil {
		t.Fatal(err)
	}
	if len(strong) != 1 || strong[0].Type != corpus.RelSimilar {
		t.Errorf("minScore filter returned %+v, want only the similar edge", strong)
	}
}

func TestUpsertRelationship_RejectsSelfEdge(t *testing.T) {
	s := newTestStore(t)
	src := newTestSource(t, s, corpus.VendorChatGPT)
	a, _ := s.InsertConversation(corpus.ConversationFields{SourceID: src.ID, ExternalID: "a", Title: "a"})
	if err := s.UpsertRelationship(a, a, corpus.RelSimilar, 1, ""); err == nil {
		t.Fatal("expected error for self-relationship")
	}
}

// ─── Topics ─────────────────────────────────────────────────────────────────

func TestInsertTopic_UniqueOnName(t *testing.T) {
	s := newTestStore(t)

	id1, err := s.InsertTopic("kubernetes", "container orchestration")
	if err != nil {
		t.Fatal(err)
	}
	id2, err := s.InsertTopic("kubernetes", "")
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Errorf("duplicate topic name created new row: %d != %d", id1, id2)
	}

	topics, err := s.ListTopics()
	if err != nil {
		t.Fatal(err)
	}
	if len(topics) != 1 {
		t.Errorf("topic count = %d, want 1", len(topics))
	}
}

// ─── Derived data lifecycle ─────────────────────────────────────────────────

func TestClearDerived(t *testing.T) {
	s := newTestStore(t)
	src := newTestSource(t, s, corpus.VendorChatGPT)
	a, _ := s.InsertConversation(corpus.ConversationFields{SourceID: src.ID, ExternalID: "a", Title: "a"})
	b, _ := s.InsertConversation(corpus.ConversationFields{SourceID: src.ID, ExternalID: "b", Title: "b"})
	msgID, _, _ := s.InsertMessage(a, corpus.RoleUser, 1000, "hello world message")

	_ = s.PutEmbedding(msgID, "m", []float32{1, 2})
	_ = s.UpsertRelationship(a, b, corpus.RelSimilar, 0.9, "")
	topicID, _ := s.InsertTopic("billing", "")
	_ = s.LinkMessageTopic(msgID, topicID, 0.5)

	if err := s.ClearDerived(); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetEmbedding(msgID, "m"); err != corpus.ErrNotFound {
		t.Error("embeddings not cleared")
	}
	rels, _ := s.AllRelationships()
	if len(rels) != 0 {
		t.Error("relationships not cleared")
	}
	topics, _ := s.ListTopics()
	if len(topics) != 0 {
		t.Error("topics not cleared")
	}

	// Core tables are untouched.
	if _, err := s.GetMessage(msgID); err != nil {
		t.Errorf("message lost during ClearDerived: %v", err)
	}
}

// ─── Stats ──────────────────────────────────────────────────────────────────

func TestCorpusStats(t *testing.T) {
	s := newTestStore(t)
	src := newTestSource(t, s, corpus.VendorChatGPT)
	conv, _ := s.InsertConversation(corpus.ConversationFields{
		SourceID: src.ID, ExternalID: "c1", Title: "t", UpdatedAt: 7777,
	})
	_, _, _ = s.InsertMessage(conv, corpus.RoleUser, 1000, "one")
	_, _, _ = s.InsertMessage(conv, corpus.RoleAssistant, 2000, "two")

	stats, err := s.CorpusStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalConversations != 1 || stats.TotalMessages != 2 {
		t.Errorf("stats = %+v, want 1 conversation / 2 messages", stats)
	}
	if len(stats.Sources) != 1 {
		t.Errorf("sources = %d, want 1", len(stats.Sources))
	}
	if stats.LastUpdated != 7777 {
		t.Errorf("last updated = %d, want 7777", stats.LastUpdated)
	}
}

// ─── Snapshot / Restore ─────────────────────────────────────────────────────

func TestSnapshotRestore_Roundtrip(t *testing.T) {
	s := newTestStore(t)
	src := newTestSource(t, s, corpus.VendorClaude)
	conv, _ := s.InsertConversation(corpus.ConversationFields{
		SourceID: src.ID, ExternalID: "c1", Title: "keep me",
	})
	_, _, _ = s.InsertMessage(conv, corpus.RoleUser, 1000, "precious data")

	snap := filepath.Join(t.TempDir(), "backup.db")
	if err := s.Snapshot(snap); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	// Mutate after the snapshot, then restore.
	if err := s.DeleteConversation(conv); err != nil {
		t.Fatal(err)
	}
	if err := s.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}

	got, err := s.GetConversation(conv)
	if err != nil {
		t.Fatalf("conversation lost after restore: %v", err)
	}
	if got.Title != "keep me" {
		t.Errorf("title = %q, want %q", got.Title, "keep me")
	}
	msgs, err := s.ConversationMessages(conv)
	if err != nil || len(msgs) != 1 {
		t.Errorf("messages after restore = %v (err %v), want 1", msgs, err)
	}
}

// ─── Dedup hash ─────────────────────────────────────────────────────────────

func TestMessageDedupHash(t *testing.T) {
	a := corpus.MessageDedupHash(corpus.RoleUser, 1000, "hello  world")
	b := corpus.MessageDedupHash(corpus.RoleUser, 1000, "hello world")
	if a != b {
		t.Error("whitespace differences should not change the dedup hash")
	}

	c := corpus.MessageDedupHash(corpus.RoleAssistant, 1000, "hello world")
	if a == c {
		t.Error("role should change the dedup hash")
	}
	d := corpus.MessageDedupHash(corpus.RoleUser, 1001, "hello world")
	if a == d {
		t.Error("timestamp should change the dedup hash")
	}
}
