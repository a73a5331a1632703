// Package consolidate discovers which conversations are about the same
// thing and folds them into consolidated bundles.
//
// Everything this package writes (embeddings, relationships, topics) is
// derived from message data and can be deleted and rebuilt at any time;
// a cancelled run leaves valid, resumable partial progress, not
// corruption.
package consolidate

import (
	"context"
	"fmt"
	"sort"

	"github.com/corpora/internal/corpus"
	"github.com/corpora/internal/embed"
	"github.com/rs/zerolog"
)

// Classification thresholds. Similarity at or above similarCutoff is a
// "similar" edge; anything recorded below that is "related".
const (
	similarCutoff = 0.90

	// DefaultThreshold is the floor below which a pair is not recorded.
	DefaultThreshold = 0.70
)

// Service computes conversation-level embeddings, builds the similarity
// graph, and merges related conversations. Callers own the store handle
// and the service lifetime — there is no package-level instance.
type Service struct {
	store     *corpus.Store
	embedder  embed.Embedder
	log       zerolog.Logger
	threshold float64
}

// New creates a Service with the default recording threshold.
func New(store *corpus.Store, embedder embed.Embedder, log zerolog.Logger) *Service {
	return &Service{
		store:     store,
		embedder:  embedder,
		log:       log,
		threshold: DefaultThreshold,
	}
}

// SetThreshold overrides the minimum similarity for recording a
// relationship. Values outside (0, 1] are ignored.
func (s *Service) SetThreshold(t float64) {
	if t > 0 && t <= 1 {
		s.threshold = t
	}
}

// EmbedResult reports a bulk embedding pass.
type EmbedResult struct {
	Embedded int `json:"embedded"`
	Failed   int `json:"failed"`
}

// EmbedAll lazily generates embeddings for every message that lacks one
// for the current model. Provider failures are logged and the message is
// skipped — they exclude that message from similarity computation but
// never abort the run. Cancellation is honored between messages.
func (s *Service) EmbedAll(ctx context.Context) (EmbedResult, error) {
	var res EmbedResult

	pending, err := s.store.MessagesWithoutEmbedding(s.embedder.ModelName())
	if err != nil {
		return res, err
	}

	for _, msg := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		vec, err := s.embedder.Embed(ctx, msg.Text)
		if err != nil {
			s.log.Warn().Err(err).Int64("message_id", msg.ID).Msg("embedding failed, skipping message")
			res.Failed++
			continue
		}
		if err := s.store.PutEmbedding(msg.ID, s.embedder.ModelName(), vec); err != nil {
			return res, err
		}
		res.Embedded++
	}

	s.log.Info().Int("embedded", res.Embedded).Int("failed", res.Failed).Msg("embedding pass complete")
	return res, nil
}

// conversationEmbeddings returns the per-dimension mean of each
// conversation's message embeddings. Conversations with no embedded
// messages are absent from the map and thereby excluded from discovery.
func (s *Service) conversationEmbeddings() (map[int64][]float32, error) {
	rows, err := s.store.AllEmbeddings(s.embedder.ModelName())
	if err != nil {
		return nil, err
	}

	byConv := make(map[int64][][]float32)
	for _, e := range rows {
		byConv[e.ConversationID] = append(byConv[e.ConversationID], e.Vector)
	}

	means := make(map[int64][]float32, len(byConv))
	for convID, vecs := range byConv {
		if mean := embed.Mean(vecs); mean != nil {
			means[convID] = mean
		}
	}
	return means, nil
}

// DiscoverResult reports a relationship discovery pass.
type DiscoverResult struct {
	PairsScanned int `json:"pairs_scanned"`
	Recorded     int `json:"recorded"`
}

// DiscoverRelationships computes cosine similarity for every pair of
// conversation embeddings and upserts classified edges. This is an O(n²)
// full scan — the known scalability ceiling of the design, acceptable at
// thousands of conversations.
//
// Repeated runs converge to the same relationship set (upsert on the
// pair+type key). Cancellation is checked between pairs, so a cancel
// takes effect within one unit of work.
func (s *Service) DiscoverRelationships(ctx context.Context) (DiscoverResult, error) {
	var res DiscoverResult

	means, err := s.conversationEmbeddings()
	if err != nil {
		return res, err
	}

	ids := make([]int64, 0, len(means))
	for id := range means {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			res.PairsScanned++

			sim := embed.Cosine(means[ids[i]], means[ids[j]])
			relType := s.classify(sim)
			if relType == "" {
				continue
			}

			meta := fmt.Sprintf(`{"model":%q}`, s.embedder.ModelName())
			if err := s.store.UpsertRelationship(ids[i], ids[j], relType, sim, meta); err != nil {
				return res, err
			}
			res.Recorded++
		}
	}

	s.log.Info().
		Int("pairs", res.PairsScanned).
		Int("recorded", res.Recorded).
		Float64("threshold", s.threshold).
		Msg("relationship discovery complete")
	return res, nil
}

// classify maps a similarity to a relationship type, or "" when the pair
// should not be recorded. Only similar/related are ever produced;
// followup/reference remain caller-set values.
func (s *Service) classify(sim float64) string {
	switch {
	case sim < s.threshold:
		return ""
	case sim >= similarCutoff:
		return corpus.RelSimilar
	default:
		return corpus.RelRelated
	}
}

// Bundle is one consolidated context: a cluster of related conversations
// with their messages unioned and re-sorted, and representative topics.
type Bundle struct {
	Conversations []int64          `json:"conversations"`
	SourceIDs     []string         `json:"source_ids"`
	Messages      []corpus.Message `json:"messages"`
	Topics        []string         `json:"topics"`
}

// Consolidate walks all conversations and folds each unvisited one
// together with its direct neighbors (one hop, not a transitive closure)
// into a bundle. Conversations without relationships — including those
// with no embeddable messages — still appear, unconsolidated.
func (s *Service) Consolidate(ctx context.Context) ([]Bundle, error) {
	ids, err := s.store.AllConversationIDs()
	if err != nil {
		return nil, err
	}

	visited := make(map[int64]bool)
	var bundles []Bundle

	for _, id := range ids {
		if visited[id] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return bundles, err
		}

		cluster := []int64{id}
		visited[id] = true

		rels, err := s.store.RelationshipsFor(id, s.threshold)
		if err != nil {
			return bundles, err
		}
		for _, rel := range rels {
			other := rel.ConversationA
			if other == id {
				other = rel.ConversationB
			}
			if !visited[other] {
				visited[other] = true
				cluster = append(cluster, other)
			}
		}

		bundle, err := s.buildBundle(cluster)
		if err != nil {
			return bundles, err
		}
		bundles = append(bundles, bundle)
	}

	s.log.Info().Int("conversations", len(ids)).Int("bundles", len(bundles)).Msg("consolidation complete")
	return bundles, nil
}

// buildBundle unions the cluster's messages and sources, extracts topics,
// and persists the topic links.
func (s *Service) buildBundle(cluster []int64) (Bundle, error) {
	bundle := Bundle{Conversations: cluster}

	seenSource := make(map[string]bool)
	for _, convID := range cluster {
		conv, err := s.store.GetConversation(convID)
		if err != nil {
			return bundle, err
		}
		if !seenSource[conv.SourceID] {
			seenSource[conv.SourceID] = true
			bundle.SourceIDs = append(bundle.SourceIDs, conv.SourceID)
		}

		msgs, err := s.store.ConversationMessages(convID)
		if err != nil {
			return bundle, err
		}
		bundle.Messages = append(bundle.Messages, msgs...)
	}

	sort.SliceStable(bundle.Messages, func(i, j int) bool {
		if bundle.Messages[i].CreatedAt != bundle.Messages[j].CreatedAt {
			return bundle.Messages[i].CreatedAt < bundle.Messages[j].CreatedAt
		}
		return bundle.Messages[i].ID < bundle.Messages[j].ID
	})

	texts := make([]string, len(bundle.Messages))
	for i, m := range bundle.Messages {
		texts[i] = m.Text
	}
	bundle.Topics = ExtractTopics(texts, topicCount)

	if err := s.persistTopics(bundle); err != nil {
		return bundle, err
	}
	return bundle, nil
}

// persistTopics records the bundle's topics and links each one to the
// messages that mention it.
func (s *Service) persistTopics(bundle Bundle) error {
	for _, name := range bundle.Topics {
		topicID, err := s.store.InsertTopic(name, "")
		if err != nil {
			return err
		}
		for _, msg := range bundle.Messages {
			relevance := topicRelevance(msg.Text, name)
			if relevance <= 0 {
				continue
			}
			if err := s.store.LinkMessageTopic(msg.ID, topicID, relevance); err != nil {
				return err
			}
		}
	}
	return nil
}
