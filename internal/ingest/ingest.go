// Package ingest is the ingestion boundary: it turns vendor export files
// into normalized records and writes them through the corpus store's
// dedup-safe insert path. Ingestion is always partial-failure-tolerant;
// a malformed record is skipped and reported, never fatal.
package ingest

import (
	"context"
	"fmt"
	"os"

	"github.com/corpora/internal/corpus"
	"github.com/corpora/internal/identity"
	"github.com/rs/zerolog"
)

// Record is one normalized message turn, vendor shape already stripped.
type Record struct {
	Vendor         string `json:"vendor"`
	SourceID       string `json:"source_id"`
	ConversationID string `json:"conversation_id"` // vendor-native id, may be empty
	Role           string `json:"role"`
	CreatedAt      int64  `json:"created_at"` // epoch ms
	Title          string `json:"title"`
	Text           string `json:"text"`
}

// IngestError describes one skipped record.
type IngestError struct {
	Source    string `json:"source"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// Result reports a batch: how many conversations were touched, how many
// messages were actually inserted (dedup hits don't count), and every
// record that had to be skipped.
type Result struct {
	Conversations int           `json:"conversations"`
	Messages      int           `json:"messages"`
	Errors        []IngestError `json:"errors,omitempty"`
}

// Ingestor writes normalized records into a corpus store.
type Ingestor struct {
	store *corpus.Store
	log   zerolog.Logger
}

func New(store *corpus.Store, log zerolog.Logger) *Ingestor {
	return &Ingestor{store: store, log: log}
}

// IngestRecords writes a batch of records. Each record resolves to a
// canonical conversation (stable across re-imports of the same export)
// and a dedup-keyed message insert, so running the same batch twice
// converges to the same row set. Cancellation is checked per record.
func (in *Ingestor) IngestRecords(ctx context.Context, recs []Record) (Result, error) {
	var res Result

	// canonical external id -> conversation row id, for this batch
	convRows := make(map[string]int64)
	touched := make(map[int64]bool)

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if reason := validate(rec); reason != "" {
			res.Errors = append(res.Errors, IngestError{
				Source:    rec.SourceID,
				Message:   reason,
				Timestamp: rec.CreatedAt,
			})
			in.log.Warn().Str("source", rec.SourceID).Str("reason", reason).Msg("skipping record")
			continue
		}

		canonical := identity.ConversationID(rec.Vendor, rec.ConversationID, rec.Title)
		convID, ok := convRows[canonical]
		if !ok {
			var err error
			convID, err = in.store.InsertConversation(corpus.ConversationFields{
				SourceID:   rec.SourceID,
				ExternalID: canonical,
				Title:      rec.Title,
				StartedAt:  rec.CreatedAt,
				UpdatedAt:  rec.CreatedAt,
			})
			if err != nil {
				res.Errors = append(res.Errors, IngestError{
					Source:    rec.SourceID,
					Message:   err.Error(),
					Timestamp: rec.CreatedAt,
				})
				continue
			}
			convRows[canonical] = convID
		}

		_, inserted, err := in.store.InsertMessage(convID, rec.Role, rec.CreatedAt, rec.Text)
		if err != nil {
			res.Errors = append(res.Errors, IngestError{
				Source:    rec.SourceID,
				Message:   err.Error(),
				Timestamp: rec.CreatedAt,
			})
			continue
		}
		touched[convID] = true
		if inserted {
			res.Messages++
			if err := in.store.TouchConversation(convID, rec.CreatedAt); err != nil {
				return res, err
			}
		}
	}

	for convID := range touched {
		if _, err := in.store.RefreshContentHash(convID); err != nil {
			return res, err
		}
	}
	res.Conversations = len(touched)

	in.log.Info().
		Int("conversations", res.Conversations).
		Int("messages", res.Messages).
		Int("errors", len(res.Errors)).
		Msg("ingest batch complete")
	return res, nil
}

// IngestFile decodes one vendor export file and ingests it under the
// given source.
func (in *Ingestor) IngestFile(ctx context.Context, path, vendor, sourceID string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: read %s: %w", path, err)
	}

	recs, err := Decode(vendor, data)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: decode %s: %w", path, err)
	}
	for i := range recs {
		recs[i].SourceID = sourceID
	}
	return in.IngestRecords(ctx, recs)
}

// validate returns a human-readable reason when a record is malformed,
// or "" when it is ingestible.
func validate(rec Record) string {
	switch {
	case !corpus.ValidVendor(rec.Vendor):
		return fmt.Sprintf("unknown vendor %q", rec.Vendor)
	case rec.SourceID == "":
		return "missing source id"
	case !corpus.ValidRole(rec.Role):
		return fmt.Sprintf("unknown role %q", rec.Role)
	case rec.Text == "":
		return "empty message text"
	case rec.CreatedAt < 0:
		return "negative timestamp"
	}
	return ""
}

// Decode dispatches to the vendor-specific decoder.
func Decode(vendor string, data []byte) ([]Record, error) {
	switch vendor {
	case corpus.VendorChatGPT:
		return DecodeChatGPT(data)
	case corpus.VendorClaude:
		return DecodeClaude(data)
	case corpus.VendorGemini:
		return DecodeGemini(data)
	case corpus.VendorGrok:
		return DecodeGrok(data)
	default:
		return nil, fmt.Errorf("no decoder for vendor %q", vendor)
	}
}
