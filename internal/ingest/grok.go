package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/corpora/internal/corpus"
)

// Grok export: a wrapper object holding conversations, each with a
// "responses" list of alternating human/grok turns.
type grokExport struct {
	Conversations []grokConversation `json:"conversations"`
}

type grokConversation struct {
	ConversationID string         `json:"conversation_id"`
	Title          string         `json:"title"`
	Responses      []grokResponse `json:"responses"`
}

type grokResponse struct {
	Sender     string `json:"sender"` // "human" or "grok"
	Message    string `json:"message"`
	CreateTime string `json:"create_time"` // RFC 3339
}

// DecodeGrok decodes a Grok export, failing on a missing conversation id,
// a missing or unparsable timestamp, or an unknown sender.
func DecodeGrok(data []byte) ([]Record, error) {
	var export grokExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("grok: %w", err)
	}

	var recs []Record
	for i, conv := range export.Conversations {
		if conv.ConversationID == "" {
			return nil, fmt.Errorf("grok: conversation %d: missing conversation_id", i)
		}

		for j, resp := range conv.Responses {
			role, err := grokRole(resp.Sender)
			if err != nil {
				return nil, fmt.Errorf("grok: conversation %s, response %d: %w", conv.ConversationID, j, err)
			}
			if resp.CreateTime == "" {
				return nil, fmt.Errorf("grok: conversation %s, response %d: missing create_time", conv.ConversationID, j)
			}
			ts, err := time.Parse(time.RFC3339, resp.CreateTime)
			if err != nil {
				return nil, fmt.Errorf("grok: conversation %s, response %d: bad create_time: %w", conv.ConversationID, j, err)
			}
			if resp.Message == "" {
				continue
			}

			recs = append(recs, Record{
				Vendor:         corpus.VendorGrok,
				ConversationID: conv.ConversationID,
				Role:           role,
				CreatedAt:      ts.UnixMilli(),
				Title:          conv.Title,
				Text:           resp.Message,
			})
		}
	}
	return recs, nil
}

func grokRole(sender string) (string, error) {
	switch sender {
	case "human":
		return corpus.RoleUser, nil
	case "grok":
		return corpus.RoleAssistant, nil
	case "":
		return "", fmt.Errorf("missing sender")
	default:
		return "", fmt.Errorf("unknown sender %q", sender)
	}
}
