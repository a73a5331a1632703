package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/corpora/internal/corpus"
)

// Gemini export: an array of conversations with a flat message list and
// epoch-millisecond timestamps. The assistant role is spelled "model".
type geminiConversation struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Messages []geminiMessage `json:"messages"`
}

type geminiMessage struct {
	Role         string `json:"role"` // "user" or "model"
	Text         string `json:"text"`
	CreateTimeMs int64  `json:"create_time_ms"`
}

// DecodeGemini decodes a Gemini export, failing on a missing conversation
// id, a missing timestamp, or an unknown role.
func DecodeGemini(data []byte) ([]Record, error) {
	var convs []geminiConversation
	if err := json.Unmarshal(data, &convs); err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	var recs []Record
	for i, conv := range convs {
		if conv.ID == "" {
			return nil, fmt.Errorf("gemini: conversation %d: missing id", i)
		}

		for j, msg := range conv.Messages {
			role, err := geminiRole(msg.Role)
			if err != nil {
				return nil, fmt.Errorf("gemini: conversation %s, message %d: %w", conv.ID, j, err)
			}
			if msg.CreateTimeMs == 0 {
				return nil, fmt.Errorf("gemini: conversation %s, message %d: missing create_time_ms", conv.ID, j)
			}
			if msg.Text == "" {
				continue
			}

			recs = append(recs, Record{
				Vendor:         corpus.VendorGemini,
				ConversationID: conv.ID,
				Role:           role,
				CreatedAt:      msg.CreateTimeMs,
				Title:          conv.Title,
				Text:           msg.Text,
			})
		}
	}
	return recs, nil
}

func geminiRole(role string) (string, error) {
	switch role {
	case "user":
		return corpus.RoleUser, nil
	case "model":
		return corpus.RoleAssistant, nil
	case "":
		return "", fmt.Errorf("missing role")
	default:
		return "", fmt.Errorf("unknown role %q", role)
	}
}
