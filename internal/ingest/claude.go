package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/corpora/internal/corpus"
)

// Claude's conversations.json: an array of conversations with a flat
// chat_messages list and RFC 3339 timestamps.
type claudeConversation struct {
	UUID         string          `json:"uuid"`
	Name         string          `json:"name"`
	CreatedAt    string          `json:"created_at"`
	ChatMessages []claudeMessage `json:"chat_messages"`
}

type claudeMessage struct {
	Sender    string `json:"sender"` // "human" or "assistant"
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// DecodeClaude decodes a Claude export. A conversation without a uuid,
// a message without a timestamp, or an unknown sender fails the decode.
func DecodeClaude(data []byte) ([]Record, error) {
	var convs []claudeConversation
	if err := json.Unmarshal(data, &convs); err != nil {
		return nil, fmt.Errorf("claude: %w", err)
	}

	var recs []Record
	for i, conv := range convs {
		if conv.UUID == "" {
			return nil, fmt.Errorf("claude: conversation %d: missing uuid", i)
		}

		for j, msg := range conv.ChatMessages {
			role, err := claudeRole(msg.Sender)
			if err != nil {
				return nil, fmt.Errorf("claude: conversation %s, message %d: %w", conv.UUID, j, err)
			}
			if msg.CreatedAt == "" {
				return nil, fmt.Errorf("claude: conversation %s, message %d: missing created_at", conv.UUID, j)
			}
			ts, err := time.Parse(time.RFC3339, msg.CreatedAt)
			if err != nil {
				return nil, fmt.Errorf("claude: conversation %s, message %d: bad created_at: %w", conv.UUID, j, err)
			}
			if msg.Text == "" {
				continue
			}

			recs = append(recs, Record{
				Vendor:         corpus.VendorClaude,
				ConversationID: conv.UUID,
				Role:           role,
				CreatedAt:      ts.UnixMilli(),
				Title:          conv.Name,
				Text:           msg.Text,
			})
		}
	}
	return recs, nil
}

func claudeRole(sender string) (string, error) {
	switch sender {
	case "human":
		return corpus.RoleUser, nil
	case "assistant":
		return corpus.RoleAssistant, nil
	case "":
		return "", fmt.Errorf("missing sender")
	default:
		return "", fmt.Errorf("unknown sender %q", sender)
	}
}
