package ingest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/corpora/internal/corpus"
)

// ChatGPT's conversations.json: an array of conversations, each holding
// its turns as a mapping of node id to tree node rather than a flat list.
type chatgptConversation struct {
	ID             string                 `json:"id"`
	ConversationID string                 `json:"conversation_id"`
	Title          string                 `json:"title"`
	CreateTime     float64                `json:"create_time"` // epoch seconds
	Mapping        map[string]chatgptNode `json:"mapping"`
}

type chatgptNode struct {
	Message *chatgptMessage `json:"message"`
}

type chatgptMessage struct {
	Author struct {
		Role string `json:"role"`
	} `json:"author"`
	CreateTime float64 `json:"create_time"`
	Content    struct {
		ContentType string   `json:"content_type"`
		Parts       []string `json:"parts"`
	} `json:"content"`
}

// DecodeChatGPT decodes a ChatGPT export. Tree structure is flattened in
// message-timestamp order; mapping nodes without a message payload (the
// synthetic roots) are skipped. A conversation without an id or a mapping,
// or a message with an unmappable role, fails the whole decode.
func DecodeChatGPT(data []byte) ([]Record, error) {
	var convs []chatgptConversation
	if err := json.Unmarshal(data, &convs); err != nil {
		return nil, fmt.Errorf("chatgpt: %w", err)
	}

	var recs []Record
	for i, conv := range convs {
		nativeID := conv.ConversationID
		if nativeID == "" {
			nativeID = conv.ID
		}
		if nativeID == "" {
			return nil, fmt.Errorf("chatgpt: conversation %d: missing id", i)
		}
		if conv.Mapping == nil {
			return nil, fmt.Errorf("chatgpt: conversation %d (%s): missing mapping", i, nativeID)
		}

		var msgs []chatgptMessage
		for _, node := range conv.Mapping {
			if node.Message == nil {
				continue
			}
			msgs = append(msgs, *node.Message)
		}
		sort.SliceStable(msgs, func(a, b int) bool {
			return msgs[a].CreateTime < msgs[b].CreateTime
		})

		for j, msg := range msgs {
			role, err := chatgptRole(msg.Author.Role)
			if err != nil {
				return nil, fmt.Errorf("chatgpt: conversation %s, message %d: %w", nativeID, j, err)
			}
			text := strings.TrimSpace(strings.Join(msg.Content.Parts, "\n"))
			if text == "" {
				// Hidden system stubs and tool frames carry no text.
				continue
			}

			ts := msg.CreateTime
			if ts == 0 {
				ts = conv.CreateTime
			}
			recs = append(recs, Record{
				Vendor:         corpus.VendorChatGPT,
				ConversationID: nativeID,
				Role:           role,
				CreatedAt:      int64(ts * 1000),
				Title:          conv.Title,
				Text:           text,
			})
		}
	}
	return recs, nil
}

func chatgptRole(role string) (string, error) {
	switch role {
	case "user":
		return corpus.RoleUser, nil
	case "assistant":
		return corpus.RoleAssistant, nil
	case "system":
		return corpus.RoleSystem, nil
	case "tool":
		return corpus.RoleTool, nil
	case "":
		return "", fmt.Errorf("missing author role")
	default:
		return "", fmt.Errorf("unknown author role %q", role)
	}
}
