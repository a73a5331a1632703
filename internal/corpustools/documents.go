package corpustools

import (
	"github.com/corpora/internal/corpus"
	"github.com/corpora/internal/rank"
)

// BuildDocuments materializes every stored message as a searchable
// document, carrying its conversation title and source/vendor context.
// System and tool turns route their text into the higher-weighted fields.
func BuildDocuments(store *corpus.Store) ([]rank.Document, error) {
	sources, err := store.ListSources()
	if err != nil {
		return nil, err
	}
	vendorOf := make(map[string]string, len(sources))
	for _, src := range sources {
		vendorOf[src.ID] = src.Vendor
	}

	convs, err := store.SelectConversations(corpus.ConversationFilter{})
	if err != nil {
		return nil, err
	}
	convByID := make(map[int64]corpus.Conversation, len(convs))
	for _, c := range convs {
		convByID[c.ID] = c
	}

	msgs, err := store.AllMessages()
	if err != nil {
		return nil, err
	}

	docs := make([]rank.Document, 0, len(msgs))
	for _, m := range msgs {
		conv := convByID[m.ConversationID]
		doc := rank.Document{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			Title:          conv.Title,
			Role:           m.Role,
			Vendor:         vendorOf[conv.SourceID],
			SourceID:       conv.SourceID,
			Timestamp:      m.CreatedAt,
		}
		switch m.Role {
		case corpus.RoleSystem:
			doc.SystemText = m.Text
		case corpus.RoleTool:
			doc.ToolJSON = m.Text
		default:
			doc.Body = m.Text
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
