package corpus

// Vendors whose exports can be ingested.
const (
	VendorChatGPT = "chatgpt"
	VendorClaude  = "claude"
	VendorGemini  = "gemini"
	VendorGrok    = "grok"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleSystem    = "system"
)

// Relationship types between conversations. The classifier only ever
// produces similar/related; followup and reference remain valid stored
// values for callers that set them explicitly.
const (
	RelSimilar   = "similar"
	RelRelated   = "related"
	RelFollowup  = "followup"
	RelReference = "reference"
)

// ValidVendor reports whether v is a known vendor tag.
func ValidVendor(v string) bool {
	switch v {
	case VendorChatGPT, VendorClaude, VendorGemini, VendorGrok:
		return true
	}
	return false
}

// ValidRole reports whether r is a known message role.
func ValidRole(r string) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool, RoleSystem:
		return true
	}
	return false
}

// Source is a registered export location: one vendor plus a root path.
type Source struct {
	ID      string `json:"id"`
	Vendor  string `json:"vendor"`
	Root    string `json:"root"`
	Label   string `json:"label"`
	Color   string `json:"color,omitempty"`
	AddedAt string `json:"added_at"`
}

// Conversation is one chat thread from one source.
type Conversation struct {
	ID          int64  `json:"id"`
	SourceID    string `json:"source_id"`
	ExternalID  string `json:"external_id,omitempty"`
	Title       string `json:"title"`
	StartedAt   int64  `json:"started_at"`
	UpdatedAt   int64  `json:"updated_at"`
	RawPath     string `json:"raw_path,omitempty"`
	ContentHash string `json:"content_hash,omitempty"`
}

// ConversationFields is the input for InsertConversation.
type ConversationFields struct {
	SourceID    string
	ExternalID  string
	Title       string
	StartedAt   int64
	UpdatedAt   int64
	RawPath     string
	ContentHash string
}

// Message is one turn within a conversation. Messages are never mutated
// after insertion.
type Message struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"conversation_id"`
	Role           string `json:"role"`
	CreatedAt      int64  `json:"created_at"`
	Text           string `json:"text"`
	DedupHash      string `json:"dedup_hash"`
}

// Embedding is a fixed-length vector attached to a message. One live
// embedding per (message, model); regeneration replaces, never versions.
type Embedding struct {
	MessageID      int64     `json:"message_id"`
	ConversationID int64     `json:"conversation_id"`
	Model          string    `json:"model"`
	Dimension      int       `json:"dimension"`
	Vector         []float32 `json:"vector"`
	CreatedAt      string    `json:"created_at"`
}

// Relationship is a derived, similarity-classified edge between two
// conversations. Stored directionally, queried symmetrically.
type Relationship struct {
	ID            int64   `json:"id"`
	ConversationA int64   `json:"conversation_a"`
	ConversationB int64   `json:"conversation_b"`
	Type          string  `json:"type"`
	Score         float64 `json:"score"`
	Metadata      string  `json:"metadata,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// Topic is a named cluster label extracted from message text.
type Topic struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// ConversationFilter narrows SelectConversations.
type ConversationFilter struct {
	SourceID   string
	TitleRegex string
}

// Stats holds aggregate corpus statistics.
type Stats struct {
	TotalConversations int      `json:"total_conversations"`
	TotalMessages      int      `json:"total_messages"`
	Sources            []Source `json:"sources"`
	LastUpdated        int64    `json:"last_updated"`
}
