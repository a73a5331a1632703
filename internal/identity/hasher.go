// Package identity derives stable identifiers for conversations and
// messages across repeated imports of the same vendor export.
//
// Vendor-native IDs can be missing, reused, or unstable between exports,
// so identifiers are derived from content. Two imports of the same export
// always produce the same ids; any semantically different record produces
// a different id with high probability.
package identity

import (
	"fmt"
	"strconv"
	"strings"
)

// textPrefixLen bounds how much message text participates in the hash.
// Long messages are discriminated well enough by their opening characters,
// and hashing megabyte-sized turns in full is wasted work.
const textPrefixLen = 256

// ConversationID returns a stable identifier for a conversation, rendered
// as "vendor:%016x".
//
// The title is part of the identity: a conversation renamed between two
// exports hashes to a different id and is treated as a distinct thread.
func ConversationID(vendor, nativeID, title string) string {
	h := newMixer()
	h.writeString(vendor)
	h.writeString(nativeID)
	h.writeString(title)
	return vendor + ":" + h.hex()
}

// MessageID returns a stable identifier for a single message turn.
// Only the first 256 characters of the normalized text participate.
func MessageID(vendor, conversationID, role string, timestampMs int64, text, toolName string, attachments []string) string {
	h := newMixer()
	h.writeString(vendor)
	h.writeString(conversationID)
	h.writeString(role)
	h.writeString(strconv.FormatInt(timestampMs, 10))

	norm := NormalizeText(text)
	if len(norm) > textPrefixLen {
		norm = norm[:textPrefixLen]
	}
	h.writeString(norm)
	h.writeString(toolName)
	for _, a := range attachments {
		h.writeString(a)
	}
	return vendor + ":" + h.hex()
}

// NormalizeText collapses all whitespace runs to single spaces and trims.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// mixer is an FNV-1a-style hash with two interleaved 32-bit lanes that are
// concatenated into a 64-bit digest. Not cryptographic: the requirement is
// avoiding accidental collisions across a personal corpus of low millions
// of records, not resisting an adversary.
type mixer struct {
	hi uint32
	lo uint32
}

const (
	fnvOffset32 = 2166136261
	fnvPrime32  = 16777619
	// Second lane uses a different offset basis so the lanes decorrelate.
	altOffset32 = 0x9747b28c
)

func newMixer() *mixer {
	return &mixer{hi: fnvOffset32, lo: altOffset32}
}

func (m *mixer) writeString(s string) {
	for i := 0; i < len(s); i++ {
		b := uint32(s[i])
		if i%2 == 0 {
			m.hi = (m.hi ^ b) * fnvPrime32
		} else {
			m.lo = (m.lo ^ b) * fnvPrime32
		}
	}
	// Field separator keeps ("ab","c") distinct from ("a","bc").
	m.hi = (m.hi ^ 0x1f) * fnvPrime32
	m.lo = (m.lo ^ 0x1f) * fnvPrime32
}

func (m *mixer) hex() string {
	return fmt.Sprintf("%016x", uint64(m.hi)<<32|uint64(m.lo))
}
