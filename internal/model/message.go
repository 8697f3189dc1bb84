package model

import (
	"sort"
	"strconv"
	"strings"
)

// Direction indicates whether a message was received or sent.
type Direction int

const (
	// DirectionIncoming is a message received from the remote party.
	DirectionIncoming Direction = iota
	// DirectionOutgoing is a message sent by the local user.
	DirectionOutgoing
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	if d == DirectionOutgoing {
		return "outgoing"
	}
	return "incoming"
}

// MessageStatus tracks delivery progress for outgoing messages.
type MessageStatus int

const (
	// StatusNone applies to incoming messages and messages without
	// delivery reporting.
	StatusNone MessageStatus = iota
	// StatusSending is an optimistic local append awaiting the daemon.
	StatusSending
	// StatusSent means the daemon accepted the send.
	StatusSent
	// StatusFailed means the send was rejected or timed out.
	StatusFailed
)

// String returns the string representation of the status.
func (s MessageStatus) String() string {
	switch s {
	case StatusSending:
		return "sending"
	case StatusSent:
		return "sent"
	case StatusFailed:
		return "failed"
	default:
		return ""
	}
}

// Message is one SMS message within a conversation. Immutable once
// ingested except for Status and Read.
type Message struct {
	ID        string        `json:"id"`
	Sender    string        `json:"sender"`
	Body      string        `json:"body"`
	Timestamp int64         `json:"timestamp"` // unix milliseconds
	Direction Direction     `json:"direction"`
	Status    MessageStatus `json:"status"`
	Read      bool          `json:"read"`

	// IngestSeq is assigned at ingestion and breaks timestamp ties so
	// ordering within a conversation is stable.
	IngestSeq uint64 `json:"-"`
}

// ConversationKey identifies a conversation. Daemon thread IDs are
// authoritative when present; otherwise the sorted participant set is
// used, so the same unordered participants always map to one key.
type ConversationKey string

// KeyForThread returns the key for a daemon-assigned thread ID.
func KeyForThread(threadID int64) ConversationKey {
	return ConversationKey("thread:" + strconv.FormatInt(threadID, 10))
}

// KeyForParticipants returns the key for a participant set. The
// participants are normalized and sorted so ordering does not matter.
func KeyForParticipants(participants []string) ConversationKey {
	norm := NormalizeParticipants(participants)
	return ConversationKey("peers:" + strings.Join(norm, ","))
}

// NormalizeParticipants trims, deduplicates, and sorts addresses.
func NormalizeParticipants(participants []string) []string {
	seen := make(map[string]struct{}, len(participants))
	out := make([]string, 0, len(participants))
	for _, p := range participants {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Conversation is an ordered thread of messages with one participant set.
type Conversation struct {
	Key          ConversationKey `json:"key"`
	ThreadID     int64           `json:"thread_id,omitempty"`
	Participants []string        `json:"participants"`
	Title        string          `json:"title"`
	Messages     []Message       `json:"messages"`
}

// LastTimestamp returns the timestamp of the newest message, or 0 for
// an empty conversation.
func (c *Conversation) LastTimestamp() int64 {
	if len(c.Messages) == 0 {
		return 0
	}
	return c.Messages[len(c.Messages)-1].Timestamp
}

// Preview returns the body of the newest message, truncated for list views.
func (c *Conversation) Preview(max int) string {
	if len(c.Messages) == 0 {
		return ""
	}
	body := c.Messages[len(c.Messages)-1].Body
	body = strings.ReplaceAll(body, "\n", " ")
	if max > 0 {
		if runes := []rune(body); len(runes) > max {
			return string(runes[:max]) + "…"
		}
	}
	return body
}
