// Package sms derives ordered conversation threads from raw message
// events and overlays contact-name resolution onto phone numbers.
package sms

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nwxnw/cosmic-connect-applet/internal/model"
)

// RawMessage is one message event as delivered by the daemon.
type RawMessage struct {
	// ThreadID is the daemon-assigned conversation ID, 0 if absent.
	// When present it is authoritative for conversation identity.
	ThreadID  int64
	MsgID     string
	Addresses []string
	Sender    string
	Body      string
	Timestamp int64 // unix milliseconds
	Direction model.Direction
	Read      bool
}

// ChangeEvent signals that a conversation changed. Consumers re-read
// model state; repeated identical events are harmless.
type ChangeEvent struct {
	DeviceID string
	Key      model.ConversationKey
}

// Resolver looks up a display name for a phone number. It may be
// called concurrently for distinct numbers.
type Resolver interface {
	Resolve(phoneNumber string) (name string, ok bool)
}

// conversation wraps the exported record with its dedupe indexes.
// locals tracks optimistic appends by their local message ID until a
// daemon echo adopts them.
type conversation struct {
	c      model.Conversation
	ids    map[string]struct{}
	locals map[string]struct{}
}

// deviceThreads holds all conversations for one device. peerKeys maps
// a participant-set key to the conversation owning that set, including
// thread-keyed ones, so a send without a thread ID lands in the
// existing thread instead of forking a parallel conversation.
type deviceThreads struct {
	conversations map[model.ConversationKey]*conversation
	threadKeys    map[int64]model.ConversationKey
	peerKeys      map[model.ConversationKey]model.ConversationKey
}

// Model owns Conversation and Message records for all devices.
type Model struct {
	mu       sync.RWMutex
	resolver Resolver
	logger   *slog.Logger
	seq      uint64
	devices  map[string]*deviceThreads

	// resolved caches number -> display name. Absence means the raw
	// number is shown. Refreshed on demand only.
	resolved map[string]string
	pending  map[string]struct{}

	subscribers []chan ChangeEvent
	closed      bool
}

// NewModel creates an empty conversation model. resolver may be nil,
// in which case raw numbers are always shown.
func NewModel(resolver Resolver, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{
		resolver: resolver,
		logger:   logger,
		devices:  make(map[string]*deviceThreads),
		resolved: make(map[string]string),
		pending:  make(map[string]struct{}),
	}
}

// Ingest applies a raw message event: it resolves the target
// conversation, inserts the message at its sorted position, and
// deduplicates by message ID. An outgoing echo of an optimistic local
// append adopts the pending message instead of duplicating it.
func (m *Model) Ingest(deviceID string, raw RawMessage) {
	if raw.Body == "" && raw.MsgID == "" {
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	dt := m.threadsLocked(deviceID)
	conv := m.conversationLocked(dt, raw)

	// Messages without a daemon ID cannot be deduplicated; they are
	// kept out of the index so they never collide with each other.
	if raw.MsgID != "" {
		if _, dup := conv.ids[raw.MsgID]; dup {
			m.mu.Unlock()
			return
		}
	}

	if raw.Direction == model.DirectionOutgoing && m.adoptEchoLocked(conv, raw) {
		key := conv.c.Key
		unseen := m.unseenNumbersLocked(conv)
		m.refreshTitleLocked(conv)
		m.notifyLocked(ChangeEvent{DeviceID: deviceID, Key: key})
		m.mu.Unlock()
		m.resolveAsync(unseen)
		return
	}

	m.seq++
	msg := model.Message{
		ID:        raw.MsgID,
		Sender:    raw.Sender,
		Body:      raw.Body,
		Timestamp: raw.Timestamp,
		Direction: raw.Direction,
		Read:      raw.Read,
		IngestSeq: m.seq,
	}
	insertSorted(&conv.c.Messages, msg)
	if msg.ID != "" {
		conv.ids[msg.ID] = struct{}{}
	}

	key := conv.c.Key
	unseen := m.unseenNumbersLocked(conv)
	m.refreshTitleLocked(conv)
	m.notifyLocked(ChangeEvent{DeviceID: deviceID, Key: key})
	m.mu.Unlock()

	m.resolveAsync(unseen)
}

// AppendLocal optimistically appends an outgoing message before the
// daemon confirms the send. It returns the conversation key; the
// message carries StatusSending until MarkSent or MarkFailed.
func (m *Model) AppendLocal(deviceID string, participants []string, body, localID string) model.ConversationKey {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ""
	}

	dt := m.threadsLocked(deviceID)
	conv := m.conversationLocked(dt, RawMessage{Addresses: participants})

	m.seq++
	msg := model.Message{
		ID:        localID,
		Body:      body,
		Timestamp: time.Now().UnixMilli(),
		Direction: model.DirectionOutgoing,
		Status:    model.StatusSending,
		IngestSeq: m.seq,
	}
	insertSorted(&conv.c.Messages, msg)
	conv.ids[localID] = struct{}{}
	conv.locals[localID] = struct{}{}

	key := conv.c.Key
	unseen := m.unseenNumbersLocked(conv)
	m.refreshTitleLocked(conv)
	m.notifyLocked(ChangeEvent{DeviceID: deviceID, Key: key})
	m.mu.Unlock()

	m.resolveAsync(unseen)
	return key
}

// MarkSent flips an optimistic message to sent.
func (m *Model) MarkSent(deviceID string, key model.ConversationKey, localID string) {
	m.setStatus(deviceID, key, localID, model.StatusSent)
}

// MarkFailed flips an optimistic message to failed. The message stays
// in the conversation so the user sees the failure and may retry.
func (m *Model) MarkFailed(deviceID string, key model.ConversationKey, localID string) {
	m.setStatus(deviceID, key, localID, model.StatusFailed)
}

func (m *Model) setStatus(deviceID string, key model.ConversationKey, localID string, status model.MessageStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dt, ok := m.devices[deviceID]
	if !ok {
		return
	}
	conv, ok := dt.conversations[key]
	if !ok {
		return
	}
	for i := range conv.c.Messages {
		if conv.c.Messages[i].ID == localID {
			conv.c.Messages[i].Status = status
			m.notifyLocked(ChangeEvent{DeviceID: deviceID, Key: key})
			return
		}
	}
}

// Conversations returns the device's conversations ordered by
// most-recent-message timestamp descending. Conversations with zero
// messages are never surfaced.
func (m *Model) Conversations(deviceID string) []model.Conversation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dt, ok := m.devices[deviceID]
	if !ok {
		return nil
	}
	out := make([]model.Conversation, 0, len(dt.conversations))
	for _, conv := range dt.conversations {
		if len(conv.c.Messages) == 0 {
			continue
		}
		out = append(out, cloneConversation(&conv.c))
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].LastTimestamp(), out[j].LastTimestamp()
		if ti != tj {
			return ti > tj
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Messages returns the ordered message sequence for one conversation.
// Re-querying returns the same sequence unless new messages arrived.
func (m *Model) Messages(deviceID string, key model.ConversationKey) ([]model.Message, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dt, ok := m.devices[deviceID]
	if !ok {
		return nil, false
	}
	conv, ok := dt.conversations[key]
	if !ok {
		return nil, false
	}
	return append([]model.Message(nil), conv.c.Messages...), true
}

// DisplayName resolves a phone number through the contact cache,
// falling back to the raw number.
func (m *Model) DisplayName(number string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if name, ok := m.resolved[number]; ok && name != "" {
		return name
	}
	return number
}

// DropDevice tears down all derived conversation state for a removed
// device.
func (m *Model) DropDevice(deviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[deviceID]; !ok {
		return
	}
	delete(m.devices, deviceID)
	m.notifyLocked(ChangeEvent{DeviceID: deviceID})
}

// Subscribe returns a channel that receives change events.
func (m *Model) Subscribe() <-chan ChangeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan ChangeEvent, 16)
	m.subscribers = append(m.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscription.
func (m *Model) Unsubscribe(ch <-chan ChangeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

// Close closes all subscriber channels.
func (m *Model) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for _, ch := range m.subscribers {
		close(ch)
	}
	m.subscribers = nil
}

func (m *Model) threadsLocked(deviceID string) *deviceThreads {
	dt, ok := m.devices[deviceID]
	if !ok {
		dt = &deviceThreads{
			conversations: make(map[model.ConversationKey]*conversation),
			threadKeys:    make(map[int64]model.ConversationKey),
			peerKeys:      make(map[model.ConversationKey]model.ConversationKey),
		}
		m.devices[deviceID] = dt
	}
	return dt
}

// conversationLocked finds or creates the conversation a message
// belongs to. A daemon thread ID is authoritative; a previously
// participant-keyed conversation with the same participant set is
// migrated under the thread key so threads are not silently split.
func (m *Model) conversationLocked(dt *deviceThreads, raw RawMessage) *conversation {
	participants := model.NormalizeParticipants(raw.Addresses)

	if raw.ThreadID != 0 {
		key := model.KeyForThread(raw.ThreadID)
		if existing, ok := dt.threadKeys[raw.ThreadID]; ok {
			conv := dt.conversations[existing]
			if len(participants) > 0 {
				dt.peerKeys[model.KeyForParticipants(participants)] = existing
			}
			return conv
		}
		// Migrate a participant-keyed conversation for the same set.
		if len(participants) > 0 {
			pk := model.KeyForParticipants(participants)
			if conv, ok := dt.conversations[pk]; ok && conv.c.ThreadID == 0 {
				delete(dt.conversations, pk)
				conv.c.Key = key
				conv.c.ThreadID = raw.ThreadID
				dt.conversations[key] = conv
				dt.threadKeys[raw.ThreadID] = key
				dt.peerKeys[pk] = key
				return conv
			}
		}
		conv := &conversation{
			c: model.Conversation{
				Key:          key,
				ThreadID:     raw.ThreadID,
				Participants: participants,
			},
			ids:    make(map[string]struct{}),
			locals: make(map[string]struct{}),
		}
		dt.conversations[key] = conv
		dt.threadKeys[raw.ThreadID] = key
		if len(participants) > 0 {
			dt.peerKeys[model.KeyForParticipants(participants)] = key
		}
		return conv
	}

	key := model.KeyForParticipants(participants)
	if owner, ok := dt.peerKeys[key]; ok {
		if conv, ok := dt.conversations[owner]; ok {
			return conv
		}
	}
	if conv, ok := dt.conversations[key]; ok {
		return conv
	}
	conv := &conversation{
		c: model.Conversation{
			Key:          key,
			Participants: participants,
		},
		ids:    make(map[string]struct{}),
		locals: make(map[string]struct{}),
	}
	dt.conversations[key] = conv
	dt.peerKeys[key] = key
	return conv
}

// adoptEchoLocked matches an outgoing daemon echo against an optimistic
// append with the same body. On match the optimistic entry takes over
// the daemon's ID and timestamp instead of duplicating. The echo
// usually arrives after the command result has already flipped the
// message to sent, so both sending and sent entries are candidates —
// but only ones that still carry their local ID.
func (m *Model) adoptEchoLocked(conv *conversation, raw RawMessage) bool {
	for i := range conv.c.Messages {
		msg := &conv.c.Messages[i]
		if _, isLocal := conv.locals[msg.ID]; !isLocal {
			continue
		}
		if msg.Status != model.StatusSending && msg.Status != model.StatusSent {
			continue
		}
		if msg.Body != raw.Body {
			continue
		}
		delete(conv.locals, msg.ID)
		delete(conv.ids, msg.ID)
		adopted := *msg
		adopted.ID = raw.MsgID
		adopted.Timestamp = raw.Timestamp
		adopted.Status = model.StatusSent
		adopted.Read = raw.Read

		conv.c.Messages = append(conv.c.Messages[:i], conv.c.Messages[i+1:]...)
		insertSorted(&conv.c.Messages, adopted)
		if adopted.ID != "" {
			conv.ids[adopted.ID] = struct{}{}
		}
		return true
	}
	return false
}

// unseenNumbersLocked collects participant numbers that have no cache
// entry and no resolution in flight, marking them pending.
func (m *Model) unseenNumbersLocked(conv *conversation) []string {
	if m.resolver == nil {
		return nil
	}
	var unseen []string
	for _, p := range conv.c.Participants {
		if _, ok := m.resolved[p]; ok {
			continue
		}
		if _, ok := m.pending[p]; ok {
			continue
		}
		m.pending[p] = struct{}{}
		unseen = append(unseen, p)
	}
	return unseen
}

// resolveAsync resolves numbers off the caller's goroutine; distinct
// numbers resolve concurrently.
func (m *Model) resolveAsync(numbers []string) {
	for _, number := range numbers {
		go func(number string) {
			name, ok := m.resolver.Resolve(number)

			m.mu.Lock()
			delete(m.pending, number)
			if ok && name != "" {
				m.resolved[number] = name
				m.retitleLocked(number)
			}
			m.mu.Unlock()
		}(number)
	}
}

// retitleLocked refreshes the titles of every conversation the number
// participates in and notifies subscribers.
func (m *Model) retitleLocked(number string) {
	for deviceID, dt := range m.devices {
		for _, conv := range dt.conversations {
			for _, p := range conv.c.Participants {
				if p == number {
					m.refreshTitleLocked(conv)
					m.notifyLocked(ChangeEvent{DeviceID: deviceID, Key: conv.c.Key})
					break
				}
			}
		}
	}
}

// refreshTitleLocked recomputes the cached display title from resolved
// contact names, falling back to raw numbers.
func (m *Model) refreshTitleLocked(conv *conversation) {
	if len(conv.c.Participants) == 0 {
		conv.c.Title = ""
		return
	}
	names := make([]string, 0, len(conv.c.Participants))
	for _, p := range conv.c.Participants {
		if name, ok := m.resolved[p]; ok && name != "" {
			names = append(names, name)
		} else {
			names = append(names, p)
		}
	}
	conv.c.Title = strings.Join(names, ", ")
}

// notifyLocked sends a change event to all subscribers (non-blocking).
func (m *Model) notifyLocked(event ChangeEvent) {
	for _, ch := range m.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// insertSorted places msg at its position ordered by timestamp, ties
// broken by ingestion sequence. Out-of-order arrivals land at their
// correct sorted position, not at the tail.
func insertSorted(msgs *[]model.Message, msg model.Message) {
	s := *msgs
	i := sort.Search(len(s), func(i int) bool {
		if s[i].Timestamp != msg.Timestamp {
			return s[i].Timestamp > msg.Timestamp
		}
		return s[i].IngestSeq > msg.IngestSeq
	})
	s = append(s, model.Message{})
	copy(s[i+1:], s[i:])
	s[i] = msg
	*msgs = s
}

func cloneConversation(c *model.Conversation) model.Conversation {
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	out.Messages = append([]model.Message(nil), c.Messages...)
	return out
}
