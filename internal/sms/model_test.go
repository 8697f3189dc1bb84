package sms

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nwxnw/cosmic-connect-applet/internal/model"
)

// fakeResolver maps numbers to names with call tracking.
type fakeResolver struct {
	mu    sync.Mutex
	names map[string]string
	calls []string
}

func (f *fakeResolver) Resolve(number string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, number)
	name, ok := f.names[number]
	return name, ok
}

func incoming(id string, ts int64, body string) RawMessage {
	return RawMessage{
		ThreadID:  7,
		MsgID:     id,
		Addresses: []string{"+15551234567"},
		Sender:    "+15551234567",
		Body:      body,
		Timestamp: ts,
		Direction: model.DirectionIncoming,
	}
}

func TestIngest_CreatesConversation(t *testing.T) {
	m := NewModel(nil, nil)
	defer m.Close()

	m.Ingest("dev-1", incoming("m1", 1000, "hello"))

	convs := m.Conversations("dev-1")
	require.Len(t, convs, 1)
	assert.Equal(t, model.KeyForThread(7), convs[0].Key)
	assert.Equal(t, int64(7), convs[0].ThreadID)
	assert.Equal(t, []string{"+15551234567"}, convs[0].Participants)
	require.Len(t, convs[0].Messages, 1)
	assert.Equal(t, "hello", convs[0].Messages[0].Body)
}

func TestIngest_IdempotentByMessageID(t *testing.T) {
	m := NewModel(nil, nil)
	defer m.Close()

	m.Ingest("dev-1", incoming("m1", 1000, "hello"))
	m.Ingest("dev-1", incoming("m1", 1000, "hello"))
	m.Ingest("dev-1", incoming("m1", 2000, "hello again"))

	msgs, ok := m.Messages("dev-1", model.KeyForThread(7))
	require.True(t, ok)
	assert.Len(t, msgs, 1)
}

func TestIngest_OutOfOrderSortsByTimestamp(t *testing.T) {
	m := NewModel(nil, nil)
	defer m.Close()

	// Arrival order T=3, T=1, T=2 must list as T=1, T=2, T=3.
	m.Ingest("dev-1", incoming("m3", 3, "three"))
	m.Ingest("dev-1", incoming("m1", 1, "one"))
	m.Ingest("dev-1", incoming("m2", 2, "two"))

	msgs, ok := m.Messages("dev-1", model.KeyForThread(7))
	require.True(t, ok)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"one", "two", "three"}, []string{msgs[0].Body, msgs[1].Body, msgs[2].Body})
}

func TestIngest_TimestampTiesStableByArrival(t *testing.T) {
	m := NewModel(nil, nil)
	defer m.Close()

	m.Ingest("dev-1", incoming("a", 5, "first"))
	m.Ingest("dev-1", incoming("b", 5, "second"))

	msgs, _ := m.Messages("dev-1", model.KeyForThread(7))
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Body)
	assert.Equal(t, "second", msgs[1].Body)
}

func TestIngest_ParticipantKeyWhenNoThreadID(t *testing.T) {
	m := NewModel(nil, nil)
	defer m.Close()

	m.Ingest("dev-1", RawMessage{
		MsgID:     "m1",
		Addresses: []string{"+15559876543", "+15551234567"},
		Body:      "group hello",
		Timestamp: 100,
		Direction: model.DirectionIncoming,
	})
	m.Ingest("dev-1", RawMessage{
		MsgID:     "m2",
		Addresses: []string{"+15551234567", "+15559876543"}, // different order
		Body:      "same thread",
		Timestamp: 200,
		Direction: model.DirectionIncoming,
	})

	convs := m.Conversations("dev-1")
	require.Len(t, convs, 1)
	assert.Len(t, convs[0].Messages, 2)
}

func TestIngest_ThreadIDMigratesParticipantKeyedConversation(t *testing.T) {
	m := NewModel(nil, nil)
	defer m.Close()

	m.Ingest("dev-1", RawMessage{
		MsgID:     "m1",
		Addresses: []string{"+15551234567"},
		Body:      "before thread id",
		Timestamp: 100,
		Direction: model.DirectionIncoming,
	})
	m.Ingest("dev-1", RawMessage{
		ThreadID:  42,
		MsgID:     "m2",
		Addresses: []string{"+15551234567"},
		Body:      "daemon assigned id",
		Timestamp: 200,
		Direction: model.DirectionIncoming,
	})

	convs := m.Conversations("dev-1")
	require.Len(t, convs, 1)
	assert.Equal(t, model.KeyForThread(42), convs[0].Key)
	assert.Len(t, convs[0].Messages, 2)
}

func TestConversations_OrderedByMostRecent(t *testing.T) {
	m := NewModel(nil, nil)
	defer m.Close()

	m.Ingest("dev-1", RawMessage{ThreadID: 1, MsgID: "a", Addresses: []string{"+1"}, Body: "old", Timestamp: 100, Direction: model.DirectionIncoming})
	m.Ingest("dev-1", RawMessage{ThreadID: 2, MsgID: "b", Addresses: []string{"+2"}, Body: "new", Timestamp: 900, Direction: model.DirectionIncoming})
	m.Ingest("dev-1", RawMessage{ThreadID: 3, MsgID: "c", Addresses: []string{"+3"}, Body: "mid", Timestamp: 500, Direction: model.DirectionIncoming})

	convs := m.Conversations("dev-1")
	require.Len(t, convs, 3)
	assert.Equal(t, int64(2), convs[0].ThreadID)
	assert.Equal(t, int64(3), convs[1].ThreadID)
	assert.Equal(t, int64(1), convs[2].ThreadID)
}

func TestAppendLocal_OptimisticThenFailed(t *testing.T) {
	m := NewModel(nil, nil)
	defer m.Close()

	key := m.AppendLocal("dev-1", []string{"+15551234567"}, "hi", "local-1")

	msgs, ok := m.Messages("dev-1", key)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.DirectionOutgoing, msgs[0].Direction)
	assert.Equal(t, model.StatusSending, msgs[0].Status)

	m.MarkFailed("dev-1", key, "local-1")

	msgs, _ = m.Messages("dev-1", key)
	require.Len(t, msgs, 1) // no duplicate entry
	assert.Equal(t, model.StatusFailed, msgs[0].Status)
}

func TestAppendLocal_MarkSent(t *testing.T) {
	m := NewModel(nil, nil)
	defer m.Close()

	key := m.AppendLocal("dev-1", []string{"+15551234567"}, "hi", "local-1")
	m.MarkSent("dev-1", key, "local-1")

	msgs, _ := m.Messages("dev-1", key)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.StatusSent, msgs[0].Status)
}

func TestIngest_EchoAdoptsOptimisticAppend(t *testing.T) {
	m := NewModel(nil, nil)
	defer m.Close()

	key := m.AppendLocal("dev-1", []string{"+15551234567"}, "hi", "local-1")

	// The daemon's echo carries its own message ID and timestamp.
	m.Ingest("dev-1", RawMessage{
		MsgID:     "daemon-77",
		Addresses: []string{"+15551234567"},
		Body:      "hi",
		Timestamp: time.Now().UnixMilli() + 50,
		Direction: model.DirectionOutgoing,
	})

	msgs, ok := m.Messages("dev-1", key)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, "daemon-77", msgs[0].ID)
	assert.Equal(t, model.StatusSent, msgs[0].Status)
}

func TestAppendLocal_JoinsThreadKeyedConversation(t *testing.T) {
	m := NewModel(nil, nil)
	defer m.Close()

	// Backfill established the thread under its daemon ID.
	m.Ingest("dev-1", RawMessage{
		ThreadID:  42,
		MsgID:     "m1",
		Addresses: []string{"+15551234567"},
		Body:      "incoming",
		Timestamp: 100,
		Direction: model.DirectionIncoming,
	})

	// A reply carries no thread ID; it must land in the existing
	// thread, not fork a participant-keyed twin.
	key := m.AppendLocal("dev-1", []string{"+15551234567"}, "reply", "local-1")
	assert.Equal(t, model.KeyForThread(42), key)

	convs := m.Conversations("dev-1")
	require.Len(t, convs, 1)
	assert.Equal(t, model.KeyForThread(42), convs[0].Key)
	assert.Len(t, convs[0].Messages, 2)
}

func TestIngest_EchoAfterResultAdoptsSentMessage(t *testing.T) {
	m := NewModel(nil, nil)
	defer m.Close()

	key := m.AppendLocal("dev-1", []string{"+15551234567"}, "hi", "local-1")

	// The command result typically lands before the phone's echo.
	m.MarkSent("dev-1", key, "local-1")

	m.Ingest("dev-1", RawMessage{
		MsgID:     "daemon-77",
		Addresses: []string{"+15551234567"},
		Body:      "hi",
		Timestamp: time.Now().UnixMilli() + 50,
		Direction: model.DirectionOutgoing,
	})

	msgs, ok := m.Messages("dev-1", key)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, "daemon-77", msgs[0].ID)
	assert.Equal(t, model.StatusSent, msgs[0].Status)
}

func TestIngest_MessagesWithoutIDsDoNotCollide(t *testing.T) {
	m := NewModel(nil, nil)
	defer m.Close()

	// Some daemons deliver body-only events; two distinct ones must
	// not shadow each other through the dedupe index.
	m.Ingest("dev-1", RawMessage{
		ThreadID:  7,
		Addresses: []string{"+15551234567"},
		Body:      "first",
		Timestamp: 100,
		Direction: model.DirectionIncoming,
	})
	m.Ingest("dev-1", RawMessage{
		ThreadID:  7,
		Addresses: []string{"+15551234567"},
		Body:      "second",
		Timestamp: 200,
		Direction: model.DirectionIncoming,
	})

	msgs, ok := m.Messages("dev-1", model.KeyForThread(7))
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Body)
	assert.Equal(t, "second", msgs[1].Body)
}

func TestIngest_OutgoingWithoutPendingAppends(t *testing.T) {
	m := NewModel(nil, nil)
	defer m.Close()

	// An outgoing message sent from the phone itself has no optimistic
	// counterpart here and must simply be ingested.
	m.Ingest("dev-1", RawMessage{
		ThreadID:  7,
		MsgID:     "m1",
		Addresses: []string{"+15551234567"},
		Body:      "sent from phone",
		Timestamp: 100,
		Direction: model.DirectionOutgoing,
	})

	msgs, ok := m.Messages("dev-1", model.KeyForThread(7))
	require.True(t, ok)
	assert.Len(t, msgs, 1)
}

func TestDropDevice_TearsDownConversations(t *testing.T) {
	m := NewModel(nil, nil)
	defer m.Close()

	m.Ingest("dev-1", incoming("m1", 100, "hello"))
	m.Ingest("dev-2", incoming("m1", 100, "hello"))

	m.DropDevice("dev-1")

	assert.Empty(t, m.Conversations("dev-1"))
	assert.Len(t, m.Conversations("dev-2"), 1)
}

func TestContactResolution_SetsTitle(t *testing.T) {
	resolver := &fakeResolver{names: map[string]string{"+15551234567": "Ada Lovelace"}}
	m := NewModel(resolver, nil)
	defer m.Close()

	m.Ingest("dev-1", incoming("m1", 100, "hello"))

	assert.Eventually(t, func() bool {
		convs := m.Conversations("dev-1")
		return len(convs) == 1 && convs[0].Title == "Ada Lovelace"
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "Ada Lovelace", m.DisplayName("+15551234567"))
}

func TestContactResolution_UnresolvedShowsRawNumber(t *testing.T) {
	resolver := &fakeResolver{names: map[string]string{}}
	m := NewModel(resolver, nil)
	defer m.Close()

	m.Ingest("dev-1", incoming("m1", 100, "hello"))

	convs := m.Conversations("dev-1")
	require.Len(t, convs, 1)
	assert.Equal(t, "+15551234567", convs[0].Title)
	assert.Equal(t, "+15551234567", m.DisplayName("+15551234567"))
}

func TestContactResolution_ResolvesEachNumberOnce(t *testing.T) {
	resolver := &fakeResolver{names: map[string]string{"+15551234567": "Ada"}}
	m := NewModel(resolver, nil)
	defer m.Close()

	m.Ingest("dev-1", incoming("m1", 100, "one"))

	assert.Eventually(t, func() bool {
		return m.DisplayName("+15551234567") == "Ada"
	}, time.Second, 5*time.Millisecond)

	m.Ingest("dev-1", incoming("m2", 200, "two"))
	time.Sleep(20 * time.Millisecond)

	resolver.mu.Lock()
	defer resolver.mu.Unlock()
	assert.Equal(t, []string{"+15551234567"}, resolver.calls)
}

func TestSubscribe_NotifiesOnIngest(t *testing.T) {
	m := NewModel(nil, nil)
	defer m.Close()

	ch := m.Subscribe()
	m.Ingest("dev-1", incoming("m1", 100, "hello"))

	ev := <-ch
	assert.Equal(t, "dev-1", ev.DeviceID)
	assert.Equal(t, model.KeyForThread(7), ev.Key)
}
