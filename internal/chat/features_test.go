package chat

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessages_SendPublishesChatMessage(t *testing.T) {
	ch := newMockChannel("general::messages")
	msgs := newMessages(ch, "client-1")

	require.NoError(t, msgs.Send(context.Background(), "hello"))

	published := ch.publishedMessages()
	require.Len(t, published, 1)
	assert.Equal(t, "chat.message", published[0].Event)

	var msg Message
	require.NoError(t, json.Unmarshal(published[0].Data, &msg))
	assert.Equal(t, "client-1", msg.ClientID)
	assert.Equal(t, "hello", msg.Text)
	assert.False(t, msg.SentAt.IsZero())
}

func TestMessages_SubscribeFiltersAndDecodes(t *testing.T) {
	ch := newMockChannel("general::messages")
	msgs := newMessages(ch, "client-1")

	var got []Message
	sub := msgs.Subscribe(func(m Message) { got = append(got, m) })

	ch.deliver(ChannelMessage{Event: "chat.message", Data: []byte(`{"clientId":"other","text":"hi"}`)})
	ch.deliver(ChannelMessage{Event: "presence.enter", Data: []byte(`{"clientId":"other"}`)})
	ch.deliver(ChannelMessage{Event: "chat.message", Data: []byte(`not json`)})

	require.Len(t, got, 1)
	assert.Equal(t, "other", got[0].ClientID)
	assert.Equal(t, "hi", got[0].Text)

	sub.Off()
	ch.deliver(ChannelMessage{Event: "chat.message", Data: []byte(`{"clientId":"x","text":"y"}`)})
	assert.Len(t, got, 1)
}

func TestPresence_TracksMembersFromEvents(t *testing.T) {
	ch := newMockChannel("general::presence")
	presence := newPresence(ch, "client-1")

	ch.deliver(ChannelMessage{Event: "presence.enter", Data: []byte(`{"clientId":"a","data":"alice"}`)})
	ch.deliver(ChannelMessage{Event: "presence.enter", Data: []byte(`{"clientId":"b"}`)})
	require.Len(t, presence.Get(), 2)

	ch.deliver(ChannelMessage{Event: "presence.leave", Data: []byte(`{"clientId":"a"}`)})
	members := presence.Get()
	require.Len(t, members, 1)
	assert.Equal(t, "b", members[0].ClientID)

	// events without a client id are dropped
	ch.deliver(ChannelMessage{Event: "presence.enter", Data: []byte(`{"data":"ghost"}`)})
	assert.Len(t, presence.Get(), 1)
}

func TestPresence_EnterAndLeavePublish(t *testing.T) {
	ch := newMockChannel("general::presence")
	presence := newPresence(ch, "client-1")

	require.NoError(t, presence.Enter(context.Background(), "hi"))
	require.NoError(t, presence.Leave(context.Background()))

	published := ch.publishedMessages()
	require.Len(t, published, 2)
	assert.Equal(t, "presence.enter", published[0].Event)
	assert.Equal(t, "presence.leave", published[1].Event)

	var member PresenceMember
	require.NoError(t, json.Unmarshal(published[0].Data, &member))
	assert.Equal(t, "client-1", member.ClientID)
	assert.Equal(t, "hi", member.Data)
}

func TestTyping_StartStopAndSubscribe(t *testing.T) {
	ch := newMockChannel("general::typing")
	typing := newTyping(ch, "client-1")

	require.NoError(t, typing.Start(context.Background()))
	require.NoError(t, typing.Stop(context.Background()))

	published := ch.publishedMessages()
	require.Len(t, published, 2)
	assert.Equal(t, "typing.start", published[0].Event)
	assert.Equal(t, "typing.stop", published[1].Event)

	var got []TypingEvent
	typing.Subscribe(func(ev TypingEvent) { got = append(got, ev) })
	ch.deliver(ChannelMessage{Event: "typing.start", Data: []byte(`{"clientId":"other","typing":true}`)})
	ch.deliver(ChannelMessage{Event: "chat.message", Data: []byte(`{}`)})
	ch.deliver(ChannelMessage{Event: "typing.stop", Data: []byte(`{"clientId":"other","typing":false}`)})

	require.Len(t, got, 2)
	assert.True(t, got[0].Typing)
	assert.False(t, got[1].Typing)
}

func TestReactions_SendValidatesType(t *testing.T) {
	ch := newMockChannel("general::reactions")
	reactions := newReactions(ch, "client-1")

	err := reactions.Send(context.Background(), "")
	assert.Equal(t, ErrCodeBadRequest, CodeOf(err))
	assert.Empty(t, ch.publishedMessages())

	require.NoError(t, reactions.Send(context.Background(), "like"))
	published := ch.publishedMessages()
	require.Len(t, published, 1)
	assert.Equal(t, "reaction", published[0].Event)
}

func TestReactions_Subscribe(t *testing.T) {
	ch := newMockChannel("general::reactions")
	reactions := newReactions(ch, "client-1")

	var got []Reaction
	reactions.Subscribe(func(r Reaction) { got = append(got, r) })
	ch.deliver(ChannelMessage{Event: "reaction", Data: []byte(`{"clientId":"other","type":"heart"}`)})

	require.Len(t, got, 1)
	assert.Equal(t, "heart", got[0].Type)
}

func TestOccupancy_TracksLatestMetrics(t *testing.T) {
	ch := newMockChannel("general::occupancy")
	occupancy := newOccupancy(ch)

	assert.Equal(t, OccupancyEvent{}, occupancy.Current())

	var got []OccupancyEvent
	occupancy.Subscribe(func(ev OccupancyEvent) { got = append(got, ev) })

	ch.deliver(ChannelMessage{Event: "occupancy", Data: []byte(`{"connections":4,"presenceMembers":2}`)})
	ch.deliver(ChannelMessage{Event: "occupancy", Data: []byte(`{"connections":5,"presenceMembers":2}`)})

	assert.Equal(t, OccupancyEvent{Connections: 5, Presence: 2}, occupancy.Current())
	require.Len(t, got, 2)
	assert.Equal(t, 4, got[0].Connections)
}
