package bus

import (
	"testing"

	errs "ChatRelay/tools/errs"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	req := require.New(t)

	payload := []byte(`{"event":"new_message","data":{"_id":"m1","roomId":"r1","senderId":"u2","content":"hello","createdAt":1700000000000,"readBy":["u2"]}}`)
	ev, err := Decode(ChannelMessageEvents, payload)
	req.NoError(err)
	req.Equal(ChannelMessageEvents, ev.Channel)
	req.Equal(EventNewMessage, ev.Type)
	req.Equal("r1", ev.RoomID())

	var msg MessageData
	req.NoError(ev.DecodeData(&msg))
	req.Equal("hello", msg.Content)
	req.Equal("u2", msg.SenderID)
	req.Equal([]string{"u2"}, msg.ReadBy)
}

func TestDecodeFailsClosed(t *testing.T) {
	req := require.New(t)

	_, err := Decode(ChannelUserStatus, []byte(`{not json`))
	req.Error(err)
	var ce *errs.CodeError
	req.True(errors.As(err, &ce))
	req.Equal(errs.DecodeCode, ce.Code)

	// 合法 JSON 但缺事件类型，同样拒收
	_, err = Decode(ChannelUserStatus, []byte(`{"data":{"user_id":"u1"}}`))
	req.Error(err)
}

func TestEventRoundTrip(t *testing.T) {
	req := require.New(t)

	ev, err := NewEvent(ChannelTypingEvents, EventTypingStatus, TypingData{
		RoomID: "r1", UserID: "u1", IsTyping: true, Timestamp: 123,
	})
	req.NoError(err)

	raw, err := ev.Encode()
	req.NoError(err)

	got, err := Decode(ChannelTypingEvents, raw)
	req.NoError(err)
	var data TypingData
	req.NoError(got.DecodeData(&data))
	req.True(data.IsTyping)
	req.Equal("r1", data.RoomID)
}

func TestPresenceEventHasNoRoom(t *testing.T) {
	ev, err := NewEvent(ChannelUserStatus, EventUserOnline, PresenceData{UserID: "u1", Timestamp: 1})
	require.NoError(t, err)
	require.Empty(t, ev.RoomID())
}
