package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestEnvelope(t *testing.T) {
	t.Run("decoded payloads do not alias the frame", func(t *testing.T) {
		in := &Envelope{
			Kind:     KindResult,
			Sender:   "0192d4e0-0000-7000-8000-000000000001",
			Role:     RoleOutput,
			Target:   "0192d4e0-0000-7000-8000-000000000002",
			ID:       "0192d4e0-0000-7000-8000-000000000003",
			CallType: CallTypeCall,
			Function: "SayHello",
			Params:   []byte(`{"Greeting":"Hello"}`),
			Result:   []byte(`{"Answer":"Greetings back!"}`),
		}
		frame := in.Marshal(nil)
		out, err := Unmarshal(frame)
		require.NoError(t, err)
		require.Equal(t, in, out)

		for i := range frame {
			frame[i] = 0
		}
		require.Equal(t, []byte(`{"Answer":"Greetings back!"}`), out.Result)
	})

	t.Run("an empty payload survives, an absent one stays nil", func(t *testing.T) {
		out, err := Unmarshal((&Envelope{Kind: KindRequest, Sender: "s", Params: []byte{}}).Marshal(nil))
		require.NoError(t, err)
		require.NotNil(t, out.Params)
		require.Empty(t, out.Params)
		require.Nil(t, out.Result)
	})

	t.Run("unknown fields are skipped", func(t *testing.T) {
		frame := (&Envelope{Kind: KindAnnounce, Sender: "s", Hello: true}).Marshal(nil)
		frame = protowire.AppendTag(frame, 99, protowire.BytesType)
		frame = protowire.AppendString(frame, "from the future")
		frame = protowire.AppendTag(frame, 100, protowire.Fixed64Type)
		frame = protowire.AppendFixed64(frame, 42)

		out, err := Unmarshal(frame)
		require.NoError(t, err)
		require.Equal(t, KindAnnounce, out.Kind)
		require.True(t, out.Hello)
	})

	t.Run("garbage and incomplete frames are rejected", func(t *testing.T) {
		_, err := Unmarshal([]byte{0xff, 0xff, 0xff})
		require.ErrorIs(t, err, ErrInvalidFrame)

		_, err = Unmarshal((&Envelope{Kind: KindAnnounce}).Marshal(nil))
		require.ErrorIs(t, err, ErrInvalidFrame)

		frame := (&Envelope{Kind: KindRequest, Sender: "s", Params: []byte("abcdef")}).Marshal(nil)
		_, err = Unmarshal(frame[:len(frame)-2])
		require.ErrorIs(t, err, ErrInvalidFrame)
	})
}

func TestCallType(t *testing.T) {
	require.True(t, CallTypeCall.Addressed())
	require.True(t, CallTypeCallAll.Addressed())
	require.False(t, CallTypeTrigger.Addressed())
	require.False(t, CallTypeEmit.Addressed())

	require.True(t, CallTypeCallAll.Broadcast())
	require.True(t, CallTypeTriggerAll.Broadcast())
	require.False(t, CallTypeCall.Broadcast())
	require.Equal(t, RoleOutput, RoleInput.Opposite())
}
