package relay

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Inbound
		wantErr error
	}{
		{
			name:  "join room",
			input: `{"type":"join-room","roomId":"p1","displayName":"Ann"}`,
			want:  JoinRoom{RoomID: "p1", DisplayName: "Ann"},
		},
		{
			name:    "join room without id",
			input:   `{"type":"join-room","displayName":"Ann"}`,
			wantErr: ErrMalformed,
		},
		{
			name:  "chat",
			input: `{"type":"chatMessage","roomId":"p1","message":"hi","sender":"Ann"}`,
			want:  ChatMessage{RoomID: "p1", Message: "hi", Sender: "Ann"},
		},
		{
			name:  "draw",
			input: `{"type":"draw","x":1.5,"y":2,"color":"#000","lineWidth":3}`,
			want:  DrawEvent{X: json.RawMessage(`1.5`), Y: json.RawMessage(`2`), Color: json.RawMessage(`"#000"`), LineWidth: json.RawMessage(`3`)},
		},
		{
			name:  "draw without coordinates",
			input: `{"type":"draw","color":"#000"}`,
			want:  DrawEvent{Color: json.RawMessage(`"#000"`)},
		},
		{
			name:  "draw with string coordinate",
			input: `{"type":"draw","x":"1","y":2}`,
			want:  DrawEvent{X: json.RawMessage(`"1"`), Y: json.RawMessage(`2`)},
		},
		{
			name:  "clear",
			input: `{"type":"clear"}`,
			want:  ClearBoard{},
		},
		{
			name:  "offer",
			input: `{"type":"offer","payload":{"sdp":"v=0"},"to":"b"}`,
			want:  Signal{Type: KindOffer, Payload: json.RawMessage(`{"sdp":"v=0"}`), To: "b"},
		},
		{
			name:  "offer under legacy field",
			input: `{"type":"offer","offer":{"sdp":"v=0"},"to":"b"}`,
			want:  Signal{Type: KindOffer, Payload: json.RawMessage(`{"sdp":"v=0"}`), To: "b"},
		},
		{
			name:  "answer",
			input: `{"type":"answer","payload":"x","to":"a"}`,
			want:  Signal{Type: KindAnswer, Payload: json.RawMessage(`"x"`), To: "a"},
		},
		{
			name:  "ice candidate",
			input: `{"type":"ice-candidate","candidate":{"candidate":"c1"},"to":"a"}`,
			want:  Signal{Type: KindICECandidate, Payload: json.RawMessage(`{"candidate":"c1"}`), To: "a"},
		},
		{
			name:    "signal without target",
			input:   `{"type":"offer","payload":{}}`,
			wantErr: ErrMalformed,
		},
		{
			name:    "signal with null payload",
			input:   `{"type":"answer","payload":null,"to":"a"}`,
			wantErr: ErrMalformed,
		},
		{
			name:    "missing type",
			input:   `{"roomId":"p1"}`,
			wantErr: ErrMalformed,
		},
		{
			name:    "unknown type",
			input:   `{"type":"shout"}`,
			wantErr: ErrUnknownKind,
		},
		{
			name:    "not json",
			input:   `hello`,
			wantErr: ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.input))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSignalForwardField(t *testing.T) {
	payload := json.RawMessage(`{"k":1}`)

	ice, err := json.Marshal(newSignalForward(KindICECandidate, payload, "a"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ice-candidate","candidate":{"k":1},"from":"a"}`, string(ice))

	offer, err := json.Marshal(newSignalForward(KindOffer, payload, "a"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"offer","payload":{"k":1},"from":"a"}`, string(offer))
}

func TestRoomMembersNeverNull(t *testing.T) {
	data, err := json.Marshal(newRoomMembers("p1", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"room-members","roomId":"p1","members":[]}`, string(data))
}

func TestDrawBroadcastForwardsValuesVerbatim(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"zero width kept", `{"type":"draw","x":0,"y":0,"color":"#fff","lineWidth":0}`, `{"type":"draw","x":0,"y":0,"color":"#fff","lineWidth":0,"from":"a"}`},
		{"no coordinates", `{"type":"draw","color":"red"}`, `{"type":"draw","color":"red","from":"a"}`},
		{"unusual values", `{"type":"draw","x":"12px","y":-3.25,"lineWidth":null}`, `{"type":"draw","x":"12px","y":-3.25,"lineWidth":null,"from":"a"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.input))
			require.NoError(t, err)

			data, err := json.Marshal(newDrawBroadcast(ev.(DrawEvent), "a"))
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}
