package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind 와이어 상의 이벤트 타입 (type 필드)
type Kind string

// 클라이언트 → 릴레이
const (
	KindJoinRoom     Kind = "join-room"
	KindChatMessage  Kind = "chatMessage"
	KindDraw         Kind = "draw"
	KindClear        Kind = "clear"
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindICECandidate Kind = "ice-candidate"
)

// 릴레이 → 클라이언트
const (
	KindWelcome        Kind = "welcome"
	KindRoomMembers    Kind = "room-members"
	KindUserJoined     Kind = "user-joined"
	KindUserLeft       Kind = "user-left"
	KindReceiveMessage Kind = "receiveMessage"
)

var (
	ErrMalformed   = errors.New("relay: malformed message")
	ErrUnknownKind = errors.New("relay: unknown message type")
)

// Inbound 디코딩된 클라이언트 프레임.
// JoinRoom, ChatMessage, DrawEvent, ClearBoard, Signal 중 하나.
type Inbound interface {
	Kind() Kind
}

// JoinRoom 방 입장 요청
type JoinRoom struct {
	RoomID      string
	DisplayName string
}

// ChatMessage 방 채팅 메시지. RoomID 는 참고용이며 라우팅에는 송신자의 현재 방이 쓰인다.
type ChatMessage struct {
	RoomID  string
	Message string
	Sender  string
}

// DrawEvent 화이트보드 선분 하나. 좌표와 스타일 값은 해석하지 않고 그대로 전달한다.
type DrawEvent struct {
	X         json.RawMessage
	Y         json.RawMessage
	Color     json.RawMessage
	LineWidth json.RawMessage
}

// ClearBoard 화이트보드 초기화
type ClearBoard struct{}

// Signal WebRTC 시그널링 (offer / answer / ice-candidate). Payload 는 해석하지 않는다.
type Signal struct {
	Type    Kind
	Payload json.RawMessage
	To      string
}

func (JoinRoom) Kind() Kind    { return KindJoinRoom }
func (ChatMessage) Kind() Kind { return KindChatMessage }
func (DrawEvent) Kind() Kind   { return KindDraw }
func (ClearBoard) Kind() Kind  { return KindClear }
func (s Signal) Kind() Kind    { return s.Type }

// frame 인바운드 JSON 의 합집합
type frame struct {
	Type        Kind            `json:"type"`
	RoomID      string          `json:"roomId"`
	DisplayName string          `json:"displayName"`
	Message     string          `json:"message"`
	Sender      string          `json:"sender"`
	X           json.RawMessage `json:"x"`
	Y           json.RawMessage `json:"y"`
	Color       json.RawMessage `json:"color"`
	LineWidth   json.RawMessage `json:"lineWidth"`
	Payload     json.RawMessage `json:"payload"`
	Candidate   json.RawMessage `json:"candidate"`
	Offer       json.RawMessage `json:"offer"`
	Answer      json.RawMessage `json:"answer"`
	To          string          `json:"to"`
}

// Decode 텍스트 프레임 하나를 타입별 이벤트로 변환
func Decode(data []byte) (Inbound, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch f.Type {
	case KindJoinRoom:
		if f.RoomID == "" {
			return nil, fmt.Errorf("%w: join-room without roomId", ErrMalformed)
		}
		return JoinRoom{RoomID: f.RoomID, DisplayName: f.DisplayName}, nil

	case KindChatMessage:
		return ChatMessage{RoomID: f.RoomID, Message: f.Message, Sender: f.Sender}, nil

	case KindDraw:
		return DrawEvent{X: f.X, Y: f.Y, Color: f.Color, LineWidth: f.LineWidth}, nil

	case KindClear:
		return ClearBoard{}, nil

	case KindOffer, KindAnswer, KindICECandidate:
		payload := signalPayload(f)
		if f.To == "" || isEmptyJSON(payload) {
			return nil, fmt.Errorf("%w: %s requires to and payload", ErrMalformed, f.Type)
		}
		return Signal{Type: f.Type, Payload: payload, To: f.To}, nil

	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, f.Type)
}

// signalPayload ice-candidate 는 candidate, offer/answer 는 payload 를 우선한다
func signalPayload(f frame) json.RawMessage {
	switch f.Type {
	case KindICECandidate:
		if !isEmptyJSON(f.Candidate) {
			return f.Candidate
		}
	case KindOffer:
		if isEmptyJSON(f.Payload) {
			return f.Offer
		}
	case KindAnswer:
		if isEmptyJSON(f.Payload) {
			return f.Answer
		}
	}
	return f.Payload
}

func isEmptyJSON(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// Outbound 릴레이가 보내는 이벤트
type Outbound interface {
	EventKind() Kind
}

// Member 방 멤버 스냅샷 항목
type Member struct {
	ConnectionID string `json:"connectionId"`
	DisplayName  string `json:"displayName,omitempty"`
}

// Welcome 연결 수립 직후 본인에게 전송
type Welcome struct {
	Type         Kind   `json:"type"`
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId,omitempty"`
}

// RoomMembers 입장한 본인에게 현재 멤버 목록 전송
type RoomMembers struct {
	Type    Kind     `json:"type"`
	RoomID  string   `json:"roomId"`
	Members []Member `json:"members"`
}

// UserJoined 방의 다른 멤버에게 전송
type UserJoined struct {
	Type         Kind   `json:"type"`
	ConnectionID string `json:"connectionId"`
	DisplayName  string `json:"displayName"`
}

// UserLeft 모든 연결에 전송
type UserLeft struct {
	Type         Kind   `json:"type"`
	ConnectionID string `json:"connectionId"`
}

// ChatBroadcast 방 채팅 팬아웃
type ChatBroadcast struct {
	Type   Kind   `json:"type"`
	RoomID string `json:"roomId"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
	From   string `json:"from"`
}

// DrawBroadcast 화이트보드 선분 팬아웃. 클라이언트가 보내지 않은 필드만 빠진다.
type DrawBroadcast struct {
	Type      Kind            `json:"type"`
	X         json.RawMessage `json:"x,omitempty"`
	Y         json.RawMessage `json:"y,omitempty"`
	Color     json.RawMessage `json:"color,omitempty"`
	LineWidth json.RawMessage `json:"lineWidth,omitempty"`
	From      string          `json:"from"`
}

// ClearBroadcast 화이트보드 초기화 팬아웃
type ClearBroadcast struct {
	Type Kind   `json:"type"`
	From string `json:"from"`
}

// SignalForward 대상 연결로 전달되는 시그널링 메시지
type SignalForward struct {
	Type      Kind            `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	From      string          `json:"from"`
}

// ChatRecord REST 로 저장된 채팅의 실시간 알림
type ChatRecord struct {
	Type       Kind      `json:"type"`
	ID         int64     `json:"id"`
	Project    string    `json:"project,omitempty"`
	SenderID   string    `json:"senderId,omitempty"`
	SenderName string    `json:"senderName,omitempty"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (e Welcome) EventKind() Kind        { return e.Type }
func (e RoomMembers) EventKind() Kind    { return e.Type }
func (e UserJoined) EventKind() Kind     { return e.Type }
func (e UserLeft) EventKind() Kind       { return e.Type }
func (e ChatBroadcast) EventKind() Kind  { return e.Type }
func (e DrawBroadcast) EventKind() Kind  { return e.Type }
func (e ClearBroadcast) EventKind() Kind { return e.Type }
func (e SignalForward) EventKind() Kind  { return e.Type }
func (e ChatRecord) EventKind() Kind     { return e.Type }

func newWelcome(connID, userID string) Welcome {
	return Welcome{Type: KindWelcome, ConnectionID: connID, UserID: userID}
}

func newRoomMembers(roomID string, members []Member) RoomMembers {
	if members == nil {
		members = []Member{}
	}
	return RoomMembers{Type: KindRoomMembers, RoomID: roomID, Members: members}
}

func newUserJoined(connID, displayName string) UserJoined {
	return UserJoined{Type: KindUserJoined, ConnectionID: connID, DisplayName: displayName}
}

func newUserLeft(connID string) UserLeft {
	return UserLeft{Type: KindUserLeft, ConnectionID: connID}
}

func newChatBroadcast(roomID, sender, text, from string) ChatBroadcast {
	return ChatBroadcast{Type: KindChatMessage, RoomID: roomID, Sender: sender, Text: text, From: from}
}

func newDrawBroadcast(ev DrawEvent, from string) DrawBroadcast {
	return DrawBroadcast{
		Type:      KindDraw,
		X:         ev.X,
		Y:         ev.Y,
		Color:     ev.Color,
		LineWidth: ev.LineWidth,
		From:      from,
	}
}

func newClearBroadcast(from string) ClearBroadcast {
	return ClearBroadcast{Type: KindClear, From: from}
}

func newSignalForward(kind Kind, payload json.RawMessage, from string) SignalForward {
	ev := SignalForward{Type: kind, From: from}
	if kind == KindICECandidate {
		ev.Candidate = payload
	} else {
		ev.Payload = payload
	}
	return ev
}

// NewChatRecord receiveMessage 이벤트 생성
func NewChatRecord(id int64, project, senderID, senderName, message string, createdAt time.Time) ChatRecord {
	return ChatRecord{
		Type:       KindReceiveMessage,
		ID:         id,
		Project:    project,
		SenderID:   senderID,
		SenderName: senderName,
		Message:    message,
		CreatedAt:  createdAt,
	}
}
