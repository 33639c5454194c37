package chat

import (
	"encoding/json"
	"time"
)

// Inbound event names.
const (
	EventJoinRoom        = "joinRoom"
	EventSendMessage     = "sendMessage"
	EventReadReceipt     = "readReceipt"
	EventRequestUserList = "requestUserList"
	EventPrivateMessage  = "privateMessage"
	EventIsWritePublic   = "isWritePublic"
	EventIncrement       = "increment"
	EventCreatePoll      = "createPoll"
	EventSubmitVote      = "submitVote"
	EventEndPoll         = "endPoll"
	EventUploadImage     = "uploadImage"
	EventDrawOp          = "drawOp"
)

// Outbound event names.
const (
	EventMessage        = "message"
	EventJoinedRoom     = "joinedRoom"
	EventUserListUpdate = "userListUpdate"
	EventMessageHistory = "messageHistory"
	EventMessageRead    = "messageRead"
	EventWhoIsWrite     = "whoIsWrite"
	EventCountUpdate    = "countUpdate"
	EventNewPoll        = "newPoll"
	EventVoteUpdate     = "voteUpdate"
	EventPollEnded      = "pollEnded"
	EventImageMessage   = "imageMessage"
	EventError          = "error"
	EventUnreadCount    = "unreadCount"
	EventSession        = "session"
)

var inboundEvents = map[string]struct{}{
	EventJoinRoom:        {},
	EventSendMessage:     {},
	EventReadReceipt:     {},
	EventRequestUserList: {},
	EventPrivateMessage:  {},
	EventIsWritePublic:   {},
	EventIncrement:       {},
	EventCreatePoll:      {},
	EventSubmitVote:      {},
	EventEndPoll:         {},
	EventUploadImage:     {},
	EventDrawOp:          {},
}

// IsInboundEvent reports whether name is an event clients may send.
func IsInboundEvent(name string) bool {
	_, ok := inboundEvents[name]
	return ok
}

// Inbound is a frame received from a client.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is a frame sent to a client.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type MessageKind string

const (
	KindRoom    MessageKind = "room"
	KindPrivate MessageKind = "private"
	KindImage   MessageKind = "image"
)

// Message is a chat message. Only room messages enter the history ring.
type Message struct {
	ID        string      `json:"id"`
	Sender    string      `json:"user"`
	Room      string      `json:"room"`
	Body      string      `json:"msg"`
	Timestamp time.Time   `json:"time"`
	Kind      MessageKind `json:"kind"`
}

// ---------------------------------------------
// Inbound payloads
// ---------------------------------------------

type JoinRoomPayload struct {
	Username string `json:"username" validate:"max=64"`
	Room     string `json:"room" validate:"required,max=64"`
}

type SendMessagePayload struct {
	Msg   string `json:"msg" validate:"required,max=4096"`
	MsgID string `json:"msgId" validate:"max=128"`
	Room  string `json:"room" validate:"required,max=64"`
}

type ReadReceiptPayload struct {
	MsgID string `json:"msgId" validate:"required,max=128"`
	Room  string `json:"room" validate:"max=64"`
}

type PrivateMessagePayload struct {
	To  string `json:"to" validate:"required"`
	Msg string `json:"msg" validate:"required,max=4096"`
}

type CreatePollPayload struct {
	Room     string   `json:"room" validate:"required,max=64"`
	Question string   `json:"question" validate:"required,max=256"`
	Options  []string `json:"options" validate:"min=2,max=10,dive,required,max=128"`
}

type SubmitVotePayload struct {
	Room        string `json:"room" validate:"required,max=64"`
	OptionIndex *int   `json:"optionIndex" validate:"required"`
}

type EndPollPayload struct {
	Room string `json:"room" validate:"required,max=64"`
}

type UploadImagePayload struct {
	Room     string `json:"room" validate:"required,max=64"`
	Base64   string `json:"base64" validate:"required"`
	Filename string `json:"filename" validate:"max=255"`
}

const (
	DrawLine  = "line"
	DrawClear = "clear"
)

type DrawOpPayload struct {
	Room  string  `json:"room" validate:"required,max=64"`
	Type  string  `json:"type" validate:"required,oneof=line clear"`
	FromX float64 `json:"fromX"`
	FromY float64 `json:"fromY"`
	ToX   float64 `json:"toX"`
	ToY   float64 `json:"toY"`
	Color string  `json:"color,omitempty" validate:"max=32"`
	Width float64 `json:"width" validate:"gte=0,lte=100"`
}

// ---------------------------------------------
// Outbound payloads
// ---------------------------------------------

type JoinedRoomEvent struct {
	Username     string `json:"username"`
	Room         string `json:"room"`
	ConnectionID string `json:"connectionId"`
}

type UserEntry struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Room     string `json:"room"`
}

type UserListEvent struct {
	Users []UserEntry `json:"users"`
}

type HistoryEvent struct {
	Room     string    `json:"room"`
	Messages []Message `json:"messages"`
}

type MessageReadEvent struct {
	MsgID  string   `json:"msgId"`
	Room   string   `json:"room"`
	Reader string   `json:"reader"`
	ReadBy []string `json:"readBy"`
}

type PrivateMessageEvent struct {
	ID     string    `json:"id"`
	From   string    `json:"from"`
	FromID string    `json:"fromId"`
	To     string    `json:"to"`
	Msg    string    `json:"msg"`
	Time   time.Time `json:"time"`
}

type WhoIsWriteEvent struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

type CountEvent struct {
	Count int `json:"count"`
}

type PollEvent struct {
	Room     string   `json:"room"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Votes    []int    `json:"votes"`
	Creator  string   `json:"creator"`
}

type VoteUpdateEvent struct {
	Room  string `json:"room"`
	Votes []int  `json:"votes"`
}

type ImageEvent struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Room     string    `json:"room"`
	Base64   string    `json:"base64"`
	Filename string    `json:"filename"`
	Mime     string    `json:"mime"`
	Time     time.Time `json:"time"`
}

type DrawOpEvent struct {
	DrawOpPayload
	Username string `json:"username"`
}

type ErrorEvent struct {
	Msg string `json:"msg"`
}

type UnreadCountEvent struct {
	Room  string   `json:"room"`
	Count int      `json:"count"`
	IDs   []string `json:"ids"`
}

type SessionEvent struct {
	ConnectionID string `json:"connectionId"`
	IdentityID   string `json:"identityId"`
	Username     string `json:"username"`
	ResumeToken  string `json:"resumeToken,omitempty"`
}
