package chat

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"chat-relay/internal/identity"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// AnonymousUsername is used for joins that carry no username.
const AnonymousUsername = "anonymous"

// DefaultMaxImageChars is the largest accepted base64 image body.
const DefaultMaxImageChars = 1_000_000

// TokenIssuer signs resume tokens handed to clients after they join.
type TokenIssuer interface {
	IssueToken(id identity.Identity) (string, error)
}

type Options struct {
	HistorySize      int
	ReceiptCapacity  int
	OfflineRetention time.Duration
	MaxImageChars    int
	Moderator        *Moderator
	Tokens           TokenIssuer
	Now              func() time.Time
	NewID            func() string
}

// Stats is a point-in-time view of the engine state.
type Stats struct {
	Connections    int            `json:"connections"`
	Sessions       int            `json:"sessions"`
	Rooms          map[string]int `json:"rooms"`
	History        int            `json:"history"`
	Receipts       int            `json:"receipts"`
	OfflineEntries int            `json:"offlineEntries"`
	ActivePolls    int            `json:"activePolls"`
	Counter        int            `json:"counter"`
}

// Engine owns the whole session and room state. It is not safe for
// concurrent use: the Hub serializes every call.
type Engine struct {
	log      *slog.Logger
	registry *Registry
	history  *History
	receipts *ReceiptTracker
	offline  *OfflineQueue
	polls    *PollEngine
	counter  int

	maxImageChars int
	moderator     *Moderator
	tokens        TokenIssuer
	now           func() time.Time
	newID         func() string
	validate      *validator.Validate
}

type handlerFunc func(e *Engine, connID string, data json.RawMessage) ([]Delivery, error)

var handlers = map[string]handlerFunc{
	EventJoinRoom:        (*Engine).joinRoom,
	EventSendMessage:     (*Engine).sendMessage,
	EventReadReceipt:     (*Engine).readReceipt,
	EventRequestUserList: (*Engine).requestUserList,
	EventPrivateMessage:  (*Engine).privateMessage,
	EventIsWritePublic:   (*Engine).isWritePublic,
	EventIncrement:       (*Engine).increment,
	EventCreatePoll:      (*Engine).createPoll,
	EventSubmitVote:      (*Engine).submitVote,
	EventEndPoll:         (*Engine).endPoll,
	EventUploadImage:     (*Engine).uploadImage,
	EventDrawOp:          (*Engine).drawOp,
}

func NewEngine(log *slog.Logger, opts Options) *Engine {
	historySize := lo.Ternary(opts.HistorySize > 0, opts.HistorySize, DefaultHistorySize)
	e := &Engine{
		log:           log,
		registry:      NewRegistry(),
		history:       NewHistory(historySize),
		receipts:      NewReceiptTracker(opts.ReceiptCapacity),
		offline:       NewOfflineQueue(historySize, opts.OfflineRetention),
		polls:         NewPollEngine(),
		maxImageChars: lo.Ternary(opts.MaxImageChars > 0, opts.MaxImageChars, DefaultMaxImageChars),
		moderator:     opts.Moderator,
		tokens:        opts.Tokens,
		now:           lo.Ternary(opts.Now != nil, opts.Now, time.Now),
		newID:         lo.Ternary(opts.NewID != nil, opts.NewID, uuid.NewString),
		validate:      validator.New(validator.WithRequiredStructEnabled()),
	}
	e.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return lo.Ternary(name == "" || name == "-", f.Name, name)
	})
	return e
}

// Registry exposes the connection registry as the dispatcher's room directory.
func (e *Engine) Registry() *Registry { return e.registry }

// Connect registers a live connection and replays any unread state left by
// the same identity on a previous connection.
func (e *Engine) Connect(connID string, id identity.Identity) []Delivery {
	e.registry.Register(connID, id)
	e.log.Debug("Client connected", "conn", connID, "identity", id.ID)

	if id.IsZero() {
		return nil
	}
	entry, ok := e.offline.Take(id.ID, e.now())
	if !ok {
		return nil
	}

	deliveries := []Delivery{Direct(connID, EventUnreadCount, UnreadCountEvent{
		Room:  entry.Room,
		Count: len(entry.MessageIDs),
		IDs:   entry.MessageIDs,
	})}
	for _, msgID := range entry.MessageIDs {
		receipt, err := e.receipts.RecordRead(msgID, entry.Username)
		if err != nil {
			continue
		}
		deliveries = append(deliveries, Direct(receipt.OriginConnID, EventMessageRead, readEvent(receipt, entry.Username)))
	}
	e.log.Info("Replayed unread messages", "conn", connID, "identity", id.ID, "count", len(entry.MessageIDs))
	return deliveries
}

// Disconnect forgets the connection. A joined session leaves its unread
// messages in the offline queue under its identity.
func (e *Engine) Disconnect(connID string) []Delivery {
	id, _ := e.registry.Identity(connID)
	sess, ok := e.registry.Remove(connID)
	if !ok {
		e.log.Debug("Client disconnected", "conn", connID)
		return nil
	}

	if !id.IsZero() {
		unread := lo.FilterMap(e.history.Room(sess.Room), func(m Message, _ int) (string, bool) {
			return m.ID, m.Sender != sess.Username && !e.receipts.HasRead(m.ID, sess.Username)
		})
		e.offline.Enqueue(id.ID, sess.Username, sess.Room, unread, e.now())
	}
	e.log.Info("User left", "conn", connID, "username", sess.Username, "room", sess.Room)
	return []Delivery{Global(EventUserListUpdate, e.userList())}
}

// Handle runs the handler of one inbound event. Failures turn into a single
// error event for the originating connection.
func (e *Engine) Handle(connID string, in Inbound) []Delivery {
	handler, ok := handlers[in.Event]
	if !ok {
		e.log.Debug("Ignoring unknown event", "conn", connID, "event", in.Event)
		return nil
	}
	// Frames still queued when their connection went away
	if _, live := e.registry.Identity(connID); !live {
		e.log.Debug("Ignoring event from closed connection", "conn", connID, "event", in.Event)
		return nil
	}

	deliveries, err := handler(e, connID, in.Data)
	if err != nil {
		e.log.Debug("Event rejected", "conn", connID, "event", in.Event, "error", err)
		return []Delivery{Direct(connID, EventError, ErrorEvent{Msg: clientMessage(err)})}
	}
	return deliveries
}

// PruneOffline drops expired offline entries.
func (e *Engine) PruneOffline(now time.Time) int {
	return e.offline.Prune(now)
}

// RoomHistory returns the retained messages of room, oldest first.
func (e *Engine) RoomHistory(room string) []Message {
	return e.history.Room(room)
}

func (e *Engine) Stats() Stats {
	return Stats{
		Connections:    e.registry.ConnectionCount(),
		Sessions:       e.registry.SessionCount(),
		Rooms:          e.registry.Rooms(),
		History:        e.history.Len(),
		Receipts:       e.receipts.Len(),
		OfflineEntries: e.offline.Len(),
		ActivePolls:    e.polls.Len(),
		Counter:        e.counter,
	}
}

func (e *Engine) joinRoom(connID string, data json.RawMessage) ([]Delivery, error) {
	var p JoinRoomPayload
	if err := e.decode(data, &p); err != nil {
		return nil, err
	}

	username := strings.TrimSpace(p.Username)
	sess, previous := e.registry.Join(connID, lo.Ternary(username != "", username, AnonymousUsername), p.Room)
	e.log.Info("User joined room", "conn", connID, "username", sess.Username, "room", sess.Room, "previous", previous)

	session := SessionEvent{
		ConnectionID: connID,
		IdentityID:   sess.Identity.ID,
		Username:     sess.Username,
	}
	if e.tokens != nil && !sess.Identity.IsZero() {
		token, err := e.tokens.IssueToken(sess.Identity)
		if err != nil {
			e.log.Warn("Resume token not issued", "conn", connID, "error", err)
		}
		session.ResumeToken = token
	}

	return []Delivery{
		ToRoom(sess.Room, EventJoinedRoom, JoinedRoomEvent{Username: sess.Username, Room: sess.Room, ConnectionID: connID}),
		Global(EventUserListUpdate, e.userList()),
		Direct(connID, EventMessageHistory, HistoryEvent{Room: sess.Room, Messages: e.history.Room(sess.Room)}),
		Direct(connID, EventSession, session),
	}, nil
}

func (e *Engine) sendMessage(connID string, data json.RawMessage) ([]Delivery, error) {
	var p SendMessagePayload
	if err := e.decode(data, &p); err != nil {
		return nil, err
	}
	sess, err := e.sessionInRoom(connID, p.Room)
	if err != nil {
		return nil, err
	}

	msgID := lo.Ternary(p.MsgID != "", p.MsgID, e.newID())
	if e.history.Contains(msgID) {
		return nil, validationErr("message id %q already used", msgID)
	}

	msg := Message{
		ID:        msgID,
		Sender:    sess.Username,
		Room:      sess.Room,
		Body:      e.moderator.Censor(p.Msg),
		Timestamp: e.now(),
		Kind:      KindRoom,
	}
	e.history.Append(msg)
	e.receipts.RecordSend(msg.ID, sess.Username, sess.Room, connID)
	e.offline.Append(sess.Room, msg.ID, sess.Username)

	return []Delivery{ToRoom(sess.Room, EventMessage, msg)}, nil
}

func (e *Engine) readReceipt(connID string, data json.RawMessage) ([]Delivery, error) {
	var p ReadReceiptPayload
	if err := e.decode(data, &p); err != nil {
		return nil, err
	}
	receipt, ok := e.receipts.Lookup(p.MsgID)
	if !ok {
		return nil, nil
	}
	sess, err := e.session(connID)
	if err != nil {
		return nil, err
	}
	if receipt.OriginRoom != sess.Room {
		return nil, authorizationErr("message %q was not sent in your room", p.MsgID)
	}

	receipt, err = e.receipts.RecordRead(p.MsgID, sess.Username)
	if err != nil {
		return nil, err
	}
	return []Delivery{Direct(receipt.OriginConnID, EventMessageRead, readEvent(receipt, sess.Username))}, nil
}

func (e *Engine) requestUserList(connID string, _ json.RawMessage) ([]Delivery, error) {
	return []Delivery{Direct(connID, EventUserListUpdate, e.userList())}, nil
}

func (e *Engine) privateMessage(connID string, data json.RawMessage) ([]Delivery, error) {
	var p PrivateMessagePayload
	if err := e.decode(data, &p); err != nil {
		return nil, err
	}
	sess, err := e.session(connID)
	if err != nil {
		return nil, err
	}
	target, ok := e.registry.Lookup(p.To)
	if !ok {
		return nil, notFoundErr("user %s is offline", p.To)
	}

	evt := PrivateMessageEvent{
		ID:     e.newID(),
		From:   sess.Username,
		FromID: connID,
		To:     target.ConnID,
		Msg:    e.moderator.Censor(p.Msg),
		Time:   e.now(),
	}
	deliveries := []Delivery{Direct(target.ConnID, EventPrivateMessage, evt)}
	if target.ConnID != connID {
		deliveries = append(deliveries, Direct(connID, EventPrivateMessage, evt))
	}
	return deliveries, nil
}

func (e *Engine) isWritePublic(connID string, _ json.RawMessage) ([]Delivery, error) {
	sess, err := e.session(connID)
	if err != nil {
		return nil, err
	}
	return []Delivery{ToRoom(sess.Room, EventWhoIsWrite, WhoIsWriteEvent{Username: sess.Username, Room: sess.Room})}, nil
}

func (e *Engine) increment(_ string, _ json.RawMessage) ([]Delivery, error) {
	e.counter++
	return []Delivery{Global(EventCountUpdate, CountEvent{Count: e.counter})}, nil
}

func (e *Engine) createPoll(connID string, data json.RawMessage) ([]Delivery, error) {
	var p CreatePollPayload
	if err := e.decode(data, &p); err != nil {
		return nil, err
	}
	sess, err := e.sessionInRoom(connID, p.Room)
	if err != nil {
		return nil, err
	}

	poll := e.polls.Create(p.Room, p.Question, p.Options, sess.Username)
	e.log.Info("Poll created", "room", poll.Room, "creator", poll.Creator, "options", len(poll.Options))
	return []Delivery{ToRoom(poll.Room, EventNewPoll, pollEvent(poll))}, nil
}

func (e *Engine) submitVote(connID string, data json.RawMessage) ([]Delivery, error) {
	var p SubmitVotePayload
	if err := e.decode(data, &p); err != nil {
		return nil, err
	}
	if _, err := e.sessionInRoom(connID, p.Room); err != nil {
		return nil, err
	}

	poll, err := e.polls.Vote(p.Room, *p.OptionIndex)
	if err != nil {
		return nil, err
	}
	return []Delivery{ToRoom(poll.Room, EventVoteUpdate, VoteUpdateEvent{Room: poll.Room, Votes: poll.Votes})}, nil
}

func (e *Engine) endPoll(connID string, data json.RawMessage) ([]Delivery, error) {
	var p EndPollPayload
	if err := e.decode(data, &p); err != nil {
		return nil, err
	}
	sess, err := e.sessionInRoom(connID, p.Room)
	if err != nil {
		return nil, err
	}

	if err := e.polls.End(p.Room, sess.Username); err != nil {
		return nil, err
	}
	e.log.Info("Poll ended", "room", p.Room, "by", sess.Username)
	return []Delivery{ToRoom(p.Room, EventPollEnded, nil)}, nil
}

func (e *Engine) uploadImage(connID string, data json.RawMessage) ([]Delivery, error) {
	var p UploadImagePayload
	if err := e.decode(data, &p); err != nil {
		return nil, err
	}
	sess, err := e.sessionInRoom(connID, p.Room)
	if err != nil {
		return nil, err
	}
	if len(p.Base64) > e.maxImageChars {
		return nil, validationErr("image too large: %d characters, limit is %d", len(p.Base64), e.maxImageChars)
	}

	mime, err := sniffImage(p.Base64)
	if err != nil {
		return nil, err
	}

	return []Delivery{ToRoom(sess.Room, EventImageMessage, ImageEvent{
		ID:       e.newID(),
		Username: sess.Username,
		Room:     sess.Room,
		Base64:   p.Base64,
		Filename: p.Filename,
		Mime:     mime,
		Time:     e.now(),
	})}, nil
}

func (e *Engine) drawOp(connID string, data json.RawMessage) ([]Delivery, error) {
	var p DrawOpPayload
	if err := e.decode(data, &p); err != nil {
		return nil, err
	}
	sess, err := e.sessionInRoom(connID, p.Room)
	if err != nil {
		return nil, err
	}
	return []Delivery{ToRoom(sess.Room, EventDrawOp, DrawOpEvent{DrawOpPayload: p, Username: sess.Username})}, nil
}

func (e *Engine) session(connID string) (Session, error) {
	sess, ok := e.registry.Lookup(connID)
	if !ok {
		return Session{}, authorizationErr("join a room first")
	}
	return sess, nil
}

func (e *Engine) sessionInRoom(connID, room string) (Session, error) {
	sess, err := e.session(connID)
	if err != nil {
		return Session{}, err
	}
	if sess.Room != room {
		return Session{}, authorizationErr("you are not in room %q", room)
	}
	return sess, nil
}

func (e *Engine) userList() UserListEvent {
	return UserListEvent{Users: lo.Map(e.registry.Sessions(), func(s Session, _ int) UserEntry {
		return UserEntry{ID: s.ConnID, Username: s.Username, Room: s.Room}
	})}
}

func (e *Engine) decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return validationErr("missing payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return validationErr("malformed payload")
	}
	if err := e.validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return validationErr("%s is invalid (%s)", fe.Field(), describeTag(fe))
		}
		return validationErr("invalid payload")
	}
	return nil
}

func describeTag(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
}

// sniffImage decodes a base64 body, optionally given as a data URL, and
// returns its mime type if it is an image.
func sniffImage(body string) (string, error) {
	if strings.HasPrefix(body, "data:") {
		_, encoded, found := strings.Cut(body, ",")
		if !found {
			return "", validationErr("malformed data URL")
		}
		body = encoded
	}
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return "", validationErr("image is not valid base64")
	}
	mime := mimetype.Detect(raw)
	if !strings.HasPrefix(mime.String(), "image/") {
		return "", validationErr("unsupported image type %s", mime.String())
	}
	return mime.String(), nil
}

func readEvent(r Receipt, reader string) MessageReadEvent {
	return MessageReadEvent{MsgID: r.MessageID, Room: r.OriginRoom, Reader: reader, ReadBy: r.Readers}
}

func pollEvent(p Poll) PollEvent {
	return PollEvent{Room: p.Room, Question: p.Question, Options: p.Options, Votes: p.Votes, Creator: p.Creator}
}
