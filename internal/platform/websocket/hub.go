// Package websocket is the realtime channel shared by call signaling and
// notification push. Each connected client can join call rooms, relay opaque
// signaling payloads to the other room members, and subscribe to notification
// topics. Delivery is push-based and at most once: a client whose send buffer
// is full misses the message.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ruralcare/telemed/internal/platform/apperr"
	"github.com/ruralcare/telemed/internal/platform/events"
	"github.com/ruralcare/telemed/internal/platform/metrics"
)

// Client -> server events.
const (
	EventJoinRoom            = "join-room"
	EventLeaveRoom           = "leave-room"
	EventSignal              = "signal"
	EventSubscribe           = "subscribe"
	EventUnsubscribe         = "unsubscribe"
	EventSubscribePharmacy   = "subscribe-pharmacy-updates"
	EventUnsubscribePharmacy = "unsubscribe-pharmacy-updates"
)

// Server -> client events.
const (
	EventWelcome    = "welcome"
	EventUserJoined = "user-joined"
	EventUserLeft   = "user-left"
	EventError      = "error"
)

// Message is an inbound control message.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Envelope is every outbound message.
type Envelope struct {
	Event string      `json:"event"`
	Topic string      `json:"topic,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// PeerData identifies a room member by its connection id.
type PeerData struct {
	ID string `json:"id"`
}

// SignalData is a relayed signaling payload tagged with its sender.
type SignalData struct {
	From string          `json:"from"`
	Data json.RawMessage `json:"data"`
}

// ErrorData describes a rejected control message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

type signalRequest struct {
	RoomID string          `json:"roomId"`
	Data   json.RawMessage `json:"data"`
}

type topicsRequest struct {
	Topics []string `json:"topics"`
}

// Client is one connection. ID is transient and distinct from UserID, which
// is empty for anonymous connections.
type Client struct {
	ID     string
	UserID string
	Send   chan []byte

	// guarded by Hub.mu
	topics map[string]struct{}
	rooms  map[string]struct{}
}

// NewClient returns a client with a buffered send queue.
func NewClient(id, userID string, buffer int) *Client {
	return &Client{
		ID:     id,
		UserID: userID,
		Send:   make(chan []byte, buffer),
		topics: make(map[string]struct{}),
		rooms:  make(map[string]struct{}),
	}
}

type HubConfig struct {
	// RoomCapacity caps members per room; 0 means unbounded.
	RoomCapacity int
	Logger       zerolog.Logger
	Metrics      *metrics.Collector
}

// Hub tracks clients, their topic subscriptions and their room memberships.
type Hub struct {
	mu     sync.RWMutex
	all    map[*Client]struct{}
	topics map[string]map[*Client]struct{}
	rooms  map[string]map[*Client]struct{}

	roomCapacity int
	logger       zerolog.Logger
	metrics      *metrics.Collector
}

func NewHub(cfg HubConfig) *Hub {
	return &Hub{
		all:          make(map[*Client]struct{}),
		topics:       make(map[string]map[*Client]struct{}),
		rooms:        make(map[string]map[*Client]struct{}),
		roomCapacity: cfg.RoomCapacity,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	if client.topics == nil {
		client.topics = make(map[string]struct{})
	}
	if client.rooms == nil {
		client.rooms = make(map[string]struct{})
	}
	h.all[client] = struct{}{}
	h.mu.Unlock()
	h.metrics.ClientConnected()
}

// Unregister drops the client from every topic and room, tells remaining room
// members that it left, and closes its send queue.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}

	for topic := range client.topics {
		removeMember(h.topics, topic, client)
	}
	for room := range client.rooms {
		removeMember(h.rooms, room, client)
		h.sendRoomLocked(room, client, mustMarshal(Envelope{Event: EventUserLeft, Data: PeerData{ID: client.ID}}))
	}
	client.topics = map[string]struct{}{}
	client.rooms = map[string]struct{}{}

	delete(h.all, client)
	close(client.Send)
	h.metrics.ClientDisconnected()
}

func removeMember(index map[string]map[*Client]struct{}, key string, client *Client) {
	if members, ok := index[key]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(index, key)
		}
	}
}

// CanSubscribe reports whether client may receive events on topic. User
// topics are private to their user; every other topic is open.
func CanSubscribe(client *Client, topic string) bool {
	if uid, ok := strings.CutPrefix(topic, "user:"); ok {
		return uid != "" && uid == client.UserID
	}
	return topic != ""
}

// Subscribe adds the permitted topics. Subscribing twice is a no-op. The
// first refused topic is reported as a Forbidden error.
func (h *Hub) Subscribe(client *Client, topics []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return apperr.Validation(apperr.CodeInvalidInput, "client is not connected")
	}
	var refused error
	for _, topic := range topics {
		if !CanSubscribe(client, topic) {
			if refused == nil {
				refused = apperr.Forbidden("cannot subscribe to %q", topic)
			}
			continue
		}
		if h.topics[topic] == nil {
			h.topics[topic] = make(map[*Client]struct{})
		}
		h.topics[topic][client] = struct{}{}
		client.topics[topic] = struct{}{}
	}
	return refused
}

// Unsubscribe removes topics; unknown topics are ignored.
func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topics {
		removeMember(h.topics, topic, client)
		delete(client.topics, topic)
	}
}

// JoinRoom adds client to room and announces it to the members already
// there. Joining a room the client is already in changes nothing.
func (h *Hub) JoinRoom(client *Client, room string) error {
	if room == "" {
		return apperr.MissingField("roomId")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return apperr.Validation(apperr.CodeInvalidInput, "client is not connected")
	}
	members := h.rooms[room]
	if _, ok := members[client]; ok {
		return nil
	}
	if h.roomCapacity > 0 && len(members) >= h.roomCapacity {
		return apperr.Conflict(apperr.CodeRoomFull, "room %s is full", room).
			WithDetail("capacity", h.roomCapacity)
	}

	if members == nil {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[client] = struct{}{}
	client.rooms[room] = struct{}{}

	h.sendRoomLocked(room, client, mustMarshal(Envelope{Event: EventUserJoined, Data: PeerData{ID: client.ID}}))
	return nil
}

// LeaveRoom removes client from room and tells the remaining members.
func (h *Hub) LeaveRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := client.rooms[room]; !ok {
		return
	}
	removeMember(h.rooms, room, client)
	delete(client.rooms, room)
	h.sendRoomLocked(room, client, mustMarshal(Envelope{Event: EventUserLeft, Data: PeerData{ID: client.ID}}))
}

// Signal forwards payload verbatim to every other member of room. Only
// members may signal into a room.
func (h *Hub) Signal(client *Client, room string, payload json.RawMessage) error {
	if room == "" {
		return apperr.MissingField("roomId")
	}
	msg, err := json.Marshal(Envelope{Event: EventSignal, Data: SignalData{From: client.ID, Data: payload}})
	if err != nil {
		return apperr.Validation(apperr.CodeInvalidInput, "signal payload is not valid JSON")
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := client.rooms[room]; !ok {
		return apperr.Forbidden("not a member of room %s", room)
	}
	h.sendRoomLocked(room, client, msg)
	h.metrics.SignalRelayed()
	return nil
}

// sendRoomLocked delivers msg to every member of room except skip. The
// caller holds h.mu.
func (h *Hub) sendRoomLocked(room string, skip *Client, msg []byte) {
	for member := range h.rooms[room] {
		if member != skip {
			h.deliver(member, msg)
		}
	}
}

func (h *Hub) deliver(client *Client, msg []byte) {
	select {
	case client.Send <- msg:
	default:
		h.logger.Debug().Str("client", client.ID).Msg("send buffer full, dropping message")
	}
}

// SendTo delivers an envelope to a single registered client.
func (h *Hub) SendTo(client *Client, env Envelope) {
	msg, err := json.Marshal(env)
	if err != nil {
		h.logger.Error().Err(err).Str("event", env.Event).Msg("marshal envelope")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.all[client]; ok {
		h.deliver(client, msg)
	}
}

// Broadcast sends an envelope to every subscriber of topic.
func (h *Hub) Broadcast(topic string, env Envelope) {
	msg, err := json.Marshal(env)
	if err != nil {
		h.logger.Error().Err(err).Str("event", env.Event).Msg("marshal envelope")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.topics[topic] {
		h.deliver(client, msg)
	}
}

// Publish pushes a domain event to the subscribers of its topic.
func (h *Hub) Publish(_ context.Context, event events.Event) error {
	h.Broadcast(event.Topic, Envelope{Event: event.Name, Topic: event.Topic, Data: event.Data})
	return nil
}

// ProcessMessage dispatches one inbound control message. Failures are
// reported back to the sender as an error event.
func (h *Hub) ProcessMessage(client *Client, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.replyError(client, "", apperr.Validation(apperr.CodeInvalidInput, "malformed message"))
		return
	}
	if err := h.dispatch(client, msg); err != nil {
		h.replyError(client, msg.Event, err)
	}
}

func (h *Hub) dispatch(client *Client, msg Message) error {
	switch msg.Event {
	case EventJoinRoom:
		room, err := roomID(msg.Data)
		if err != nil {
			return err
		}
		return h.JoinRoom(client, room)

	case EventLeaveRoom:
		room, err := roomID(msg.Data)
		if err != nil {
			return err
		}
		h.LeaveRoom(client, room)
		return nil

	case EventSignal:
		var req signalRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return apperr.Validation(apperr.CodeInvalidInput, "signal requires {roomId, data}")
		}
		return h.Signal(client, req.RoomID, req.Data)

	case EventSubscribe, EventUnsubscribe:
		var req topicsRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return apperr.Validation(apperr.CodeInvalidInput, "%s requires {topics}", msg.Event)
		}
		if msg.Event == EventUnsubscribe {
			h.Unsubscribe(client, req.Topics)
			return nil
		}
		return h.Subscribe(client, req.Topics)

	case EventSubscribePharmacy, EventUnsubscribePharmacy:
		id, err := stringOrField(msg.Data, "pharmacyId")
		if err != nil || id == "" {
			return apperr.MissingField("pharmacyId")
		}
		topic := events.PharmacyTopic(id)
		if msg.Event == EventUnsubscribePharmacy {
			h.Unsubscribe(client, []string{topic})
			return nil
		}
		return h.Subscribe(client, []string{topic})

	default:
		return apperr.Validation(apperr.CodeInvalidInput, "unknown event %q", msg.Event)
	}
}

func (h *Hub) replyError(client *Client, event string, err error) {
	data := ErrorData{Code: apperr.CodeInternal, Message: err.Error(), Event: event}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		data.Code = ae.Code
		data.Message = ae.Message
	}
	h.SendTo(client, Envelope{Event: EventError, Data: data})
}

// roomID accepts either a bare JSON string or {"roomId": "..."}.
func roomID(data json.RawMessage) (string, error) {
	id, err := stringOrField(data, "roomId")
	if err != nil || id == "" {
		return "", apperr.MissingField("roomId")
	}
	return id, nil
}

func stringOrField(data json.RawMessage, field string) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", fmt.Errorf("expected string or object: %w", err)
	}
	raw, ok := obj[field]
	if !ok {
		return "", nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%s must be a string: %w", field, err)
	}
	return s, nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func mustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("websocket: marshal %T: %v", v, err))
	}
	return b
}
