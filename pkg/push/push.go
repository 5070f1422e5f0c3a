// Package push contains the public domain models and dependency contracts for
// the endpoint routing core. It defines the shapes that flow between the
// extraction layer, the router, and the platform adapters.
package push

import (
	"strconv"

	"github.com/google/uuid"
)

// MaxTTL is the longest a notification may wait for pickup, in seconds
// (60 days). Larger client-supplied values are clamped, never rejected.
const MaxTTL int64 = 60 * 60 * 24 * 60

// User is the subscriber identity record as held by Storage.
//
// A User is never mutated in memory by the router; node state changes go
// through Storage.RemoveNodeID and the router re-fetches before trusting
// updated state.
type User struct {
	// UAID uniquely identifies the user agent.
	UAID uuid.UUID `json:"uaid"`
	// NodeID is the address of the connection server instance currently
	// believed to hold this user's socket. Empty if no node is known.
	NodeID string `json:"node_id,omitempty"`
	// CurrentMonth names the storage partition holding this user's pending
	// messages. Empty means the store-wide default partition.
	CurrentMonth string `json:"current_month,omitempty"`
	// ConnectedAt is the timestamp (ms) of the user's last connection. It is
	// the optimistic-concurrency guard for RemoveNodeID.
	ConnectedAt int64 `json:"connected_at"`
}

// Subscription binds a User to one of their registered channels.
type Subscription struct {
	User      *User
	ChannelID uuid.UUID
}

// NotificationHeaders is the validated header bundle for a notification.
// Once constructed by the headers package it is internally consistent for the
// declared content encoding; nothing downstream re-validates it.
type NotificationHeaders struct {
	// TTL is nil when the client sent no (or an unparsable) TTL header.
	TTL             *int64
	Topic           string
	ContentEncoding string
	Encryption      string
	EncryptionKey   string
	CryptoKey       string
}

// TTLOrZero returns the TTL value, or 0 when the header was absent.
func (h *NotificationHeaders) TTLOrZero() int64 {
	if h.TTL == nil {
		return 0
	}
	return *h.TTL
}

// Notification is a single message unit to deliver. It is immutable once
// constructed and consumed exactly once by the router.
type Notification struct {
	// MessageID is generated upstream and guaranteed URL-safe.
	MessageID    string
	Subscription *Subscription
	Headers      *NotificationHeaders
	// Timestamp is the unix time (s) the notification entered the pipeline.
	Timestamp int64
	// Data is the opaque payload body, base64url-encoded (unpadded) at
	// extraction so the raw ciphertext bytes survive every string
	// boundary. Empty means the notification has no payload.
	Data string
	// SortKey orders the message within its user's pending queue.
	SortKey string
}

// StoredMessage is the storage-layer record a Notification is translated to
// on the store path. The Notification struct itself is never persisted.
type StoredMessage struct {
	ChannelID uuid.UUID         `json:"channel_id" firestore:"channel_id"`
	MessageID string            `json:"message_id" firestore:"message_id"`
	SortKey   string            `json:"sort_key" firestore:"sort_key"`
	TTL       int64             `json:"ttl" firestore:"ttl"`
	Topic     string            `json:"topic,omitempty" firestore:"topic,omitempty"`
	Timestamp int64             `json:"timestamp" firestore:"timestamp"`
	Data      string            `json:"data,omitempty" firestore:"data,omitempty"`
	Headers   map[string]string `json:"headers,omitempty" firestore:"headers,omitempty"`
}

// ToStored translates the notification into its storage record.
func (n *Notification) ToStored() *StoredMessage {
	return &StoredMessage{
		ChannelID: n.Subscription.ChannelID,
		MessageID: n.MessageID,
		SortKey:   n.SortKey,
		TTL:       n.Headers.TTLOrZero(),
		Topic:     n.Headers.Topic,
		Timestamp: n.Timestamp,
		Data:      n.Data,
		Headers:   n.Headers.WireMap(),
	}
}

// WireMap flattens the encryption-describing headers for persistence and
// delivery. Absent headers are omitted.
func (h *NotificationHeaders) WireMap() map[string]string {
	m := make(map[string]string, 4)
	if h.ContentEncoding != "" {
		m["content_encoding"] = h.ContentEncoding
	}
	if h.Encryption != "" {
		m["encryption"] = h.Encryption
	}
	if h.EncryptionKey != "" {
		m["encryption_key"] = h.EncryptionKey
	}
	if h.CryptoKey != "" {
		m["crypto_key"] = h.CryptoKey
	}
	return m
}

// RouterResponse is the terminal outcome of one routing attempt.
type RouterResponse struct {
	Status  int
	Headers map[string]string
	Body    string
}

// FormatTTL renders a TTL value the way it is echoed in response headers.
func FormatTTL(ttl int64) string {
	return strconv.FormatInt(ttl, 10)
}
