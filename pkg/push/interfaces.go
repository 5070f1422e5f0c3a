package push

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrUserNotFound is returned by Storage.GetUser when no record exists for
// the UAID. Storage implementations must map their backend's not-found
// condition onto this sentinel so callers can distinguish a deleted user
// from a storage outage.
var ErrUserNotFound = errors.New("no user record found")

// Storage is the durable store holding user routing records and pending
// messages. Implementations handle their own concurrency discipline; the
// router never caches or mutates state outside these calls.
type Storage interface {
	// GetUser fetches the routing record for a user agent.
	GetUser(ctx context.Context, uaid uuid.UUID) (*User, error)

	// StoreMessage durably saves a pending message under (uaid, partition).
	StoreMessage(ctx context.Context, uaid uuid.UUID, partition string, msg *StoredMessage) error

	// RemoveNodeID clears the user's node pointer, but only while the record
	// still carries nodeID and connectedAt. A mismatched guard means a
	// genuine reconnection won the race; the call is then a no-op success.
	RemoveNodeID(ctx context.Context, uaid uuid.UUID, nodeID string, connectedAt int64) error

	// CurrentPartition returns the store's default message partition, used
	// when a user record does not name one.
	CurrentPartition() string
}

// Router routes a notification to its user agent. WebPush delivery over a
// connection server is one variant; new delivery families implement the same
// contract rather than extending the webpush router.
type Router interface {
	RouteNotification(ctx context.Context, notification *Notification) (*RouterResponse, error)
}

// DeliveryClient reaches a connection server node directly by its address.
// The returned int is the node's HTTP status; a non-nil error means the call
// itself failed (the node is unreachable) and the status is meaningless.
type DeliveryClient interface {
	// SendNotification delivers the serialized notification to the node
	// holding the user's socket.
	SendNotification(ctx context.Context, nodeID string, notification *Notification) (int, error)

	// TriggerCheck asks the node to check its pending queue for the user.
	TriggerCheck(ctx context.Context, nodeID string, uaid uuid.UUID) (int, error)
}

// Metrics is the minimal counter surface the routing core reports through.
type Metrics interface {
	// Incr bumps a plain counter by one.
	Incr(name string)
	// Count adds value to a counter with "key:value" tags.
	Count(name string, value int64, tags ...string)
}
