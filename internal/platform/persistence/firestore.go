// Package persistence contains the Storage implementations backing the
// routing core: user routing records and pending message persistence.
package persistence

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/10allday-services/autopush-endpoint/pkg/push"
)

const (
	usersCollection   = "users"
	pendingCollection = "pending"
	// Message documents live in per-partition top-level collections so a
	// whole month of traffic can be rotated out cheaply.
	messageCollectionPrefix = "messages-"
)

// userDoc is the shape of a user routing record in Firestore. The UAID is
// the document ID, not a field.
type userDoc struct {
	NodeID       string `firestore:"node_id,omitempty"`
	CurrentMonth string `firestore:"current_month,omitempty"`
	ConnectedAt  int64  `firestore:"connected_at"`
}

// messageDoc wraps the stored message with the server-side fields needed for
// ordering and expiry.
type messageDoc struct {
	QueuedAt  time.Time           `firestore:"queued_at"`
	ExpiresAt time.Time           `firestore:"expires_at"`
	Message   *push.StoredMessage `firestore:"message"`
}

// FirestoreStorage implements push.Storage using Google Cloud Firestore.
type FirestoreStorage struct {
	client       *firestore.Client
	currentMonth string
	logger       zerolog.Logger
}

// NewFirestoreStorage is the constructor for the FirestoreStorage.
// currentMonth is the store-wide default message partition.
func NewFirestoreStorage(client *firestore.Client, currentMonth string, logger zerolog.Logger) (*FirestoreStorage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client cannot be nil")
	}
	if currentMonth == "" {
		return nil, fmt.Errorf("current message partition cannot be empty")
	}
	return &FirestoreStorage{
		client:       client,
		currentMonth: currentMonth,
		logger:       logger.With().Str("component", "firestore_storage").Logger(),
	}, nil
}

// GetUser fetches the routing record for a user agent. A missing document
// maps to push.ErrUserNotFound.
func (s *FirestoreStorage) GetUser(ctx context.Context, uaid uuid.UUID) (*push.User, error) {
	snap, err := s.client.Collection(usersCollection).Doc(uaid.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, push.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to fetch user %s: %w", uaid, err)
	}

	var doc userDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user %s: %w", uaid, err)
	}

	return &push.User{
		UAID:         uaid,
		NodeID:       doc.NodeID,
		CurrentMonth: doc.CurrentMonth,
		ConnectedAt:  doc.ConnectedAt,
	}, nil
}

// StoreMessage saves a pending message under (uaid, partition), keyed by its
// sort key so a repeated store of the same notification overwrites rather
// than duplicates.
func (s *FirestoreStorage) StoreMessage(ctx context.Context, uaid uuid.UUID, partition string, msg *push.StoredMessage) error {
	now := time.Now().UTC()
	ttl := msg.TTL
	if ttl <= 0 || ttl > push.MaxTTL {
		ttl = push.MaxTTL
	}

	docRef := s.client.
		Collection(messageCollectionPrefix + partition).
		Doc(uaid.String()).
		Collection(pendingCollection).
		Doc(msg.SortKey)

	_, err := docRef.Set(ctx, &messageDoc{
		QueuedAt:  now,
		ExpiresAt: now.Add(time.Duration(ttl) * time.Second),
		Message:   msg,
	})
	if err != nil {
		return fmt.Errorf("failed to store message %s for user %s: %w", msg.MessageID, uaid, err)
	}

	s.logger.Debug().
		Str("uaid", uaid.String()).
		Str("partition", partition).
		Str("message_id", msg.MessageID).
		Msg("Stored pending message")
	return nil
}

// RemoveNodeID clears the user's node pointer inside a transaction. The
// transaction re-reads node_id and connected_at; if either no longer
// matches, a reconnection won the race and the call is a no-op success.
func (s *FirestoreStorage) RemoveNodeID(ctx context.Context, uaid uuid.UUID, nodeID string, connectedAt int64) error {
	docRef := s.client.Collection(usersCollection).Doc(uaid.String())

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil
			}
			return err
		}

		var doc userDoc
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		if doc.NodeID != nodeID || doc.ConnectedAt != connectedAt {
			// The user reconnected after the router last observed them.
			return nil
		}

		return tx.Update(docRef, []firestore.Update{
			{Path: "node_id", Value: firestore.Delete},
		})
	})
	if err != nil {
		return fmt.Errorf("failed to remove node id for user %s: %w", uaid, err)
	}

	s.logger.Debug().Str("uaid", uaid.String()).Str("node_id", nodeID).Msg("Cleared stale node pointer")
	return nil
}

// CurrentPartition returns the store-wide default message partition.
func (s *FirestoreStorage) CurrentPartition() string {
	return s.currentMonth
}
