// Package router implements the webpush routing decision: deliver a
// notification straight to the connection server node holding the user's
// socket, or persist it durably for later pickup, correcting stale node
// state along the way.
package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/10allday-services/autopush-endpoint/internal/platform/metrics"
	"github.com/10allday-services/autopush-endpoint/pkg/push"
)

// WebPushRouter routes notifications for user agents connected through a
// connection server. The correct server is located via the user's routing
// record; if it is busy or unreachable the notification is stored instead.
//
// The router holds no per-request state and is safe for arbitrary
// concurrent use; all mutable state lives behind Storage.
type WebPushRouter struct {
	store       push.Storage
	delivery    push.DeliveryClient
	metrics     push.Metrics
	endpointURL *url.URL
	logger      zerolog.Logger
}

// New wires a WebPushRouter. endpointURL is the public base used to build
// message Location URLs.
func New(
	store push.Storage,
	delivery push.DeliveryClient,
	sink push.Metrics,
	endpointURL *url.URL,
	logger zerolog.Logger,
) (*WebPushRouter, error) {
	if store == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	if delivery == nil {
		return nil, fmt.Errorf("delivery client cannot be nil")
	}
	if endpointURL == nil {
		return nil, fmt.Errorf("endpoint URL cannot be nil")
	}
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &WebPushRouter{
		store:       store,
		delivery:    delivery,
		metrics:     sink,
		endpointURL: endpointURL,
		logger:      logger.With().Str("component", "webpush_router").Logger(),
	}, nil
}

// RouteNotification executes the routing state machine for one notification.
// It fails only with *Error or a wrapped storage error; node failures are
// always absorbed into the store-and-recheck fallback.
func (r *WebPushRouter) RouteNotification(ctx context.Context, notification *push.Notification) (*push.RouterResponse, error) {
	user := notification.Subscription.User
	log := r.logger.With().
		Str("uaid", user.UAID.String()).
		Str("message_id", notification.MessageID).
		Logger()
	log.Debug().Msg("Routing webpush notification")

	// Check if there is a node connected to the client.
	if user.NodeID != "" {
		status, err := r.delivery.SendNotification(ctx, user.NodeID, notification)
		switch {
		case err != nil:
			// The node is unreachable; stop sending notifications to it
			// for this user.
			log.Debug().Err(err).Str("node_id", user.NodeID).Msg("Error while sending webpush notification")
			if err := r.removeNodeID(ctx, user, user.NodeID); err != nil {
				return nil, err
			}
		case status == http.StatusOK:
			log.Trace().Msg("Node received notification")
			return r.makeDeliveredResponse(notification), nil
		default:
			// The node is up but busy or refused; fall through to storage.
			log.Trace().Int("status", status).Msg("Node did not receive the notification")
		}
	}

	// Node is not present or busy: save the notification.
	if err := r.storeNotification(ctx, notification); err != nil {
		return nil, err
	}

	// Retrieve the user data again; they may have reconnected or the node
	// may no longer be busy.
	user, err := r.store.GetUser(ctx, user.UAID)
	if err != nil {
		if errors.Is(err, push.ErrUserNotFound) {
			log.Trace().Msg("No user found, must have been deleted")
			return nil, newUserWasDeletedError()
		}
		// Database error, but the message is already stored so the request
		// still succeeds.
		log.Debug().Err(err).Msg("Database error while re-fetching user")
		return r.makeStoredResponse(notification), nil
	}

	// The user is not connected to a node, nothing more to do.
	if user.NodeID == "" {
		log.Trace().Msg("User is not connected to a node, returning stored response")
		return r.makeStoredResponse(notification), nil
	}

	// Notify the node to check for messages.
	status, err := r.delivery.TriggerCheck(ctx, user.NodeID, user.UAID)
	if err != nil {
		// Can't communicate with the node, so stop using it.
		log.Debug().Err(err).Str("node_id", user.NodeID).Msg("Error while triggering notification check")
		if err := r.removeNodeID(ctx, user, user.NodeID); err != nil {
			return nil, err
		}
		return r.makeStoredResponse(notification), nil
	}
	if status == http.StatusOK {
		log.Trace().Msg("Node has delivered the message")
		return r.makeDeliveredResponse(notification), nil
	}
	log.Trace().Int("status", status).Msg("Node has not delivered the message")
	return r.makeStoredResponse(notification), nil
}

// storeNotification persists the notification under the user's message
// partition, falling back to the store-wide default.
func (r *WebPushRouter) storeNotification(ctx context.Context, notification *push.Notification) error {
	user := notification.Subscription.User
	partition := user.CurrentMonth
	if partition == "" {
		partition = r.store.CurrentPartition()
	}

	if err := r.store.StoreMessage(ctx, user.UAID, partition, notification.ToStored()); err != nil {
		return newSaveDbError(err)
	}
	return nil
}

// removeNodeID clears a stale node pointer. The user's connectedAt guards
// against clobbering a concurrent reconnection. A failed clear is
// propagated at both call sites: the routing state may still point at a
// dead node and the sender should know the system is degraded.
func (r *WebPushRouter) removeNodeID(ctx context.Context, user *push.User, nodeID string) error {
	r.metrics.Incr("updates.client.host_gone")

	if err := r.store.RemoveNodeID(ctx, user.UAID, nodeID, user.ConnectedAt); err != nil {
		return fmt.Errorf("failed to remove node id: %w", err)
	}
	return nil
}

// makeDeliveredResponse reports a notification forwarded directly to a
// connection server.
func (r *WebPushRouter) makeDeliveredResponse(notification *push.Notification) *push.RouterResponse {
	return r.makeResponse(notification, "Direct", http.StatusOK)
}

// makeStoredResponse reports a notification stored for future transmission.
func (r *WebPushRouter) makeStoredResponse(notification *push.Notification) *push.RouterResponse {
	return r.makeResponse(notification, "Stored", http.StatusAccepted)
}

func (r *WebPushRouter) makeResponse(notification *push.Notification, destination string, status int) *push.RouterResponse {
	r.metrics.Count("notification.message_data", int64(len(notification.Data)), "destination:"+destination)

	// Message IDs are generated upstream and guaranteed URL-safe; anything
	// else is a bug, not a runtime condition.
	if escaped := url.PathEscape(notification.MessageID); escaped != notification.MessageID {
		panic(fmt.Sprintf("message ID is not URL-safe: %q", notification.MessageID))
	}
	location, err := r.endpointURL.Parse("/m/" + notification.MessageID)
	if err != nil {
		panic(fmt.Sprintf("message ID is not URL-safe: %q", notification.MessageID))
	}

	return &push.RouterResponse{
		Status: status,
		Headers: map[string]string{
			"Location": location.String(),
			"TTL":      push.FormatTTL(notification.Headers.TTLOrZero()),
		},
	}
}
