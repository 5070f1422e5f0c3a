// Package delivery talks to connection server nodes over HTTP. A node is
// addressed directly by the node_id recorded on the user's routing record.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/10allday-services/autopush-endpoint/pkg/push"
)

const defaultTimeout = 5 * time.Second

// payload is the JSON body a connection server expects on its push endpoint.
// "version" carries the message ID, matching the connection server's wire
// contract.
type payload struct {
	ChannelID string            `json:"channelID"`
	Version   string            `json:"version"`
	TTL       int64             `json:"ttl"`
	Topic     string            `json:"topic,omitempty"`
	Timestamp int64             `json:"timestamp"`
	Data      string            `json:"data,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// Client implements push.DeliveryClient over net/http.
type Client struct {
	http   *http.Client
	logger zerolog.Logger
}

// New builds a delivery client. httpClient may be nil, in which case a
// client with a short per-call timeout is used; the router has no retry, so
// a slow node must fail fast into the storage fallback.
func New(httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		http:   httpClient,
		logger: logger.With().Str("component", "delivery_client").Logger(),
	}
}

// SendNotification PUTs the serialized notification to the node. The
// returned status is the node's verdict: 200 means accepted and delivered,
// anything else means busy or refused.
func (c *Client) SendNotification(ctx context.Context, nodeID string, notification *push.Notification) (int, error) {
	body, err := json.Marshal(&payload{
		ChannelID: notification.Subscription.ChannelID.String(),
		Version:   notification.MessageID,
		TTL:       notification.Headers.TTLOrZero(),
		Topic:     notification.Headers.Topic,
		Timestamp: notification.Timestamp,
		Data:      notification.Data,
		Headers:   notification.Headers.WireMap(),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to serialize notification: %w", err)
	}

	url := fmt.Sprintf("%s/push/%s", nodeID, notification.Subscription.User.UAID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

// TriggerCheck PUTs an empty body to the node's notif endpoint, asking it to
// check the user's pending queue. 200 means it checked and delivered.
func (c *Client) TriggerCheck(ctx context.Context, nodeID string, uaid uuid.UUID) (int, error) {
	url := fmt.Sprintf("%s/notif/%s", nodeID, uaid)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build notif request: %w", err)
	}

	return c.do(req)
}

func (c *Client) do(req *http.Request) (int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	c.logger.Trace().Str("url", req.URL.String()).Int("status", resp.StatusCode).Msg("Node call complete")
	return resp.StatusCode, nil
}
