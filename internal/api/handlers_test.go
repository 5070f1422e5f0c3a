package api_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/10allday-services/autopush-endpoint/internal/api"
	"github.com/10allday-services/autopush-endpoint/internal/router"
	"github.com/10allday-services/autopush-endpoint/pkg/push"
)

type mockRouter struct {
	mock.Mock
}

func (m *mockRouter) RouteNotification(ctx context.Context, n *push.Notification) (*push.RouterResponse, error) {
	args := m.Called(ctx, n)
	var response *push.RouterResponse
	if val, ok := args.Get(0).(*push.RouterResponse); ok {
		response = val
	}
	return response, args.Error(1)
}

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) GetUser(ctx context.Context, uaid uuid.UUID) (*push.User, error) {
	args := m.Called(ctx, uaid)
	var user *push.User
	if val, ok := args.Get(0).(*push.User); ok {
		user = val
	}
	return user, args.Error(1)
}

func (m *mockStorage) StoreMessage(ctx context.Context, uaid uuid.UUID, partition string, msg *push.StoredMessage) error {
	return m.Called(ctx, uaid, partition, msg).Error(0)
}

func (m *mockStorage) RemoveNodeID(ctx context.Context, uaid uuid.UUID, nodeID string, connectedAt int64) error {
	return m.Called(ctx, uaid, nodeID, connectedAt).Error(0)
}

func (m *mockStorage) CurrentPartition() string {
	return m.Called().String(0)
}

var (
	testUAID = uuid.MustParse("8a0e3b06-9cb2-44b6-88b7-3b1eb48c07f3")
	testCHID = uuid.MustParse("52a25094-0e33-4dfa-939e-ab7f0b8f2687")
)

func saveDbError(t *testing.T) error {
	t.Helper()
	return &router.Error{Kind: router.KindSaveDb}
}

func userDeletedError(t *testing.T) error {
	t.Helper()
	return &router.Error{Kind: router.KindUserWasDeleted}
}

func newServer(t *testing.T, rtr *mockRouter, store *mockStorage) *httptest.Server {
	t.Helper()
	handler, err := api.NewAPI(rtr, store, zerolog.Nop())
	require.NoError(t, err)
	server := httptest.NewServer(handler.Routes())
	t.Cleanup(server.Close)
	return server
}

func pushURL(server *httptest.Server) string {
	return server.URL + "/push/" + testUAID.String() + "/" + testCHID.String()
}

func doPost(t *testing.T, url, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestPushHandlerRoutesNotification(t *testing.T) {
	rtr := new(mockRouter)
	store := new(mockStorage)
	user := &push.User{UAID: testUAID, NodeID: "http://node-1:8080", ConnectedAt: 1756600000000}

	store.On("GetUser", mock.Anything, testUAID).Return(user, nil).Once()
	rtr.On("RouteNotification", mock.Anything, mock.MatchedBy(func(n *push.Notification) bool {
		return n.Subscription.User == user &&
			n.Subscription.ChannelID == testCHID &&
			n.Data == base64.RawURLEncoding.EncodeToString([]byte("payload")) &&
			n.MessageID != "" &&
			n.Headers.ContentEncoding == "aes128gcm"
	})).Return(&push.RouterResponse{
		Status: http.StatusCreated,
		Headers: map[string]string{
			"Location": "https://updates.example.com/m/abc",
			"TTL":      "60",
		},
	}, nil).Once()

	server := newServer(t, rtr, store)
	resp := doPost(t, pushURL(server), "payload", map[string]string{
		"TTL":              "60",
		"Content-Encoding": "aes128gcm",
	})

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "https://updates.example.com/m/abc", resp.Header.Get("Location"))
	assert.Equal(t, "60", resp.Header.Get("TTL"))
	rtr.AssertExpectations(t)
	store.AssertExpectations(t)
}

// Ciphertext payloads are not valid UTF-8; the raw bytes must survive the
// string boundary via the base64url encoding applied at extraction.
func TestPushHandlerEncodesBinaryPayload(t *testing.T) {
	raw := []byte{0x8c, 0xff, 0x00, 0x01, 0xfe}
	rtr := new(mockRouter)
	store := new(mockStorage)

	store.On("GetUser", mock.Anything, testUAID).Return(&push.User{UAID: testUAID}, nil).Once()
	rtr.On("RouteNotification", mock.Anything, mock.MatchedBy(func(n *push.Notification) bool {
		decoded, err := base64.RawURLEncoding.DecodeString(n.Data)
		return err == nil && bytes.Equal(decoded, raw)
	})).Return(&push.RouterResponse{
		Status:  http.StatusOK,
		Headers: map[string]string{},
	}, nil).Once()

	server := newServer(t, rtr, store)
	req, err := http.NewRequest(http.MethodPost, pushURL(server), bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Encoding", "aes128gcm")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	rtr.AssertExpectations(t)
}

func TestPushHandlerInvalidToken(t *testing.T) {
	server := newServer(t, new(mockRouter), new(mockStorage))
	resp := doPost(t, server.URL+"/push/not-a-uuid/"+testCHID.String(), "", nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(102), body["errno"])
}

func TestPushHandlerValidationErrors(t *testing.T) {
	t.Run("negative ttl carries code 114 and params", func(t *testing.T) {
		server := newServer(t, new(mockRouter), new(mockStorage))
		resp := doPost(t, pushURL(server), "", map[string]string{"TTL": "-1"})

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, float64(114), body["errno"])
		params := body["params"].(map[string]any)
		assert.Equal(t, float64(-1), params["value"])
	})

	t.Run("encryption error is message-only", func(t *testing.T) {
		server := newServer(t, new(mockRouter), new(mockStorage))
		resp := doPost(t, pushURL(server), "payload", nil)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, "invalid encryption: Missing Content-Encoding header", body["message"])
		_, hasErrNo := body["errno"]
		assert.False(t, hasErrNo)
	})
}

func TestPushHandlerUserGone(t *testing.T) {
	rtr := new(mockRouter)
	store := new(mockStorage)
	store.On("GetUser", mock.Anything, testUAID).Return(nil, push.ErrUserNotFound).Once()

	server := newServer(t, rtr, store)
	resp := doPost(t, pushURL(server), "", nil)

	assert.Equal(t, http.StatusGone, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(103), body["errno"])
	rtr.AssertNotCalled(t, "RouteNotification", mock.Anything, mock.Anything)
}

func TestPushHandlerRouterErrors(t *testing.T) {
	t.Run("storage outage maps to 503 errno 201", func(t *testing.T) {
		rtr := new(mockRouter)
		store := new(mockStorage)
		store.On("GetUser", mock.Anything, testUAID).Return(&push.User{UAID: testUAID}, nil).Once()
		rtr.On("RouteNotification", mock.Anything, mock.Anything).
			Return(nil, saveDbError(t)).Once()

		server := newServer(t, rtr, store)
		resp := doPost(t, pushURL(server), "", nil)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, float64(201), body["errno"])
	})

	t.Run("user deleted during routing maps to 410 errno 105", func(t *testing.T) {
		rtr := new(mockRouter)
		store := new(mockStorage)
		store.On("GetUser", mock.Anything, testUAID).Return(&push.User{UAID: testUAID}, nil).Once()
		rtr.On("RouteNotification", mock.Anything, mock.Anything).
			Return(nil, userDeletedError(t)).Once()

		server := newServer(t, rtr, store)
		resp := doPost(t, pushURL(server), "", nil)

		assert.Equal(t, http.StatusGone, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, float64(105), body["errno"])
	})

	t.Run("wrapped storage error maps to 503", func(t *testing.T) {
		rtr := new(mockRouter)
		store := new(mockStorage)
		store.On("GetUser", mock.Anything, testUAID).Return(&push.User{UAID: testUAID}, nil).Once()
		rtr.On("RouteNotification", mock.Anything, mock.Anything).
			Return(nil, errors.New("failed to remove node id: connection reset")).Once()

		server := newServer(t, rtr, store)
		resp := doPost(t, pushURL(server), "", nil)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}
