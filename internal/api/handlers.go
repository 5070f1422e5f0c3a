// Package api exposes the HTTP ingress for notification delivery: it
// extracts and validates the wire headers, constructs the Notification, and
// hands it to the router, translating the outcome back onto the response.
package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/10allday-services/autopush-endpoint/internal/headers"
	"github.com/10allday-services/autopush-endpoint/internal/router"
	"github.com/10allday-services/autopush-endpoint/pkg/push"
)

// Stable error numbers for the ingress-level failures this layer owns.
const (
	errnoInvalidToken = 102
	errnoNoSuchUser   = 103
	errnoUnknown      = 999
)

// maxPayloadBytes bounds the request body read; webpush payloads are small.
const maxPayloadBytes = 64 * 1024

// API holds the dependencies for the stateless HTTP handlers.
type API struct {
	router push.Router
	store  push.Storage
	logger zerolog.Logger
}

// NewAPI creates a new, stateless API handler.
func NewAPI(router push.Router, store push.Storage, logger zerolog.Logger) (*API, error) {
	if router == nil {
		return nil, fmt.Errorf("router cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	return &API{
		router: router,
		store:  store,
		logger: logger.With().Str("component", "api").Logger(),
	}, nil
}

// Routes mounts the ingress endpoints.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/push/{uaid}/{chid}", a.PushHandler)
	return r
}

// PushHandler ingests one notification and routes it.
func (a *API) PushHandler(w http.ResponseWriter, r *http.Request) {
	uaid, err := uuid.Parse(chi.URLParam(r, "uaid"))
	if err != nil {
		writeError(w, http.StatusNotFound, errnoInvalidToken, "invalid subscription token")
		return
	}
	chid, err := uuid.Parse(chi.URLParam(r, "chid"))
	if err != nil {
		writeError(w, http.StatusNotFound, errnoInvalidToken, "invalid subscription token")
		return
	}
	log := a.logger.With().Str("uaid", uaid.String()).Logger()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read request body")
		writeError(w, http.StatusRequestEntityTooLarge, errnoUnknown, "request body too large")
		return
	}

	validated, err := headers.Validate(r.Header, len(body) > 0)
	if err != nil {
		a.writeHeaderError(w, log, err)
		return
	}

	user, err := a.store.GetUser(r.Context(), uaid)
	if err != nil {
		if errors.Is(err, push.ErrUserNotFound) {
			writeError(w, http.StatusGone, errnoNoSuchUser, "endpoint is no longer valid")
			return
		}
		log.Error().Err(err).Msg("Failed to fetch user")
		writeError(w, http.StatusServiceUnavailable, errnoUnknown, "storage error")
		return
	}

	// The payload is ciphertext, not text. It is base64url-encoded here,
	// once, so every later boundary (node delivery, Redis, Firestore)
	// carries it as a plain string without mangling the raw bytes.
	now := time.Now().Unix()
	notification := &push.Notification{
		MessageID:    uuid.NewString(),
		Subscription: &push.Subscription{User: user, ChannelID: chid},
		Headers:      validated,
		Timestamp:    now,
		Data:         base64.RawURLEncoding.EncodeToString(body),
		SortKey:      sortKey(chid, validated.Topic, now),
	}
	log = log.With().Str("message_id", notification.MessageID).Logger()

	response, err := a.router.RouteNotification(r.Context(), notification)
	if err != nil {
		a.writeRouterError(w, log, err)
		return
	}

	for name, value := range response.Headers {
		w.Header().Set(name, value)
	}
	w.WriteHeader(response.Status)
	if response.Body != "" {
		_, _ = w.Write([]byte(response.Body))
	}
}

// sortKey orders a message within its user's pending queue. Topic messages
// key on the topic so a newer notification replaces an undelivered one;
// non-topic messages key on arrival time.
func sortKey(chid uuid.UUID, topic string, timestamp int64) string {
	if topic != "" {
		return fmt.Sprintf("01:%s:%s", chid, topic)
	}
	return fmt.Sprintf("02:%d:%s", timestamp, chid)
}

func (a *API) writeHeaderError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var fieldErr *headers.FieldError
	if errors.As(err, &fieldErr) {
		log.Debug().Err(err).Msg("Header validation failed")
		errno, _ := strconv.Atoi(fieldErr.Code)
		writeJSON(w, http.StatusBadRequest, &errorBody{
			Code:    http.StatusBadRequest,
			ErrNo:   errno,
			Message: fieldErr.Message,
			Params:  fieldErr.Params,
		})
		return
	}

	var encErr *headers.EncryptionError
	if errors.As(err, &encErr) {
		log.Debug().Err(err).Msg("Encryption header validation failed")
		// Encryption errors carry no numeric code, only a message.
		writeJSON(w, http.StatusBadRequest, &errorBody{
			Code:    http.StatusBadRequest,
			Message: encErr.Error(),
		})
		return
	}

	log.Error().Err(err).Msg("Unexpected validation failure")
	writeError(w, http.StatusBadRequest, errnoUnknown, "invalid request")
}

func (a *API) writeRouterError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var routerErr *router.Error
	if errors.As(err, &routerErr) {
		log.Warn().Err(err).Int("status", routerErr.Status()).Msg("Routing failed")
		writeError(w, routerErr.Status(), routerErr.ErrNo(), routerErr.Error())
		return
	}

	log.Error().Err(err).Msg("Routing failed with a storage error")
	writeError(w, http.StatusServiceUnavailable, errnoUnknown, "storage error")
}
