// Package webhook receives server-to-server transaction notifications over HTTP and exposes
// them as a storekit.TransactionSource.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mihaimyh/gostorekit/pkg/storekit"
)

const (
	sourceName = "webhook"

	// DefaultMaxBodyBytes caps notification bodies at 256KB.
	DefaultMaxBodyBytes = 256 * 1024

	// DefaultRateLimit is the number of requests a client IP may make per DefaultRateWindow.
	DefaultRateLimit  = 100
	DefaultRateWindow = time.Minute

	// DefaultBuffer is the number of accepted notifications queued for the observer.
	DefaultBuffer = 64

	// SignatureHeader carries a base64 HMAC-SHA256 of the body when HMAC auth is enabled.
	SignatureHeader = "X-Storekit-Signature"
)

// Notification status labels reported to storekit.Metrics.RecordNotification.
const (
	StatusAccepted   = "accepted"
	StatusUnverified = "unverified"
	StatusInvalid    = "invalid"
	StatusAuthFailed = "auth_failed"
	StatusRejected   = "rejected"
	StatusBusy       = "busy"
)

// ErrClosed is returned by Updates after the handler is closed.
var ErrClosed = errors.New("webhook handler closed")

// Config holds webhook handler configuration.
type Config struct {
	// Secret is the shared bearer token, also the HMAC key when AcceptHMAC is set.
	// An empty secret rejects every request.
	Secret string

	// AcceptHMAC additionally accepts a base64 HMAC-SHA256 signature of the body.
	AcceptHMAC bool

	MaxBodyBytes int64
	RateLimit    int
	RateWindow   time.Duration
	Buffer       int

	Logger  storekit.Logger
	Metrics storekit.Metrics
}

// Handler is an http.Handler accepting Notification bodies.
type Handler struct {
	secret     []byte
	acceptHMAC bool
	maxBody    int64
	limiter    *RateLimiter
	logger     storekit.Logger
	metrics    storekit.Metrics

	mu      sync.RWMutex
	closed  bool
	updates chan storekit.VerificationResult
}

// NewHandler creates a notification handler.
func NewHandler(config Config) *Handler {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if config.RateLimit <= 0 {
		config.RateLimit = DefaultRateLimit
	}
	if config.RateWindow <= 0 {
		config.RateWindow = DefaultRateWindow
	}
	if config.Buffer <= 0 {
		config.Buffer = DefaultBuffer
	}
	if config.Logger == nil {
		config.Logger = &storekit.NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &storekit.NoopMetrics{}
	}

	return &Handler{
		secret:     []byte(config.Secret),
		acceptHMAC: config.AcceptHMAC,
		maxBody:    config.MaxBodyBytes,
		limiter:    NewRateLimiter(config.RateLimit, config.RateWindow),
		logger:     config.Logger,
		metrics:    config.Metrics,
		updates:    make(chan storekit.VerificationResult, config.Buffer),
	}
}

// Handler returns the endpoint wrapped with per-client rate limiting.
func (h *Handler) Handler() http.Handler {
	return h.limiter.Middleware(h)
}

// Updates implements storekit.TransactionSource. The returned channel is shared by all callers
// and closed by Close.
func (h *Handler) Updates(_ context.Context) (<-chan storekit.VerificationResult, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, ErrClosed
	}
	return h.updates, nil
}

// Close stops accepting notifications and closes the updates channel.
func (h *Handler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.updates)
	}
	return nil
}

// Result is the answer to one notification delivery attempt.
type Result struct {
	Code   int
	Status string
	Err    string
}

// Body is the JSON response for the result.
func (r Result) Body() map[string]string {
	if r.Err != "" {
		return map[string]string{"status": r.Status, "error": r.Err}
	}
	return map[string]string{"status": r.Status}
}

// Allow applies the per-client rate limit. Router adapters call it before reading the body.
func (h *Handler) Allow(clientIP string) bool {
	return h.limiter.Allow(clientIP)
}

// MaxBodyBytes is the largest body Receive should be handed.
func (h *Handler) MaxBodyBytes() int64 {
	return h.maxBody
}

// BodyFailure maps an error from reading the request body to its result.
func (h *Handler) BodyFailure(err error) Result {
	h.metrics.RecordNotification(sourceName, StatusInvalid)
	if errors.Is(err, ErrPayloadTooLarge) {
		return Result{Code: http.StatusRequestEntityTooLarge, Status: StatusInvalid, Err: err.Error()}
	}
	return Result{Code: http.StatusBadRequest, Status: StatusInvalid, Err: err.Error()}
}

// Receive authenticates, decodes and enqueues one notification body. ctx bounds how long
// the enqueue may wait for the observer.
func (h *Handler) Receive(ctx context.Context, credential string, body []byte, clientIP string) Result {
	if !h.verify(credential, body) {
		h.metrics.RecordNotification(sourceName, StatusAuthFailed)
		h.logger.Warn("rejected notification with invalid credentials",
			storekit.Field{Key: "client_ip", Value: clientIP})
		return Result{Code: http.StatusUnauthorized, Status: StatusAuthFailed, Err: "unauthorized"}
	}

	notification, err := storekit.ParseNotification(body)
	if err != nil {
		h.metrics.RecordNotification(sourceName, StatusInvalid)
		h.logger.Warn("failed to decode notification", storekit.Field{Key: "error", Value: err})
		return Result{Code: http.StatusBadRequest, Status: StatusInvalid, Err: "invalid notification"}
	}

	status := StatusAccepted
	if !notification.Verified {
		status = StatusUnverified
	}

	if !h.enqueue(ctx, notification.VerificationResult()) {
		h.metrics.RecordNotification(sourceName, StatusBusy)
		return Result{Code: http.StatusServiceUnavailable, Status: StatusBusy, Err: "notification queue unavailable"}
	}

	h.metrics.RecordNotification(sourceName, status)
	h.logger.Debug("notification accepted",
		storekit.Field{Key: "transaction_id", Value: notification.Transaction.ID},
		storekit.Field{Key: "type", Value: notification.Type})
	return Result{Code: http.StatusOK, Status: status}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.metrics.RecordNotification(sourceName, StatusRejected)
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var result Result
	if body, err := readBodyStrict(w, r, h.maxBody); err != nil {
		result = h.BodyFailure(err)
	} else {
		result = h.Receive(r.Context(), extractCredential(r), body, ClientIP(r))
	}
	writeJSON(w, result.Code, result.Body())
}

// enqueue hands the update to the observer, waiting at most until the request is abandoned.
func (h *Handler) enqueue(ctx context.Context, update storekit.VerificationResult) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return false
	}
	select {
	case h.updates <- update:
		return true
	case <-ctx.Done():
		return false
	}
}

func (h *Handler) verify(credential string, body []byte) bool {
	if len(h.secret) == 0 || credential == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(credential), h.secret) == 1 {
		return true
	}
	if !h.acceptHMAC {
		return false
	}
	expected, err := base64.StdEncoding.DecodeString(credential)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, Sign(h.secret, body))
}

// Sign returns the HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

func extractCredential(r *http.Request) string {
	return Credential(r.Header.Get("Authorization"), r.Header.Get(SignatureHeader))
}

// Credential picks the secret presented with a request: a bearer token or raw Authorization
// value, else the body signature header.
func Credential(authorization, signature string) string {
	auth := strings.TrimSpace(authorization)
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	if auth != "" {
		return auth
	}
	return strings.TrimSpace(signature)
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}
