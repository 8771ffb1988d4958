// Package webhooks provides signed outbound webhook delivery.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Header names set on every delivery.
const (
	HeaderDelivery  = "X-Slawatch-Delivery"
	HeaderEvent     = "X-Slawatch-Event"
	HeaderSignature = "X-Slawatch-Signature-256"
	HeaderTimestamp = "X-Slawatch-Timestamp"
)

// maxResponseBody caps how much of a response body is kept.
const maxResponseBody = 64 * 1024

// ErrUnexpectedStatus is returned when the target answers with a non-2xx status.
var ErrUnexpectedStatus = errors.New("unexpected status code")

// ErrCircuitOpen is returned without contacting the target while its
// circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Config holds configuration for the webhook dispatcher.
type Config struct {
	RequestTimeout time.Duration
	// AllowPrivateTargets disables the private address guard. Only meant for
	// development and tests.
	AllowPrivateTargets bool
	// BreakerFailures is the number of consecutive failures that opens a
	// host's circuit breaker.
	BreakerFailures uint32
	// BreakerCooldown is how long an open breaker rejects deliveries before
	// letting a probe through.
	BreakerCooldown time.Duration
}

// DefaultConfig returns default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:  10 * time.Second,
		BreakerFailures: 5,
		BreakerCooldown: time.Minute,
	}
}

// Delivery is a single signed POST.
type Delivery struct {
	ID      string
	URL     string
	Event   string
	Secret  []byte
	Payload any
}

// Response describes a completed delivery attempt.
type Response struct {
	StatusCode int
	Body       string
	Duration   time.Duration
}

// Dispatcher sends webhooks with HMAC signatures, a bounded timeout and one
// circuit breaker per target host.
type Dispatcher struct {
	client *http.Client
	cfg    Config
	logger zerolog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewDispatcher creates a new webhook dispatcher.
func NewDispatcher(cfg Config, logger zerolog.Logger) *Dispatcher {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if !cfg.AllowPrivateTargets {
		transport.DialContext = guardedDialer(cfg.RequestTimeout)
	}

	return &Dispatcher{
		client: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: transport,
		},
		cfg:      cfg,
		logger:   logger.With().Str("component", "webhook_dispatcher").Logger(),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Send posts the delivery payload. A non-2xx answer is returned as an error
// wrapping ErrUnexpectedStatus together with the response.
func (d *Dispatcher) Send(ctx context.Context, delivery Delivery) (*Response, error) {
	target, err := url.Parse(delivery.URL)
	if err != nil {
		return nil, fmt.Errorf("parse webhook URL: %w", err)
	}

	payloadBytes, err := json.Marshal(delivery.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var resp *Response
	_, err = d.breaker(target.Host).Execute(func() (interface{}, error) {
		var sendErr error
		resp, sendErr = d.post(ctx, delivery, payloadBytes)
		return nil, sendErr
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		d.logger.Warn().
			Str("delivery_id", delivery.ID).
			Str("host", target.Host).
			Msg("webhook circuit breaker open, skipping delivery")
		return nil, fmt.Errorf("%w for %s", ErrCircuitOpen, target.Host)
	}
	return resp, err
}

func (d *Dispatcher) post(ctx context.Context, delivery Delivery, payloadBytes []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.URL, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Slawatch-Webhook/1.0")
	req.Header.Set(HeaderDelivery, delivery.ID)
	req.Header.Set(HeaderEvent, delivery.Event)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(time.Now().Unix(), 10))
	if len(delivery.Secret) > 0 {
		req.Header.Set(HeaderSignature, Sign(payloadBytes, delivery.Secret))
	}

	startTime := time.Now()
	httpResp, err := d.client.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		d.logger.Warn().Err(err).
			Str("delivery_id", delivery.ID).
			Dur("duration", duration).
			Msg("webhook delivery failed")
		return nil, fmt.Errorf("send webhook: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Body:       string(bodyBytes),
		Duration:   duration,
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		d.logger.Warn().
			Str("delivery_id", delivery.ID).
			Int("status", httpResp.StatusCode).
			Dur("duration", duration).
			Msg("webhook rejected")
		return resp, fmt.Errorf("%w: %d", ErrUnexpectedStatus, httpResp.StatusCode)
	}

	d.logger.Info().
		Str("delivery_id", delivery.ID).
		Int("status", httpResp.StatusCode).
		Dur("duration", duration).
		Msg("webhook delivered successfully")
	return resp, nil
}

// breaker returns the circuit breaker for a host, creating it on first use.
func (d *Dispatcher) breaker(host string) *gobreaker.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cb, ok := d.breakers[host]; ok {
		return cb
	}

	threshold := d.cfg.BreakerFailures
	if threshold == 0 {
		threshold = DefaultConfig().BreakerFailures
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     d.cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.logger.Info().
				Str("host", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("webhook circuit breaker state changed")
		},
	})
	d.breakers[host] = cb
	return cb
}

// Sign creates an HMAC-SHA256 signature for the payload.
func Sign(payload, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
