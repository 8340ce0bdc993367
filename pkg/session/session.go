// Package session provides the authenticated HTTP transport for the
// MuseumPlus RIA web service.
//
// A Session is a scoped resource: Open returns it ready for use and Close
// must run on every exit path. Close is idempotent, so callers may both
// defer it and call it early when a run aborts.
package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for transport operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpapi_requests_total",
		Help: "Total RIA requests by operation and status",
	}, []string{"operation", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mpapi_request_duration_seconds",
		Help:    "RIA request duration in seconds by operation",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"operation"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpapi_errors_total",
		Help: "Total RIA transport errors by class",
	}, []string{"class"})

	requestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mpapi_requests_in_flight",
		Help: "Number of RIA requests currently awaiting a response",
	})
)

// applicationPath is appended to the base URL for every request.
const applicationPath = "/ria-ws/application"

// Config holds the session configuration.
type Config struct {
	// BaseURL of the MuseumPlus installation, without the ria-ws path
	// (e.g. "https://museumplus.example.org:8181/MpWeb-mpInstance").
	BaseURL string

	// Basic auth credentials.
	User     string
	Password string

	// ConnectionLimit caps simultaneous connections to the server.
	ConnectionLimit int

	// Timeout is the total time allowed for one request including reading
	// the body. Zero means no timeout.
	Timeout time.Duration

	// AcceptLanguage is sent with every request.
	AcceptLanguage string
}

// DefaultConfig returns a configuration with the usual limits.
func DefaultConfig(baseURL, user, password string) Config {
	return Config{
		BaseURL:         baseURL,
		User:            user,
		Password:        password,
		ConnectionLimit: 100,
		AcceptLanguage:  "de",
	}
}

// Session is an authenticated connection pool to one RIA application.
// It is safe for concurrent use.
type Session struct {
	httpClient *http.Client
	transport  *http.Transport
	appURL     string
	config     Config
	logger     zerolog.Logger

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// Open validates the configuration and returns a ready session. The caller
// owns the session and must call Close.
func Open(cfg Config) (*Session, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("user is required")
	}
	if cfg.ConnectionLimit <= 0 {
		return nil, fmt.Errorf("connection_limit must be > 0 (got %d)", cfg.ConnectionLimit)
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative (got %s)", cfg.Timeout)
	}

	logger := log.With().Str("component", "session").Logger()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = cfg.ConnectionLimit
	transport.MaxIdleConnsPerHost = cfg.ConnectionLimit

	logger.Debug().
		Str("base_url", cfg.BaseURL).
		Int("connection_limit", cfg.ConnectionLimit).
		Dur("timeout", cfg.Timeout).
		Msg("Opening session")

	return &Session{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		transport: transport,
		appURL:    strings.TrimRight(cfg.BaseURL, "/") + applicationPath,
		config:    cfg,
		logger:    logger,
	}, nil
}

// Get performs a GET request against a path below the application URL
// and returns the response body.
func (s *Session) Get(ctx context.Context, operation, path string) ([]byte, error) {
	return s.do(ctx, http.MethodGet, operation, path, nil)
}

// Post performs a POST request with an XML body and returns the response body.
func (s *Session) Post(ctx context.Context, operation, path string, body []byte) ([]byte, error) {
	return s.do(ctx, http.MethodPost, operation, path, body)
}

// URL returns the absolute URL for a path below the application URL.
func (s *Session) URL(path string) string {
	return s.appURL + "/" + strings.TrimLeft(path, "/")
}

// Close releases pooled connections. Requests issued afterwards fail with
// ErrClosed. Close may be called any number of times.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.transport.CloseIdleConnections()
		s.logger.Debug().Msg("Session closed")
	})
	return nil
}

// do executes one request. Any status outside 2xx becomes a TransportError.
func (s *Session) do(ctx context.Context, method, operation, path string, body []byte) ([]byte, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	url := s.URL(path)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(s.config.User, s.config.Password)
	req.Header.Set("Content-Type", "application/xml")
	req.Header.Set("Accept", "application/xml;charset=UTF-8")
	if s.config.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", s.config.AcceptLanguage)
	}

	startTime := time.Now()
	requestsInFlight.Inc()
	defer func() {
		requestsInFlight.Dec()
		requestDuration.WithLabelValues(operation).Observe(time.Since(startTime).Seconds())
	}()

	s.logger.Debug().
		Str("operation", operation).
		Str("method", method).
		Str("endpoint", path).
		Msg("Executing RIA request")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(operation, "network_error").Inc()
		s.logger.Error().Err(err).Str("endpoint", path).Msg("RIA request failed")
		return nil, &TransportError{
			Method:  method,
			URL:     url,
			Class:   ErrorClassNetwork,
			Message: "request failed",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(operation, "network_error").Inc()
		return nil, &TransportError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Class:      ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}

	requestsTotal.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		class := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()
		s.logger.Warn().
			Str("endpoint", path).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("RIA request error")
		return nil, &TransportError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    resp.Status,
		}
	}

	s.logger.Debug().
		Str("endpoint", path).
		Int("status", resp.StatusCode).
		Int("bytes", len(data)).
		Dur("duration", time.Since(startTime)).
		Msg("RIA request complete")

	return data, nil
}
