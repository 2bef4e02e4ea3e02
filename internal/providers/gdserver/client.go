// Package gdserver talks to the discussion service over HTTP. JSON endpoints
// return decoded payloads; speaking endpoints return NDJSON token streams.
package gdserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gdsim/internal/domain"
	"gdsim/internal/ports"
)

const (
	defaultBaseURL = "http://127.0.0.1:8000"
	maxErrorBody   = 64 << 10
)

// Config controls the service endpoint.
type Config struct {
	BaseURL string
	// RequestTimeout bounds JSON requests. Streams are bounded only by their
	// context, since a reply may take arbitrarily long to generate.
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

// Client implements ports.DiscussionService and ports.SessionProber.
type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
}

var (
	_ ports.DiscussionService = (*Client)(nil)
	_ ports.SessionProber     = (*Client)(nil)
)

func NewClient(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: log.With().Str("component", "gdserver").Logger(),
	}
}

func (c *Client) Start(ctx context.Context, topic string, duration int) (domain.StartResult, error) {
	var out domain.StartResult
	err := c.postJSON(ctx, "/start", url.Values{
		"topic":    {topic},
		"duration": {strconv.Itoa(duration)},
	}, &out)
	return out, err
}

func (c *Client) RaiseHand(ctx context.Context, sessionID string) (domain.RaiseHandResult, error) {
	var out domain.RaiseHandResult
	err := c.postJSON(ctx, "/raise-hand", url.Values{"session_id": {sessionID}}, &out)
	return out, err
}

func (c *Client) End(ctx context.Context, sessionID string) (domain.Evaluation, error) {
	var out domain.Evaluation
	err := c.postJSON(ctx, "/end", url.Values{"session_id": {sessionID}}, &out)
	return out, err
}

func (c *Client) Speak(ctx context.Context, sessionID string, message string) (ports.TokenStream, error) {
	return c.openStream(ctx, "/speak", url.Values{"session_id": {sessionID}, "message": {message}})
}

func (c *Client) AISpeak(ctx context.Context, sessionID string) (ports.TokenStream, error) {
	return c.openStream(ctx, "/ai-speak", url.Values{"session_id": {sessionID}})
}

// Probe checks that the service still knows sessionID. It uses the floor
// request endpoint because every live session answers it. Only not-found,
// gone, and transport failures are reported; any other answer means the
// session is alive.
func (c *Client) Probe(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	resp, requestID, err := c.post(ctx, "/raise-hand", url.Values{"session_id": {sessionID}})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil
	}
	remoteErr := classify(resp)
	c.logger.Debug().
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Str("kind", string(remoteErr.Kind)).
		Msg("probe answered with error status")
	if remoteErr.Kind == domain.KindNotFound || remoteErr.Kind == domain.KindGone {
		return remoteErr
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, params url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	resp, requestID, err := c.post(ctx, path, params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		remoteErr := classify(resp)
		c.logger.Warn().
			Str("request_id", requestID).
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("kind", string(remoteErr.Kind)).
			Msg(remoteErr.Detail)
		return remoteErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.RemoteError{
			Kind:   domain.KindServer,
			Status: resp.StatusCode,
			Detail: "invalid response body",
			Err:    errors.Wrapf(err, "decode %s response", path),
		}
	}
	c.logger.Debug().Str("request_id", requestID).Str("path", path).Msg("request completed")
	return nil
}

func (c *Client) openStream(ctx context.Context, path string, params url.Values) (ports.TokenStream, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	resp, requestID, err := c.post(streamCtx, path, params)
	if err != nil {
		cancel()
		return nil, err
	}

	if resp.StatusCode >= 300 {
		remoteErr := classify(resp)
		_ = resp.Body.Close()
		cancel()
		c.logger.Warn().
			Str("request_id", requestID).
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("kind", string(remoteErr.Kind)).
			Msg(remoteErr.Detail)
		return nil, remoteErr
	}

	c.logger.Debug().Str("request_id", requestID).Str("path", path).Msg("stream opened")
	return newNDJSONStream(resp.Body, cancel, c.logger.With().Str("request_id", requestID).Logger()), nil
}

func (c *Client) post(ctx context.Context, path string, params url.Values) (*http.Response, string, error) {
	requestID := uuid.NewString()
	endpoint := c.cfg.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, requestID, &domain.RemoteError{
			Kind: domain.KindTransport,
			Err:  errors.Wrapf(err, "build %s request", path),
		}
	}
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json, application/x-ndjson")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("request_id", requestID).Str("path", path).Msg("request failed")
		return nil, requestID, &domain.RemoteError{
			Kind: domain.KindTransport,
			Err:  errors.Wrapf(err, "post %s", path),
		}
	}
	return resp, requestID, nil
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// classify maps an error response onto the closed set of failure kinds.
func classify(resp *http.Response) *domain.RemoteError {
	return &domain.RemoteError{
		Kind:   kindForStatus(resp.StatusCode),
		Status: resp.StatusCode,
		Detail: readDetail(resp),
	}
}

func kindForStatus(status int) domain.ErrorKind {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.KindValidation
	case http.StatusForbidden:
		return domain.KindForbidden
	case http.StatusNotFound:
		return domain.KindNotFound
	case http.StatusConflict:
		return domain.KindConflict
	case http.StatusGone:
		return domain.KindGone
	default:
		return domain.KindServer
	}
}

func readDetail(resp *http.Response) string {
	fallback := http.StatusText(resp.StatusCode)
	if fallback == "" {
		fallback = "HTTP " + strconv.Itoa(resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return fallback
	}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		return fallback
	}
	var detail string
	if err := json.Unmarshal(body.Detail, &detail); err == nil {
		if detail = strings.TrimSpace(detail); detail != "" {
			return detail
		}
		return fallback
	}
	// Validation errors carry a structured detail list.
	return string(body.Detail)
}
