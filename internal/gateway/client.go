package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/guonaihong/gout"
	"go.uber.org/zap"
)

// Client talks to the external automation service that owns the actual
// WhatsApp sessions. It only normalizes payloads; retry and budget policy
// live with the callers.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient creates a gateway client.
func NewClient(baseURL, token string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
		logger:  logger,
	}
}

func (c *Client) headers() gout.H {
	h := gout.H{"Content-Type": "application/json"}
	if c.token != "" {
		h["Authorization"] = "Bearer " + c.token
	}
	return h
}

// CreateInstance asks the automation service to create a remote session
// under the given name. Name collisions are returned as NameCollisionError
// so the caller can advance to the next candidate.
func (c *Client) CreateInstance(ctx context.Context, name string) (*CreateResult, error) {
	var body []byte
	code := 0
	err := gout.POST(c.baseURL + "/instance/create").
		WithContext(ctx).
		SetTimeout(c.timeout).
		SetHeader(c.headers()).
		SetJSON(gout.H{"instanceName": name, "qrcode": true}).
		BindBody(&body).
		Code(&code).
		Do()
	if err != nil {
		return nil, &RequestError{Op: "create", Err: err}
	}

	msg := payloadMessage(body)
	if code == http.StatusConflict || messageLooksCollision(msg) {
		return nil, &NameCollisionError{Name: name}
	}
	if code >= 400 {
		return nil, &RequestError{Op: "create", Status: code, Message: msg}
	}

	res := parseCreateResult(body, name)
	c.logger.Info("remote session created",
		zap.String("name", res.Name),
		zap.String("session_id", res.SessionID),
		zap.Bool("qr_immediate", res.QRCode != ""))
	return res, nil
}

// SessionStatus reads the current remote state/QR for a session.
func (c *Client) SessionStatus(ctx context.Context, sessionID string) (*Status, error) {
	var body []byte
	code := 0
	err := gout.GET(c.baseURL + "/instance/" + url.PathEscape(sessionID) + "/status").
		WithContext(ctx).
		SetTimeout(c.timeout).
		SetHeader(c.headers()).
		BindBody(&body).
		Code(&code).
		Do()
	if err != nil {
		return nil, &RequestError{Op: "status", Err: err}
	}

	msg := payloadMessage(body)
	if code == http.StatusNotFound || messageLooksMissing(msg) {
		return nil, ErrSessionNotFound
	}
	if code >= 400 {
		return nil, &RequestError{Op: "status", Status: code, Message: msg}
	}
	return ParseStatus(body), nil
}

// DeleteSession tears down a remote session. A session the service no
// longer knows is reported as ErrSessionNotFound; callers treat that as
// success (already gone).
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	var body []byte
	code := 0
	err := gout.DELETE(c.baseURL + "/instance/" + url.PathEscape(sessionID)).
		WithContext(ctx).
		SetTimeout(c.timeout).
		SetHeader(c.headers()).
		BindBody(&body).
		Code(&code).
		Do()
	if err != nil {
		return &RequestError{Op: "delete", Err: err}
	}

	msg := payloadMessage(body)
	if code == http.StatusNotFound || messageLooksMissing(msg) {
		return ErrSessionNotFound
	}
	if code >= 400 {
		return &RequestError{Op: "delete", Status: code, Message: msg}
	}
	return nil
}
