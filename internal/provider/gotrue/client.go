package gotrue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	redislib "github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/stampcard/backend/domain"
	"github.com/stampcard/backend/usecase/auth"
)

// Config holds the hosted auth API settings.
type Config struct {
	BaseURL        string
	AnonKey        string
	EventsChannel  string
	RequestTimeout time.Duration
}

// Client talks to a GoTrue-style hosted identity provider over HTTP and
// receives session-change events on a Redis pub/sub channel. It keeps the
// current credential bundle so GetSession can answer without a network round
// trip while the tokens are still valid.
type Client struct {
	http   *fasthttp.Client
	events *redislib.Client
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	session *domain.Session
}

func New(events *redislib.Client, cfg Config, logger *zap.Logger) *Client {
	if cfg.EventsChannel == "" {
		cfg.EventsChannel = "auth:events"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http: &fasthttp.Client{
			ReadTimeout:  cfg.RequestTimeout,
			WriteTimeout: cfg.RequestTimeout,
		},
		events: events,
		cfg:    cfg,
		logger: logger,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type errorResponse struct {
	Message string `json:"msg"`
	Error   string `json:"error_description"`
}

// GetSession returns the current session, refreshing it against the provider
// when the access token ran out. (nil, nil) means no session.
func (c *Client) GetSession(ctx context.Context) (*domain.Session, error) {
	c.mu.Lock()
	current := c.session
	c.mu.Unlock()

	if current == nil {
		return nil, nil
	}
	if !current.IsExpired(time.Now()) {
		return current, nil
	}
	if current.RefreshToken == "" {
		c.setSession(nil)
		return nil, nil
	}

	refreshed, err := c.token(ctx, "refresh_token", map[string]string{
		"refresh_token": current.RefreshToken,
	})
	if err != nil {
		return nil, err
	}
	c.setSession(refreshed)
	return refreshed, nil
}

// Subscribe listens on the provider's session-change channel for the whole
// manager lifetime. The returned func cancels the subscription.
func (c *Client) Subscribe(cb func(*domain.Session)) (func(), error) {
	if c.events == nil {
		return nil, domain.NewError(domain.ErrCodeBackend, "event stream unavailable")
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := c.events.Subscribe(ctx, c.cfg.EventsChannel)

	go func() {
		for msg := range sub.Channel() {
			session, err := c.decodeEvent([]byte(msg.Payload))
			if err != nil {
				c.logger.Warn("unparseable auth event dropped", zap.Error(err))
				continue
			}
			c.setSession(session)
			cb(session)
		}
	}()

	return func() {
		cancel()
		if err := sub.Close(); err != nil {
			c.logger.Warn("event subscription close failed", zap.Error(err))
		}
	}, nil
}

type authEvent struct {
	Event   string `json:"event"`
	Session *struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresAt    int64  `json:"expires_at"`
	} `json:"session"`
}

func (c *Client) decodeEvent(payload []byte) (*domain.Session, error) {
	var evt authEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, err
	}
	if evt.Session == nil || evt.Session.AccessToken == "" {
		return nil, nil
	}
	principal, err := principalFromToken(evt.Session.AccessToken)
	if err != nil {
		return nil, err
	}
	return &domain.Session{
		AccessToken:  evt.Session.AccessToken,
		RefreshToken: evt.Session.RefreshToken,
		ExpiresAt:    time.Unix(evt.Session.ExpiresAt, 0),
		Principal:    principal,
	}, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	session, err := c.token(ctx, "password", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	c.setSession(session)
	c.publish(ctx, "SIGNED_IN", session)
	return session, nil
}

func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]string) (*domain.Session, error) {
	body := map[string]interface{}{
		"email":    email,
		"password": password,
	}
	if len(metadata) > 0 {
		body["data"] = metadata
	}
	raw, err := c.post(ctx, "/auth/v1/signup", body, "")
	if err != nil {
		return nil, err
	}

	var resp tokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, domain.WrapError(domain.ErrCodeBackend, "sign-up response malformed", err)
	}
	if resp.AccessToken == "" {
		// Confirmation-required flow: no session until the email is verified.
		return nil, nil
	}
	session, err := c.sessionFromToken(resp)
	if err != nil {
		return nil, err
	}
	c.setSession(session)
	c.publish(ctx, "SIGNED_IN", session)
	return session, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	current := c.session
	c.mu.Unlock()

	c.setSession(nil)
	c.publish(ctx, "SIGNED_OUT", nil)

	if current == nil {
		return nil
	}
	if _, err := c.post(ctx, "/auth/v1/logout", nil, current.AccessToken); err != nil {
		return err
	}
	return nil
}

func (c *Client) ResetPassword(ctx context.Context, email string) error {
	_, err := c.post(ctx, "/auth/v1/recover", map[string]string{"email": email}, "")
	return err
}

func (c *Client) Resend(ctx context.Context, kind, email string) error {
	_, err := c.post(ctx, "/auth/v1/resend", map[string]string{
		"type":  kind,
		"email": email,
	}, "")
	return err
}

func (c *Client) token(ctx context.Context, grantType string, body map[string]string) (*domain.Session, error) {
	raw, err := c.post(ctx, "/auth/v1/token?grant_type="+grantType, body, "")
	if err != nil {
		return nil, err
	}
	var resp tokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, domain.WrapError(domain.ErrCodeBackend, "token response malformed", err)
	}
	if resp.AccessToken == "" {
		return nil, domain.ErrUnauthorized
	}
	return c.sessionFromToken(resp)
}

func (c *Client) sessionFromToken(resp tokenResponse) (*domain.Session, error) {
	principal, err := principalFromToken(resp.AccessToken)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeBackend, "access token malformed", err)
	}
	return &domain.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
		Principal:    principal,
	}, nil
}

// principalFromToken extracts the provider's claims without verifying the
// signature; validation is the provider's own job.
func principalFromToken(accessToken string) (*domain.Principal, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, err
	}

	principal := &domain.Principal{}
	if sub, ok := claims["sub"].(string); ok {
		principal.ID = sub
	}
	if email, ok := claims["email"].(string); ok {
		principal.Email = email
	}
	if verified, ok := claims["email_verified"].(bool); ok {
		principal.EmailVerified = verified
	}
	if meta, ok := claims["user_metadata"].(map[string]interface{}); ok {
		principal.Metadata = make(map[string]string, len(meta))
		for k, v := range meta {
			if s, ok := v.(string); ok {
				principal.Metadata[k] = s
			}
		}
	}
	if principal.ID == "" {
		return nil, fmt.Errorf("token carries no subject")
	}
	return principal, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, bearer string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.cfg.BaseURL + path)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if c.cfg.AnonKey != "" {
		req.Header.Set("apikey", c.cfg.AnonKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		req.SetBody(payload)
	}

	deadline := time.Now().Add(c.cfg.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, domain.WrapError(domain.ErrCodeBackend, "provider request failed", err)
	}

	status := resp.StatusCode()
	out := append([]byte(nil), resp.Body()...)
	if status >= 400 {
		var apiErr errorResponse
		_ = json.Unmarshal(out, &apiErr)
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error
		}
		if msg == "" {
			msg = fmt.Sprintf("provider returned status %d", status)
		}
		switch status {
		case fasthttp.StatusUnauthorized, fasthttp.StatusForbidden:
			return nil, domain.NewError(domain.ErrCodeUnauthorized, msg)
		default:
			return nil, domain.NewError(domain.ErrCodeBackend, msg)
		}
	}
	return out, nil
}

// publish mirrors the provider's push stream for co-located consumers; a
// failed publish only costs event-driven convergence, never correctness.
func (c *Client) publish(ctx context.Context, event string, session *domain.Session) {
	if c.events == nil {
		return
	}
	evt := authEvent{Event: event}
	if session != nil {
		evt.Session = &struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
			ExpiresAt    int64  `json:"expires_at"`
		}{
			AccessToken:  session.AccessToken,
			RefreshToken: session.RefreshToken,
			ExpiresAt:    session.ExpiresAt.Unix(),
		}
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := c.events.Publish(ctx, c.cfg.EventsChannel, payload).Err(); err != nil {
		c.logger.Warn("auth event publish failed", zap.Error(err))
	}
}

func (c *Client) setSession(session *domain.Session) {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
}

var _ auth.Provider = (*Client)(nil)
