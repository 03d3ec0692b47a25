// Package supabase is a thin GoTrue (Supabase Auth) REST client.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

var errTransport = errors.New("supabase: transport error")

// APIError is a non-2xx GoTrue response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase: %d: %s", e.Status, e.Message)
}

// Has reports whether the error carries one of the given GoTrue error codes,
// or a message containing one of them.
func (e *APIError) Has(codes ...string) bool {
	msg := strings.ToLower(e.Message)
	for _, c := range codes {
		if e.Code == c || strings.Contains(msg, strings.ToLower(c)) {
			return true
		}
	}
	return false
}

type Config struct {
	URL        string
	AnonKey    string
	RPS        int
	Timeout    time.Duration
	Retry      RetryConfig
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
	limiter *rate.Limiter
	retry   RetryConfig
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 20
	}
	retry := cfg.Retry
	if retry.BackoffMultiplier == 0 {
		retry = DefaultRetryConfig()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/") + "/auth/v1",
		anonKey: cfg.AnonKey,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		retry:   retry,
	}
}

// User is the GoTrue user object.
type User struct {
	ID               string                 `json:"id"`
	Email            string                 `json:"email"`
	Phone            string                 `json:"phone"`
	EmailConfirmedAt *time.Time             `json:"email_confirmed_at"`
	PhoneConfirmedAt *time.Time             `json:"phone_confirmed_at"`
	UserMetadata     map[string]interface{} `json:"user_metadata"`
}

// Session is the token grant returned by sign-in and verify.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         User   `json:"user"`
}

type signUpBody struct {
	Email    string                 `json:"email"`
	Password string                 `json:"password"`
	Phone    string                 `json:"phone,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// SignUp creates a user. With email confirmation enabled GoTrue returns the
// bare user; otherwise a session wrapping it.
func (c *Client) SignUp(ctx context.Context, email, password, phone string, metadata map[string]interface{}) (*User, *Session, error) {
	raw, err := c.do(ctx, http.MethodPost, "/signup", "", signUpBody{email, password, phone, metadata})
	if err != nil {
		return nil, nil, err
	}
	if gjson.GetBytes(raw, "access_token").Exists() {
		var s Session
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, nil, fmt.Errorf("supabase: decode session: %w", err)
		}
		return &s.User, &s, nil
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, nil, fmt.Errorf("supabase: decode user: %w", err)
	}
	return &u, nil, nil
}

// SignInWithPassword exchanges credentials for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	raw, err := c.do(ctx, http.MethodPost, "/token?grant_type=password", "", body)
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("supabase: decode session: %w", err)
	}
	return &s, nil
}

// SendPhoneOTP asks GoTrue to text a one-time code.
func (c *Client) SendPhoneOTP(ctx context.Context, phone string) error {
	_, err := c.do(ctx, http.MethodPost, "/otp", "", map[string]interface{}{
		"phone":       phone,
		"create_user": false,
	})
	return err
}

// VerifyPhoneOTP checks a texted code. GoTrue answers 4xx for a wrong or
// expired code.
func (c *Client) VerifyPhoneOTP(ctx context.Context, phone, code string) (*Session, error) {
	raw, err := c.do(ctx, http.MethodPost, "/verify", "", map[string]string{
		"type":  "sms",
		"phone": phone,
		"token": code,
	})
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("supabase: decode session: %w", err)
	}
	return &s, nil
}

// GetUser resolves an access token to its user.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	raw, err := c.do(ctx, http.MethodGet, "/user", accessToken, nil)
	if err != nil {
		return nil, err
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("supabase: decode user: %w", err)
	}
	return &u, nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body interface{}) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, err
		}
	}

	var out []byte
	err := withRetry(ctx, c.retry, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("apikey", c.anonKey)
		req.Header.Set("Content-Type", "application/json")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", errTransport, err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("%w: %v", errTransport, err)
		}
		if resp.StatusCode >= 300 {
			return parseError(resp.StatusCode, raw)
		}
		out = raw
		return nil
	})
	return out, err
}

// parseError extracts code and message from the several error shapes GoTrue
// has used across versions.
func parseError(status int, raw []byte) *APIError {
	e := &APIError{Status: status}
	if !gjson.ValidBytes(raw) {
		e.Message = strings.TrimSpace(string(raw))
		return e
	}
	res := gjson.ParseBytes(raw)
	e.Code = firstString(res, "error_code", "code", "error")
	e.Message = firstString(res, "msg", "message", "error_description", "error")
	if e.Code == e.Message {
		e.Code = ""
	}
	return e
}

func firstString(res gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := res.Get(p); v.Exists() && v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
