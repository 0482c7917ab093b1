package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// PlatformProvider talks to the platform's GoTrue-compatible auth API.
type PlatformProvider struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	now        func() time.Time
}

// NewPlatformProvider constructs a provider rooted at the platform URL.
func NewPlatformProvider(platformURL, anonKey string, timeout time.Duration) *PlatformProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PlatformProvider{
		baseURL: strings.TrimRight(platformURL, "/") + "/auth/v1",
		anonKey: anonKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

// SignInWithPassword exchanges credentials for a session.
func (p *PlatformProvider) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var out tokenResponse
	body := map[string]string{"email": email, "password": password}
	if err := p.do(ctx, http.MethodPost, "/token?grant_type=password", "", body, &out); err != nil {
		return nil, err
	}
	return p.session(out), nil
}

// SignUp registers an account; the platform emails a confirmation link.
func (p *PlatformProvider) SignUp(ctx context.Context, email, password, redirectTo string) error {
	body := map[string]string{"email": email, "password": password}
	return p.do(ctx, http.MethodPost, "/signup"+redirectQuery(redirectTo), "", body, nil)
}

// SignOut revokes the session's refresh tokens.
func (p *PlatformProvider) SignOut(ctx context.Context, accessToken string) error {
	return p.do(ctx, http.MethodPost, "/logout", accessToken, nil, nil)
}

// ResetPasswordForEmail sends a recovery link.
func (p *PlatformProvider) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	body := map[string]string{"email": email}
	return p.do(ctx, http.MethodPost, "/recover"+redirectQuery(redirectTo), "", body, nil)
}

// UpdatePassword sets a new password for the session's user.
func (p *PlatformProvider) UpdatePassword(ctx context.Context, accessToken, password string) error {
	body := map[string]string{"password": password}
	return p.do(ctx, http.MethodPut, "/user", accessToken, body, nil)
}

// Refresh trades a refresh token for a new session.
func (p *PlatformProvider) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	var out tokenResponse
	body := map[string]string{"refresh_token": refreshToken}
	if err := p.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", body, &out); err != nil {
		return nil, err
	}
	return p.session(out), nil
}

// Verify exchanges an email link token hash for a session.
func (p *PlatformProvider) Verify(ctx context.Context, tokenHash string, typ VerifyType) (*Session, error) {
	var out tokenResponse
	body := map[string]string{"token_hash": tokenHash, "type": string(typ)}
	if err := p.do(ctx, http.MethodPost, "/verify", "", body, &out); err != nil {
		return nil, err
	}
	return p.session(out), nil
}

func (p *PlatformProvider) session(out tokenResponse) *Session {
	now := p.now().UTC()
	expires := now.Add(time.Duration(out.ExpiresIn) * time.Second)
	if out.ExpiresAt > 0 {
		expires = time.Unix(out.ExpiresAt, 0).UTC()
	}
	return &Session{
		UserID:       out.User.ID,
		Email:        out.User.Email,
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		IssuedAt:     now,
		ExpiresAt:    expires,
	}
}

func (p *PlatformProvider) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", p.anonKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return decodeProviderError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeProviderError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	perr := &ProviderError{Status: resp.StatusCode}
	var body errorResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		perr.Message = strings.TrimSpace(string(raw))
		return perr
	}
	perr.Code = firstNonEmpty(body.ErrorCode, body.Error)
	perr.Message = firstNonEmpty(body.ErrorDescription, body.Msg, body.Message, body.Error)
	return perr
}

func redirectQuery(redirectTo string) string {
	if redirectTo == "" {
		return ""
	}
	return "?redirect_to=" + url.QueryEscape(redirectTo)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
