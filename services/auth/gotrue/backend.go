// Package gotrue talks to a Supabase GoTrue authentication server.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/identity"
)

const (
	serviceName    = "identity service"
	defaultTimeout = 30 * time.Second
	maxBodySize    = 1 << 20
)

var nowFunc = time.Now // mockable

type (
	Backend struct {
		url        string
		anonKey    string
		serviceKey string
		http       *http.Client
	}

	credentials struct {
		Email        string `json:"email,omitempty"`
		Password     string `json:"password"`
		EmailConfirm bool   `json:"email_confirm,omitempty"`
	}

	userResponse struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}

	sessionResponse struct {
		AccessToken  string        `json:"access_token"`
		RefreshToken string        `json:"refresh_token"`
		ExpiresIn    int64         `json:"expires_in"`
		User         *userResponse `json:"user"`

		// sign-up without a session answers with the bare user
		ID    string `json:"id"`
		Email string `json:"email"`
	}

	errorResponse struct {
		Msg              string `json:"msg"`
		ErrorDescription string `json:"error_description"`
		Message          string `json:"message"`
		Error            string `json:"error"`
	}
)

var _ identity.Backend = (*Backend)(nil)

func NewBackend(conf core.IdentityConfig, httpClient ...*http.Client) *Backend {
	b := &Backend{
		url:        strings.TrimRight(conf.URL, "/"),
		anonKey:    conf.AnonKey,
		serviceKey: conf.ServiceKey,
		http:       &http.Client{Timeout: defaultTimeout},
	}
	if len(httpClient) > 0 && httpClient[0] != nil {
		b.http = httpClient[0]
	}
	return b
}

func (b *Backend) Check() error {
	if b.url == "" {
		return core.NewConfigurationError("IDENTITY_URL", serviceName)
	}
	if b.anonKey == "" {
		return core.NewConfigurationError("IDENTITY_ANON_KEY", serviceName)
	}
	return nil
}

func (b *Backend) SignIn(ctx context.Context, email, password string) (identity.Session, error) {
	var res sessionResponse
	err := b.do(ctx, http.MethodPost, "/token?grant_type=password", b.anonKey, "", credentials{Email: email, Password: password}, &res)
	if err != nil {
		return identity.Session{}, err
	}
	return res.session(), nil
}

func (b *Backend) SignUp(ctx context.Context, email, password string) (identity.Session, error) {
	var res sessionResponse
	err := b.do(ctx, http.MethodPost, "/signup", b.anonKey, "", credentials{Email: email, Password: password}, &res)
	if err != nil {
		return identity.Session{}, err
	}
	return res.session(), nil
}

func (b *Backend) CreateAccount(ctx context.Context, email, password string) (string, error) {
	if b.serviceKey == "" {
		return "", identity.ErrPrivilegedUnsupported
	}
	var res userResponse
	body := credentials{Email: email, Password: password, EmailConfirm: true}
	if err := b.do(ctx, http.MethodPost, "/admin/users", b.serviceKey, b.serviceKey, body, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}

func (b *Backend) UpdatePassword(ctx context.Context, session identity.Session, password string) error {
	if session.AccessToken == "" {
		return identity.ErrNoSession
	}
	return b.do(ctx, http.MethodPut, "/user", b.anonKey, session.AccessToken, credentials{Password: password}, nil)
}

func (b *Backend) SetPassword(ctx context.Context, accountID, password string) error {
	if b.serviceKey == "" {
		return identity.ErrPrivilegedUnsupported
	}
	return b.do(ctx, http.MethodPut, "/admin/users/"+accountID, b.serviceKey, b.serviceKey, credentials{Password: password}, nil)
}

func (b *Backend) DeleteAccount(ctx context.Context, accountID string) error {
	if b.serviceKey == "" {
		return identity.ErrPrivilegedUnsupported
	}
	return b.do(ctx, http.MethodDelete, "/admin/users/"+accountID, b.serviceKey, b.serviceKey, nil, nil)
}

func (b *Backend) do(ctx context.Context, method, path, apiKey, bearer string, in, out interface{}) error {
	if err := b.Check(); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encoding request")
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.url+path, body)
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	req.Header.Set("apikey", apiKey)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := b.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return identity.NewAuthError("", core.NewConnectivityError(serviceName, err), identity.KindNetwork)
	}
	defer func() { _ = res.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return identity.NewAuthError("", core.NewConnectivityError(serviceName, err), identity.KindNetwork)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return responseError(res.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(data, out), "decoding response")
}

// responseError classifies a failed call by its message, then by its status.
func responseError(status int, body []byte) error {
	var er errorResponse
	_ = json.Unmarshal(body, &er)
	msg := firstNonEmpty(er.Msg, er.ErrorDescription, er.Message, er.Error)
	upstream := core.NewUpstreamError(serviceName, status, msg)
	if msg == "" {
		msg = upstream.Error()
	}

	kind := identity.ClassifyMessage(msg)
	if kind == identity.KindUnknown {
		switch status {
		case http.StatusTooManyRequests:
			kind = identity.KindRateLimited
		case http.StatusUnauthorized, http.StatusForbidden:
			kind = identity.KindPolicyDenied
		case http.StatusNotFound:
			kind = identity.KindNotFound
		}
	}
	return identity.NewAuthError(msg, upstream, kind)
}

func (r sessionResponse) session() identity.Session {
	s := identity.Session{
		AccountID:    r.ID,
		Email:        r.Email,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
	}
	if r.User != nil {
		s.AccountID, s.Email = r.User.ID, r.User.Email
	}
	if r.ExpiresIn > 0 {
		s.ExpiresAt = nowFunc().Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
