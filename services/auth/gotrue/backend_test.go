package gotrue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/identity"
)

const testURL = "https://auth.test/auth/v1"

func setupBackend(t *testing.T, serviceKey string) *Backend {
	t.Helper()
	httpClient := &http.Client{}
	httpmock.ActivateNonDefault(httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	conf := core.IdentityConfig{URL: testURL + "/", AnonKey: "anon", ServiceKey: serviceKey}
	return NewBackend(conf, httpClient)
}

func TestBackend_SignIn(t *testing.T) {
	b := setupBackend(t, "")
	httpmock.RegisterResponder(http.MethodPost, testURL+"/token?grant_type=password", func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("apikey") != "anon" {
			return httpmock.NewStringResponse(http.StatusUnauthorized, `{"message":"Invalid API key"}`), nil
		}
		var body credentials
		_ = json.NewDecoder(req.Body).Decode(&body)
		if body.Password != "Pwd.1234" {
			return httpmock.NewStringResponse(http.StatusBadRequest, `{"error":"invalid_grant","error_description":"Invalid login credentials"}`), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, `{
			"access_token": "at", "refresh_token": "rt", "expires_in": 3600,
			"user": {"id": "acc-1", "email": "budi@student.pnl.ac.id"}
		}`), nil
	})

	sess, err := b.SignIn(context.Background(), "budi@student.pnl.ac.id", "Pwd.1234")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", sess.AccountID)
	assert.Equal(t, "at", sess.AccessToken)
	assert.False(t, sess.ExpiresAt.IsZero())

	_, err = b.SignIn(context.Background(), "budi@student.pnl.ac.id", "wrong")
	assert.Equal(t, identity.KindInvalidCredentials, identity.KindOf(err))
}

func TestBackend_SignUp_WithoutSession(t *testing.T) {
	b := setupBackend(t, "")
	httpmock.RegisterResponder(http.MethodPost, testURL+"/signup",
		httpmock.NewStringResponder(http.StatusOK, `{"id": "acc-2", "email": "ani@student.pnl.ac.id"}`))

	sess, err := b.SignUp(context.Background(), "ani@student.pnl.ac.id", "Pwd.1234")
	require.NoError(t, err)
	assert.Equal(t, "acc-2", sess.AccountID)
	assert.Empty(t, sess.AccessToken)
}

func TestBackend_CreateAccount(t *testing.T) {
	t.Run("no service key", func(t *testing.T) {
		b := setupBackend(t, "")
		_, err := b.CreateAccount(context.Background(), "a@b.c", "Pwd.1234")
		assert.ErrorIs(t, err, identity.ErrPrivilegedUnsupported)
		assert.Equal(t, 0, httpmock.GetTotalCallCount())
	})

	t.Run("privileged", func(t *testing.T) {
		b := setupBackend(t, "service")
		httpmock.RegisterResponder(http.MethodPost, testURL+"/admin/users", func(req *http.Request) (*http.Response, error) {
			var body credentials
			_ = json.NewDecoder(req.Body).Decode(&body)
			if req.Header.Get("Authorization") != "Bearer service" || !body.EmailConfirm {
				return httpmock.NewStringResponse(http.StatusForbidden, `{"msg":"User not allowed"}`), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, `{"id": "acc-3", "email": "a@b.c"}`), nil
		})
		id, err := b.CreateAccount(context.Background(), "a@b.c", "Pwd.1234")
		require.NoError(t, err)
		assert.Equal(t, "acc-3", id)
	})
}

func TestResponseError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind identity.ErrorKind
		wantMsg  string
	}{
		{"already registered", http.StatusUnprocessableEntity, `{"msg":"User already registered"}`, identity.KindAlreadyRegistered, "User already registered"},
		{"rate limit message", http.StatusBadRequest, `{"message":"email rate limit exceeded"}`, identity.KindRateLimited, "email rate limit exceeded"},
		{"rate limit status", http.StatusTooManyRequests, ``, identity.KindRateLimited, ""},
		{"policy status", http.StatusForbidden, `{"error":"bad_jwt"}`, identity.KindPolicyDenied, "bad_jwt"},
		{"not found", http.StatusNotFound, `{}`, identity.KindNotFound, ""},
		{"unknown", http.StatusInternalServerError, `oops`, identity.KindUnknown, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := responseError(tt.status, []byte(tt.body))
			assert.Equal(t, tt.wantKind, identity.KindOf(err))
			assert.True(t, core.IsUpstream(err))
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, err.Error())
			}
		})
	}
}

func TestBackend_NetworkError(t *testing.T) {
	b := setupBackend(t, "service")
	httpmock.RegisterResponder(http.MethodDelete, testURL+"/admin/users/acc-1",
		httpmock.NewErrorResponder(errors.New("connection refused")))

	err := b.DeleteAccount(context.Background(), "acc-1")
	assert.Equal(t, identity.KindNetwork, identity.KindOf(err))
	assert.True(t, core.IsConnectivity(err))
}

func TestBackend_UpdatePassword(t *testing.T) {
	b := setupBackend(t, "")
	httpmock.RegisterResponder(http.MethodPut, testURL+"/user", func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Authorization") != "Bearer at" {
			return httpmock.NewStringResponse(http.StatusUnauthorized, `{}`), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, `{"id":"acc-1"}`), nil
	})

	assert.ErrorIs(t, b.UpdatePassword(context.Background(), identity.Session{}, "x"), identity.ErrNoSession)
	assert.NoError(t, b.UpdatePassword(context.Background(), identity.Session{AccountID: "acc-1", AccessToken: "at"}, "Pwd.5678"))
}
