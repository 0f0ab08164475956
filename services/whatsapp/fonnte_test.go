package whatsapp

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
	"github.com/pnl-akademik/disiplin/tests"
)

const testURL = "https://fonnte.test/send"

func setupClient(t *testing.T, token string) *Client {
	t.Helper()
	httpClient := &http.Client{}
	httpmock.ActivateNonDefault(httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return NewClient(core.WhatsAppConfig{URL: testURL, Token: token, CountryCode: "62"}, httpClient)
}

func TestClient_Send(t *testing.T) {
	c := setupClient(t, "secret-token")
	httpmock.RegisterResponder(http.MethodPost, testURL, func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Authorization") != "secret-token" {
			return httpmock.NewStringResponse(http.StatusUnauthorized, "invalid token"), nil
		}
		var body sendRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
		}
		if body.Target != "6281234567890" || body.CountryCode != "62" || body.Message != "Halo" {
			return httpmock.NewStringResponse(http.StatusOK, `{"status": false, "reason": "unexpected payload"}`), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, `{"status": true, "detail": "success! message in queue"}`), nil
	})

	require.NoError(t, c.Send(context.Background(), "+62 812-3456-7890", "Halo"))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestClient_Send_Errors(t *testing.T) {
	tests := []struct {
		name      string
		token     string
		target    string
		responder httpmock.Responder
		check     func(t *testing.T, err error)
		wantCalls int
	}{
		{
			name:  "not configured",
			token: "", target: "0812",
			check:     func(t *testing.T, err error) { assert.True(t, core.IsConfiguration(err)) },
			wantCalls: 0,
		},
		{
			name:  "empty target",
			token: "tok", target: " () ",
			check:     func(t *testing.T, err error) { assert.Error(t, err) },
			wantCalls: 0,
		},
		{
			name:  "rejected",
			token: "tok", target: "0812",
			responder: httpmock.NewStringResponder(http.StatusOK, `{"status": false, "reason": "invalid target"}`),
			check: func(t *testing.T, err error) {
				var uErr *core.UpstreamError
				require.ErrorAs(t, err, &uErr)
				assert.Equal(t, "invalid target", uErr.Body)
			},
			wantCalls: 1,
		},
		{
			name:  "error status",
			token: "tok", target: "0812",
			responder: httpmock.NewStringResponder(http.StatusInternalServerError, "boom"),
			check:     func(t *testing.T, err error) { assert.True(t, core.IsUpstream(err)) },
			wantCalls: 1,
		},
		{
			name:  "unreachable",
			token: "tok", target: "0812",
			responder: httpmock.NewErrorResponder(errors.New("no such host")),
			check:     func(t *testing.T, err error) { assert.True(t, core.IsConnectivity(err)) },
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := setupClient(t, tt.token)
			if tt.responder != nil {
				httpmock.RegisterResponder(http.MethodPost, testURL, tt.responder)
			}
			tt.check(t, c.Send(context.Background(), tt.target, "Halo"))
			assert.Equal(t, tt.wantCalls, httpmock.GetTotalCallCount())
		})
	}
}

func TestConsoleSender(t *testing.T) {
	logger := new(testutil.Logger)
	s := NewConsoleSender(logger)
	require.NoError(t, s.Send(context.Background(), "0812-345", "Halo"))
	require.Len(t, logger.Messages, 1)
	assert.Contains(t, logger.Messages[0], "whatsapp to 0812345")
}
