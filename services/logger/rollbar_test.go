package logsvc

import (
	"bytes"
	"log"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/identity"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRollbarLogger(log.New(&buf, "", 0), &core.Config{Env: "TEST", TestMode: true})

	p := identity.Principal{ProfileID: "p1", IDNumber: "2020573010001", Email: "admin@pnl.ac.id"}
	boom := errors.New("boom")
	args := []interface{}{boom, p, map[string]interface{}{"batch": "b1"}}

	prepared := logger.prepare("saving results", args)
	assert.Equal(t, []interface{}{"saving results", boom, map[string]interface{}{"batch": "b1"}}, prepared)

	logger.Error("saving results", args...)
	assert.Contains(t, buf.String(), "[ERROR] saving results")
	assert.Contains(t, buf.String(), "boom")
	assert.NotContains(t, buf.String(), "2020573010001")
}

func TestRollbarLogger_failureFields(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want map[string]interface{}
	}{
		{name: "plain", err: errors.New("boom")},
		{
			name: "upstream",
			err:  errors.Wrap(core.NewUpstreamError("clustering", http.StatusBadGateway, "down"), "processing workbook"),
			want: map[string]interface{}{"service": "clustering", "status": http.StatusBadGateway},
		},
		{
			name: "connectivity",
			err:  core.NewConnectivityError("whatsapp", errors.New("dial tcp: timeout")),
			want: map[string]interface{}{"service": "whatsapp"},
		},
		{
			name: "account backend",
			err:  errors.Wrap(identity.NewAuthError("too many requests", nil, identity.KindRateLimited), "creating account"),
			want: map[string]interface{}{"auth_kind": "rate_limited"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, failureFields(tt.err))
		})
	}
}
