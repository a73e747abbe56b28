package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name          string
		checker       HealthChecker
		wantStatus    int
		wantDirectory string
	}{
		{"unconfigured", nil, http.StatusOK, "unconfigured"},
		{"reachable", pingFunc(func(ctx context.Context) error { return nil }), http.StatusOK, "ok"},
		{"unreachable", pingFunc(func(ctx context.Context) error { return errors.New("dial tcp: refused") }), http.StatusServiceUnavailable, "unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewHealthHandler(tt.checker)(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			var body healthResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.wantDirectory, body.Directory)
		})
	}
}
