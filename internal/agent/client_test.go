package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"sessiongate-service/internal/domain/session"
	xerrors "sessiongate-service/internal/pkg/errors"
	"sessiongate-service/internal/pkg/response"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSessionStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/sessions/tok-1", r.URL.Path)

		json.NewEncoder(w).Encode(response.Response{
			Success: true,
			Message: "session status",
			Data:    session.Status{IsActive: false, EndedReason: session.EndReasonNewLogin},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	status, err := client.SessionStatus(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.False(t, status.IsActive)
	assert.Equal(t, session.EndReasonNewLogin, status.EndedReason)
}

func TestClientSessionStatusNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.SessionStatus(context.Background(), "tok-unknown")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestClientEndSession(t *testing.T) {
	var gotReason session.EndReason
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/sessions/tok-1/close", r.URL.Path)

		var req session.EndRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotReason = req.Reason
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	require.NoError(t, client.EndSession(context.Background(), "tok-1", session.EndReasonClosed))
	assert.Equal(t, session.EndReasonClosed, gotReason)
}

func TestClientEndSessionServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	assert.Error(t, client.EndSession(context.Background(), "tok-1", session.EndReasonClosed))
}
