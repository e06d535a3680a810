package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rule-console/internal/logger"
	"rule-console/internal/rule"
	"rule-console/internal/store"
)

func setupTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL: server.URL + "/api/",
		Token:   "secret",
		Timeout: time.Second,
	}, server.Client(), logger.NewNop())
	require.NoError(t, err)
	return client
}

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{"valid http", "http://localhost:8080", false},
		{"valid https with path", "https://forms.example.com/api/v1/", false},
		{"empty", "", true},
		{"unsupported scheme", "ftp://example.com", true},
		{"unparseable", "http://[::1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(Config{BaseURL: tt.baseURL}, nil, logger.NewNop())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestListRules(t *testing.T) {
	enabled := true
	client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/rules", r.URL.Path)
		assert.Equal(t, "lead", r.URL.Query().Get("q"))
		assert.Equal(t, "true", r.URL.Query().Get("enabled"))
		assert.Equal(t, "20", r.URL.Query().Get("offset"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"rules": [
			{"id": "r1", "name": "Lead", "enabled": true, "channel": {"type": "email", "target": "a@b.co"}},
			{"id": "r2", "name": "Lead 2", "enabled": true, "channel": {"type": "slack", "target": "#x"}}
		], "total": 22}`)
	})

	list, err := client.ListRules(context.Background(),
		store.Filter{Query: "lead", Enabled: &enabled},
		store.Page{Offset: 20, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 22, list.Total)
	require.Len(t, list.Rules, 2)
	assert.Equal(t, "r2", list.Rules[1].ID)
	assert.Equal(t, "slack", list.Rules[1].Channel.Type)
}

func TestListRulesEmpty(t *testing.T) {
	client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"total": 0}`)
	})

	list, err := client.ListRules(context.Background(), store.Filter{}, store.Page{})
	require.NoError(t, err)
	assert.NotNil(t, list.Rules)
	assert.Empty(t, list.Rules)
}

func TestCreateAndUpdateRule(t *testing.T) {
	client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var draft rule.Draft
		require.NoError(t, json.NewDecoder(r.Body).Decode(&draft))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		created := rule.Rule{ID: "r9", Name: draft.Name, Channel: draft.Channel}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/rules":
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/api/rules/r9":
			created.Name += " (edited)"
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(created)
	})

	draft := rule.Draft{Name: "Feedback", Channel: rule.Channel{Type: "slack", Target: "#fb"}}

	created, err := client.CreateRule(context.Background(), draft)
	require.NoError(t, err)
	assert.Equal(t, "r9", created.ID)
	assert.Equal(t, "Feedback", created.Name)

	updated, err := client.UpdateRule(context.Background(), "r9", draft)
	require.NoError(t, err)
	assert.Equal(t, "Feedback (edited)", updated.Name)
}

func TestDeleteRule(t *testing.T) {
	var gotPath string
	client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.DeleteRule(context.Background(), "team/a b"))
	assert.Equal(t, "/api/rules/team%2Fa%20b", gotPath)
}

func TestGetQueueStats(t *testing.T) {
	client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/queue/stats", r.URL.Path)
		_, _ = io.WriteString(w, `{"waiting": 4, "active": 2, "completed": 100, "failed": 3}`)
	})

	stats, err := client.GetQueueStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Waiting)
	assert.Equal(t, int64(2), stats.Active)
	assert.Equal(t, int64(100), stats.Completed)
	assert.Equal(t, int64(3), stats.Failed)
	assert.False(t, stats.CollectedAt.IsZero())
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantKind   store.Kind
		wantField  string
		wantFieldM string
		wantMsg    string
	}{
		{
			name:       "validation with field array",
			status:     http.StatusUnprocessableEntity,
			body:       `{"message": "invalid rule", "errors": [{"field": "channel", "message": "required"}]}`,
			wantKind:   store.KindValidation,
			wantField:  "channel",
			wantFieldM: "required",
			wantMsg:    "invalid rule",
		},
		{
			name:       "validation with nested field map",
			status:     http.StatusBadRequest,
			body:       `{"error": {"message": "bad payload", "fields": {"channel.target": ["must be an email"]}}}`,
			wantKind:   store.KindValidation,
			wantField:  "channel.target",
			wantFieldM: "must be an email",
			wantMsg:    "bad payload",
		},
		{
			name:     "unauthorized",
			status:   http.StatusUnauthorized,
			body:     `{"error": "token expired"}`,
			wantKind: store.KindAuthorization,
			wantMsg:  "token expired",
		},
		{
			name:     "forbidden plain text",
			status:   http.StatusForbidden,
			body:     `viewers cannot edit rules`,
			wantKind: store.KindAuthorization,
			wantMsg:  "viewers cannot edit rules",
		},
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			body:     ``,
			wantKind: store.KindUnknown,
			wantMsg:  "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := client.CreateRule(context.Background(), rule.Draft{Name: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, store.KindOf(err))

			switch e := err.(type) {
			case *store.ValidationError:
				assert.Equal(t, tt.wantMsg, e.Message)
				msg, ok := e.Field(tt.wantField)
				assert.True(t, ok)
				assert.Equal(t, tt.wantFieldM, msg)
			case *store.AuthorizationError:
				assert.Equal(t, tt.wantMsg, e.Message)
			case *store.StatusError:
				assert.Equal(t, tt.status, e.Status)
				assert.Equal(t, tt.wantMsg, e.Message)
			}
		})
	}
}

func TestTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client, err := NewClient(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond}, nil, logger.NewNop())
	require.NoError(t, err)

	_, err = client.GetQueueStats(context.Background())
	require.Error(t, err)

	var netErr *store.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.True(t, netErr.Timeout())
}

func TestConnectionRefusedIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := NewClient(Config{BaseURL: url}, nil, logger.NewNop())
	require.NoError(t, err)

	err = client.DeleteRule(context.Background(), "r1")
	assert.Equal(t, store.KindNetwork, store.KindOf(err))
}

func TestTruncatedBodyIsNetworkError(t *testing.T) {
	client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "200")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id": "r9", "name": "Feed`)
	})

	created, err := client.CreateRule(context.Background(), rule.Draft{Name: "Feedback"})
	require.Error(t, err)
	assert.Nil(t, created)

	var netErr *store.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.ErrorContains(t, err, "truncated response body")
	assert.True(t, store.Retryable(err))
}

func TestUnusableSuccessBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"empty body", "", "empty response body"},
		{"malformed body", "<html>ok</html>", "malformed response body"},
		{"wrong shape", `["r9"]`, "malformed response body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			})

			updated, err := client.UpdateRule(context.Background(), "r9", rule.Draft{Name: "Feedback"})
			require.Error(t, err)
			assert.Nil(t, updated)

			var statusErr *store.StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, http.StatusOK, statusErr.Status)
			assert.Contains(t, statusErr.Message, tt.wantMsg)
			assert.Equal(t, store.KindUnknown, store.KindOf(err))
			assert.False(t, store.Retryable(err))
		})
	}
}
