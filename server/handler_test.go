package server

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/cyp0633/caldelete/server/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func basicAuth(user, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}

func TestParsePath(t *testing.T) {
	c := &DefaultURLConverter{Prefix: "/caldav/"}

	testCases := []struct {
		name      string
		path      string
		wantErr   bool
		wantURI   string
		wantOwner string
	}{
		{"service root", "/caldav/", false, "/", ""},
		{"prefix without slash", "/caldav", false, "/", ""},
		{"principal", "/caldav/alice", false, "/alice", "alice"},
		{"calendar home", "/caldav/alice/cal/", false, "/alice/cal", "alice"},
		{"calendar object", "/caldav/alice/cal/work/event1.ics", false, "/alice/cal/work/event1.ics", "alice"},
		{"address object", "/caldav/bob/card/contacts/c1.vcf", false, "/bob/card/contacts/c1.vcf", "bob"},
		{"without prefix", "/alice/cal/work", false, "/alice/cal/work", "alice"},
		{"duplicate slashes", "/caldav/alice//cal", false, "/alice/cal", "alice"},
		{"parent reference", "/caldav/alice/../bob/cal", true, "", ""},
		{"prefix lookalike", "/caldavx/alice", false, "/caldavx/alice", "caldavx"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resource, err := c.ParsePath(tc.path)
			if (err != nil) != tc.wantErr {
				t.Errorf("ParsePath(%q) error = %v, wantErr %v", tc.path, err, tc.wantErr)
				return
			}
			if err != nil {
				return
			}
			if resource.URI != tc.wantURI {
				t.Errorf("URI = %q, want %q", resource.URI, tc.wantURI)
			}
			if resource.Owner != tc.wantOwner {
				t.Errorf("Owner = %q, want %q", resource.Owner, tc.wantOwner)
			}
		})
	}
}

func TestEncodePath(t *testing.T) {
	testCases := []struct {
		name    string
		prefix  string
		uri     string
		want    string
		wantErr bool
	}{
		{"calendar object", "/caldav/", "/alice/cal/work/event1.ics", "/caldav/alice/cal/work/event1.ics", false},
		{"prefix without slash", "/dav", "/alice/card", "/dav/alice/card", false},
		{"root", "/caldav/", "/", "/caldav/", false},
		{"relative uri", "/caldav/", "alice", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := &DefaultURLConverter{Prefix: tc.prefix}
			got, err := c.EncodePath(Resource{URI: tc.uri})
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestServeHTTP_Auth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tests := []struct {
		name       string
		header     string
		setupMocks func(auth *storage.MockAuthenticator)
		wantStatus int
	}{
		{
			name:       "missing header",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "not basic",
			header:     "Bearer abc",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad base64",
			header:     "Basic !!!",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "no colon",
			header:     "Basic " + base64.StdEncoding.EncodeToString([]byte("alice")),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty username",
			header:     basicAuth("", "secret"),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "wrong password",
			header: basicAuth("alice", "nope"),
			setupMocks: func(auth *storage.MockAuthenticator) {
				auth.On("AuthUser", "alice", "nope").Return("", storage.ErrPermissionDenied).Once()
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "backend failure",
			header: basicAuth("alice", "secret"),
			setupMocks: func(auth *storage.MockAuthenticator) {
				auth.On("AuthUser", "alice", "secret").Return("", errors.New("directory down")).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:   "other user's tree",
			header: basicAuth("bob", "hunter2"),
			setupMocks: func(auth *storage.MockAuthenticator) {
				auth.On("AuthUser", "bob", "hunter2").Return("bob", nil).Once()
			},
			wantStatus: http.StatusForbidden,
		},
		{
			name:   "own tree",
			header: basicAuth("alice", "secret"),
			setupMocks: func(auth *storage.MockAuthenticator) {
				auth.On("AuthUser", "alice", "secret").Return("alice", nil).Once()
			},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &storage.MockAuthenticator{}
			if tt.setupMocks != nil {
				tt.setupMocks(auth)
			}
			h := NewCaldavHandler(&storage.MockStore{}, auth, nil,
				WithRealm("Test Realm"),
				WithLogger(logger))

			req := httptest.NewRequest(http.MethodOptions, "/caldav/alice/cal", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, `Basic realm="Test Realm"`, rr.Header().Get("WWW-Authenticate"))
			}
			auth.AssertExpectations(t)
		})
	}
}

func TestServeHTTP_Methods(t *testing.T) {
	auth := &storage.MockAuthenticator{}
	auth.On("AuthUser", "alice", "secret").Return("alice", nil)
	h := NewCaldavHandler(&storage.MockStore{}, auth, nil,
		WithCustomHeaders(map[string]string{"X-Server": "caldelete"}))

	t.Run("options", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/caldav/alice", nil)
		req.Header.Set("Authorization", basicAuth("alice", "secret"))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "OPTIONS, DELETE", rr.Header().Get("Allow"))
		assert.Contains(t, rr.Header().Get("DAV"), "calendar-access")
		assert.Contains(t, rr.Header().Get("DAV"), "addressbook")
		assert.Equal(t, "caldelete", rr.Header().Get("X-Server"))
	})

	for _, method := range []string{http.MethodGet, http.MethodPut, "PROPFIND", "MKCALENDAR"} {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(method, "/caldav/alice/cal/work", nil)
			req.Header.Set("Authorization", basicAuth("alice", "secret"))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
			assert.Equal(t, "OPTIONS, DELETE", rr.Header().Get("Allow"))
		})
	}
}

func TestNewCaldavHandler(t *testing.T) {
	h := NewCaldavHandler(&storage.MockStore{}, &storage.MockAuthenticator{}, nil, WithPrefix("dav"))
	if h.Prefix != "/dav/" {
		t.Errorf("Prefix = %q, want %q", h.Prefix, "/dav/")
	}
	if h.Deleter == nil {
		t.Error("expected a default orchestrator")
	}
	if h.Logger == nil {
		t.Error("expected a discard logger")
	}
	conv, ok := h.URLConverter.(*DefaultURLConverter)
	require.True(t, ok)
	assert.Equal(t, "/dav/", conv.Prefix)
}

func TestParseConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := ParseConfig(nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("overrides", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(`
prefix: /dav/
realm: Example
custom_headers:
  X-Server: caldelete
deletion:
  schedule_tag_compatibility: true
  lock_timeout: 30s
`))
		require.NoError(t, err)
		assert.Equal(t, "/dav/", cfg.Prefix)
		assert.Equal(t, "Example", cfg.Realm)
		assert.Equal(t, map[string]string{"X-Server": "caldelete"}, cfg.CustomHeaders)
		assert.True(t, cfg.Deletion.ScheduleTagCompatibility)
		assert.Equal(t, 30*time.Second, cfg.Deletion.LockTimeout)
		assert.Equal(t, DefaultConfig().Deletion.LockClass, cfg.Deletion.LockClass)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := ParseConfig([]byte("prefix: [unterminated"))
		assert.Error(t, err)
	})

	t.Run("negative timeout", func(t *testing.T) {
		_, err := ParseConfig([]byte("deletion:\n  lock_timeout: -1s\n"))
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig("/nonexistent/caldelete.yaml")
		assert.Error(t, err)
	})
}
