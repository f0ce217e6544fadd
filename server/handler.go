package server

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cyp0633/caldelete/server/deletion"
	"github.com/cyp0633/caldelete/server/storage"
)

const (
	allowedMethods = "OPTIONS, DELETE"
	davCompliance  = "1, 3, calendar-access, addressbook, calendar-schedule"
)

// RequestContext holds parsed information about the incoming request.
type RequestContext struct {
	Resource Resource // store URI and owner of the target
	AuthUser string   // Authenticated user (from Basic Auth)
}

// CaldavHandler is the main HTTP handler for CalDAV and CardDAV requests under a specific prefix.
type CaldavHandler struct {
	Prefix        string // e.g., "/caldav/"
	Realm         string // Realm for Basic Auth
	Store         storage.Store
	Auth          storage.Authenticator
	Deleter       *deletion.Orchestrator
	URLConverter  URLConverter
	CustomHeaders map[string]string
	Logger        *slog.Logger
}

// NewCaldavHandler creates a new CaldavHandler. If deleter is nil, one is
// built on store from the deletion settings in the configuration.
func NewCaldavHandler(store storage.Store, auth storage.Authenticator, deleter *deletion.Orchestrator, opts ...Option) *CaldavHandler {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	// Ensure prefix starts and ends with a slash for consistent parsing
	prefix := cfg.Prefix
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	converter := cfg.URLConverter
	if converter == nil {
		converter = &DefaultURLConverter{Prefix: prefix}
	}
	if deleter == nil {
		deleter = deletion.New(store,
			deletion.WithConfig(cfg.Deletion),
			deletion.WithLogger(logger))
	}

	return &CaldavHandler{
		Prefix:        prefix,
		Realm:         cfg.Realm,
		Store:         store,
		Auth:          auth,
		Deleter:       deleter,
		URLConverter:  converter,
		CustomHeaders: cfg.CustomHeaders,
		Logger:        logger,
	}
}

// ServeHTTP handles incoming HTTP requests, performs authentication, parsing, and routing.
func (h *CaldavHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Logger.Debug("request received",
		"method", r.Method,
		"path", r.URL.Path)

	for k, v := range h.CustomHeaders {
		w.Header().Set(k, v)
	}

	authUser, ok := h.checkAuth(w, r)
	if !ok {
		// checkAuth already sent the response
		return
	}

	resource, err := h.URLConverter.ParsePath(r.URL.Path)
	if err != nil {
		h.Logger.Warn("failed to parse path",
			"path", r.URL.Path,
			"error", err)
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	ctx := &RequestContext{
		Resource: resource,
		AuthUser: authUser,
	}

	// Users can only touch their own tree; shared collections show up inside
	// the sharee's home.
	if ctx.Resource.Owner != "" && ctx.Resource.Owner != ctx.AuthUser {
		h.Logger.Warn("access denied",
			"user", ctx.AuthUser,
			"owner", ctx.Resource.Owner,
			"uri", ctx.Resource.URI)
		http.Error(w, "Forbidden: Access denied to the requested resource", http.StatusForbidden)
		return
	}

	switch r.Method {
	case http.MethodDelete:
		h.handleDelete(w, r, ctx)
	case http.MethodOptions:
		h.handleOptions(w, r, ctx)
	default:
		h.Logger.Warn("method not allowed",
			"method", r.Method)
		w.Header().Set("Allow", allowedMethods)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (h *CaldavHandler) handleOptions(w http.ResponseWriter, _ *http.Request, ctx *RequestContext) {
	h.Logger.Debug("options request",
		"uri", ctx.Resource.URI)
	w.Header().Set("Allow", allowedMethods)
	w.Header().Set("DAV", davCompliance)
	w.WriteHeader(http.StatusOK)
}
