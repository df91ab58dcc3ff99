package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"becoin/internal/config"
	"becoin/internal/engine"
	"becoin/internal/export"
	"becoin/internal/repo"
)

// Config for the dashboard handler.
type Config struct {
	Engine *engine.Engine
	// Archive enables the history endpoints when set.
	Archive  *repo.Repo
	BasePath string
	Auth     AuthConfig
	Webhooks []config.WebhookConfig
	Logger   *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// Server serves the read-only dashboard API and pushes snapshots to
// websocket clients and webhooks after each engine change.
type Server struct {
	engine   *engine.Engine
	handler  http.Handler
	hub      *Hub
	webhooks *webhookPublisher
	notify   chan struct{}
	logger   *slog.Logger
}

// New builds the dashboard server and subscribes it to engine changes.
// Call Run to start pushing updates.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("server: engine is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			msgs := make([]string, 0, len(errs))
			for _, err := range errs {
				msgs = append(msgs, err.Error())
			}
			details = map[string]any{"errors": msgs}
		}
		return newAPIError(status, "", msg, details)
	}

	s := &Server{
		engine:   cfg.Engine,
		hub:      newHub(logger.With("component", "ws")),
		webhooks: newWebhookPublisher(cfg.Webhooks, logger.With("component", "webhooks")),
		notify:   make(chan struct{}, 1),
		logger:   logger,
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger))
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Becoin Dashboard API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerStatus(group, s)
	registerDashboard(group, cfg.Engine)
	registerArchive(group, cfg.Archive)
	registerOpenAPI(router, api, basePath)
	router.Handle(path.Join(basePath, "ws"), s.hub.handler(s.welcome))

	s.handler = router
	cfg.Engine.Observe(func(engine.Change) { s.Notify() })
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Hub() *Hub { return s.hub }

// Notify schedules a push. Pending notifications collapse into one, so the
// engine is never blocked by slow clients.
func (s *Server) Notify() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Run pushes snapshots until ctx is done.
func (s *Server) Run(ctx context.Context) {
	go s.webhooks.run(ctx)
	for {
		select {
		case <-ctx.Done():
			s.hub.closeAll()
			return
		case <-s.notify:
			msg, err := s.snapshotMessage()
			if err != nil {
				s.logger.Error("encode snapshot", "err", err)
				continue
			}
			s.hub.broadcast(msg)
			s.webhooks.enqueue(msg)
		}
	}
}

type liveMessage struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Message   string          `json:"message,omitempty"`
	ClientID  string          `json:"client_id,omitempty"`
	Data      *export.Payload `json:"data,omitempty"`
}

const (
	msgConnectionEstablished = "connection_established"
	msgSnapshot              = "snapshot"
)

func (s *Server) snapshotMessage() ([]byte, error) {
	p := export.Build(s.engine.Snapshot())
	return json.Marshal(liveMessage{
		Type:      msgSnapshot,
		Timestamp: p.OrchestratorStatus.LastUpdate,
		Data:      &p,
	})
}

// welcome is sent to each new websocket client: a greeting, then the
// current snapshot.
func (s *Server) welcome(clientID string) [][]byte {
	hello, _ := json.Marshal(liveMessage{
		Type:      msgConnectionEstablished,
		Timestamp: export.Timestamp(time.Now()),
		Message:   "Connected to Becoin live updates",
		ClientID:  clientID,
	})
	out := [][]byte{hello}
	if snap, err := s.snapshotMessage(); err == nil {
		out = append(out, snap)
	}
	return out
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps archive read errors to the envelope.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusServiceUnavailable:
		return "unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "dur", time.Since(start))
		})
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {Schema: &huma.Schema{Type: "object"}},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Becoin Dashboard API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}
