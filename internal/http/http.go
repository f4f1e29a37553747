package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"adte.com/adte/creative-agent/internal/api"
	"adte.com/adte/creative-agent/internal/asset"
	"adte.com/adte/creative-agent/internal/manifest"
	"adte.com/adte/creative-agent/internal/middleware"
	"adte.com/adte/creative-agent/internal/server"
	"adte.com/adte/creative-agent/internal/storage"
)

const (
	requestTimeout = 10 * time.Second
	buildTimeout   = 90 * time.Second
)

// PreviewSource serves previews the agent stores itself.
type PreviewSource interface {
	Get(ctx context.Context, key string) (*storage.Object, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// HTTPHandler wraps the server and provides HTTP handlers
type HTTPHandler struct {
	srv      *server.Server
	previews PreviewSource
	logger   *slog.Logger
}

// NewHTTPHandler creates a new HTTP handler. previews may be nil when
// previews live in an external bucket.
func NewHTTPHandler(srv *server.Server, previews PreviewSource, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{srv: srv, previews: previews, logger: logger}
}

// Routes builds the router. mcpHandler and metricsHandler are optional.
func (h *HTTPHandler) Routes(mcpHandler, metricsHandler http.Handler) *httprouter.Router {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.sendErrorResponse(w, "No route for "+r.URL.Path, "NOT_FOUND", http.StatusNotFound)
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.sendErrorResponse(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
	})

	router.GET("/", h.RootHandler)
	router.GET("/health", h.HealthHandler)
	router.GET("/formats", h.FormatsHandler)
	router.GET("/formats/:format_id", h.FormatHandler)
	router.GET("/previews/:preview_id/:file", h.PreviewFileHandler)
	router.GET("/preview/:preview_id/interactive", h.InteractiveHandler)

	router.POST("/list_creative_formats", h.ListCreativeFormatsHandler)
	router.POST("/preview_creative", h.PreviewCreativeHandler)
	router.POST("/validate_creative", h.ValidateCreativeHandler)
	router.Handler(http.MethodPost, "/build_creative",
		middleware.RequirePermissions("build_creative", h.logger)(http.HandlerFunc(h.BuildCreativeHandler)))

	if metricsHandler != nil {
		router.Handler(http.MethodGet, "/metrics", metricsHandler)
	}
	if mcpHandler != nil {
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
			router.Handler(method, "/mcp", mcpHandler)
		}
	}
	return router
}

// RootHandler describes the agent and its endpoints.
func (h *HTTPHandler) RootHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	agent := h.srv.Agent()
	h.sendJSON(w, http.StatusOK, map[string]any{
		"name":         agent.AgentName,
		"agent_url":    agent.AgentURL,
		"protocol":     "adcp",
		"capabilities": agent.Capabilities,
		"formats":      h.srv.Registry.Len(),
		"mcp_endpoint": "/mcp",
		"endpoints": []string{
			"GET /formats",
			"GET /formats/{format_id}",
			"POST /list_creative_formats",
			"POST /preview_creative",
			"POST /validate_creative",
			"POST /build_creative",
		},
	})
}

func (h *HTTPHandler) HealthHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if p, ok := h.previews.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			h.logger.Error("preview store ping failed", "error", err)
			h.sendErrorResponse(w, "preview store unavailable", "STORAGE_UNAVAILABLE", http.StatusServiceUnavailable)
			return
		}
	}

	h.sendJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"agent":   h.srv.Agent().AgentName,
		"formats": h.srv.Registry.Len(),
	})
}

// FormatsHandler lists formats filtered by query parameters.
func (h *HTTPHandler) FormatsHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req, err := requestFromQuery(r.URL.Query())
	if err != nil {
		h.sendErrorResponse(w, err.Error(), server.CodeInvalidCriteria, http.StatusBadRequest)
		return
	}
	resp, err := h.srv.ListFormats(r.Context(), req)
	if err != nil {
		h.sendServerError(w, "list formats", err)
		return
	}
	h.sendJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) FormatHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	f, err := h.srv.GetFormat(r.Context(), ps.ByName("format_id"))
	if err != nil {
		h.sendServerError(w, "get format", err)
		return
	}
	h.sendJSON(w, http.StatusOK, f)
}

func (h *HTTPHandler) ListCreativeFormatsHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req api.ListCreativeFormatsRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	resp, err := h.srv.ListFormats(r.Context(), req)
	if err != nil {
		h.sendServerError(w, "list formats", err)
		return
	}
	h.sendJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) PreviewCreativeHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req api.PreviewCreativeRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	resp, err := h.srv.PreviewCreative(ctx, req)
	if err != nil {
		h.sendServerError(w, "preview creative", err)
		return
	}
	h.sendJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) ValidateCreativeHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req api.ValidateCreativeRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	resp, err := h.srv.ValidateManifest(ctx, req.FormatID, req.CreativeManifest)
	if err != nil {
		h.sendServerError(w, "validate creative", err)
		return
	}
	h.sendJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) BuildCreativeHandler(w http.ResponseWriter, r *http.Request) {
	var req api.BuildCreativeRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), buildTimeout)
	defer cancel()

	resp, err := h.srv.BuildCreative(ctx, req)
	if err != nil {
		h.sendServerError(w, "build creative", err)
		return
	}
	h.sendJSON(w, http.StatusOK, resp)
}

// PreviewFileHandler serves a stored preview document.
func (h *HTTPHandler) PreviewFileHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if h.previews == nil {
		h.sendErrorResponse(w, "Previews are not served by this agent", "NOT_FOUND", http.StatusNotFound)
		return
	}

	key := fmt.Sprintf("previews/%s/%s", ps.ByName("preview_id"), ps.ByName("file"))
	obj, err := h.previews.Get(r.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		h.sendErrorResponse(w, "Preview not found", "NOT_FOUND", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("load preview failed", "key", key, "error", err)
		h.sendErrorResponse(w, "Internal server error", server.CodeInternal, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Cache-Control", storage.CacheControl)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(obj.Content); err != nil {
		h.logger.Error("write preview failed", "key", key, "error", err)
	}
}

var interactivePage = template.Must(template.New("interactive").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Preview {{.PreviewID}}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, sans-serif; margin: 24px; background: #f5f5f5; }
section { margin-bottom: 32px; }
iframe { border: 1px solid #ccc; background: #fff; width: 100%; height: 480px; }
</style>
</head>
<body>
<h1>Preview {{.PreviewID}}</h1>
{{range .Variants}}<section>
<h2>{{.Name}}</h2>
<iframe src="{{.Src}}" sandbox="allow-scripts" loading="lazy"></iframe>
</section>
{{end}}</body>
</html>
`))

type interactiveVariant struct {
	Name string
	Src  string
}

// InteractiveHandler shows every stored variant of a preview on one page.
func (h *HTTPHandler) InteractiveHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if h.previews == nil {
		h.sendErrorResponse(w, "Previews are not served by this agent", "NOT_FOUND", http.StatusNotFound)
		return
	}

	previewID := ps.ByName("preview_id")
	prefix := fmt.Sprintf("previews/%s/", previewID)
	keys, err := h.previews.Keys(r.Context(), prefix)
	if err != nil {
		h.logger.Error("list preview variants failed", "preview_id", previewID, "error", err)
		h.sendErrorResponse(w, "Internal server error", server.CodeInternal, http.StatusInternalServerError)
		return
	}
	if len(keys) == 0 {
		h.sendErrorResponse(w, "Preview not found", "NOT_FOUND", http.StatusNotFound)
		return
	}

	variants := make([]interactiveVariant, 0, len(keys))
	for _, key := range keys {
		variants = append(variants, interactiveVariant{
			Name: strings.TrimSuffix(strings.TrimPrefix(key, prefix), ".html"),
			Src:  "/" + key,
		})
	}

	w.Header().Set("Content-Type", storage.ContentType)
	if err := interactivePage.Execute(w, struct {
		PreviewID string
		Variants  []interactiveVariant
	}{previewID, variants}); err != nil {
		h.logger.Error("render interactive preview failed", "preview_id", previewID, "error", err)
	}
}

// decode reads the JSON body into dst. An empty body is accepted only when
// allowEmpty is set.
func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}

	var maxErr *http.MaxBytesError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &maxErr):
		h.sendErrorResponse(w, "Request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
	case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		h.sendDetailedErrorResponse(w, "Invalid JSON format", server.CodeInvalidJSON, []manifest.ValidationError{{
			Message: err.Error(),
			Type:    manifest.ErrJSONSyntax,
		}}, http.StatusBadRequest)
	default:
		h.sendDetailedErrorResponse(w, "Invalid request body", server.CodeInvalidRequest, err.Error(), http.StatusBadRequest)
	}
	return false
}

func requestFromQuery(q url.Values) (api.ListCreativeFormatsRequest, error) {
	req := api.ListCreativeFormatsRequest{
		Type:       q.Get("type"),
		Dimensions: q.Get("dimensions"),
		NameSearch: q.Get("name_search"),
	}
	for _, id := range splitList(q.Get("format_ids")) {
		req.FormatIDs = append(req.FormatIDs, api.FormatRef{ID: id})
	}
	for _, kind := range splitList(q.Get("asset_types")) {
		req.AssetTypes = append(req.AssetTypes, asset.Kind(kind))
	}

	ints := []struct {
		name string
		dst  **int
	}{
		{"max_width", &req.MaxWidth},
		{"max_height", &req.MaxHeight},
		{"min_width", &req.MinWidth},
		{"min_height", &req.MinHeight},
	}
	for _, p := range ints {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return req, fmt.Errorf("%s must be an integer", p.name)
		}
		*p.dst = &v
	}

	if raw := q.Get("is_responsive"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return req, errors.New("is_responsive must be true or false")
		}
		req.IsResponsive = &v
	}
	return req, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// StatusFor maps an operation failure to an HTTP status.
func StatusFor(err *server.Error) int {
	switch err.Kind {
	case server.KindRequest, server.KindValidation:
		return http.StatusBadRequest
	case server.KindReference:
		if err.Code == server.CodeFormatNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case server.KindCollaborator:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPHandler) sendServerError(w http.ResponseWriter, operation string, err error) {
	serr := server.AsError(err)
	status := StatusFor(serr)
	if status >= http.StatusInternalServerError {
		h.logger.Error(operation+" failed", "code", serr.Code, "error", err)
	} else {
		h.logger.Debug(operation+" rejected", "code", serr.Code, "message", serr.Message)
	}
	h.sendDetailedErrorResponse(w, serr.Message, serr.Code, serr.Details, status)
}

func (h *HTTPHandler) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response failed", "error", err)
	}
}

// Sends a structured error response
func (h *HTTPHandler) sendErrorResponse(w http.ResponseWriter, message string, code string, status int) {
	h.sendDetailedErrorResponse(w, message, code, nil, status)
}

// Sends an error with additional details
func (h *HTTPHandler) sendDetailedErrorResponse(w http.ResponseWriter, message string, code string, details any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(api.ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	}); err != nil {
		h.logger.Error("encode error response failed", "code", code, "error", err)
	}
}
