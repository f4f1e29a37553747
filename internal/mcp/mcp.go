package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"adte.com/adte/creative-agent/internal/api"
	"adte.com/adte/creative-agent/internal/asset"
	"adte.com/adte/creative-agent/internal/auth"
	"adte.com/adte/creative-agent/internal/format"
	"adte.com/adte/creative-agent/internal/generate"
	"adte.com/adte/creative-agent/internal/manifest"
	"adte.com/adte/creative-agent/internal/preview"
	"adte.com/adte/creative-agent/internal/server"
)

const (
	ImplementationName    = "AdCP Creative Agent"
	ImplementationVersion = "0.1.0"
)

// MCPHandler wraps the server and provides MCP tool handlers
type MCPHandler struct {
	srv *server.Server

	// enforce is set for sessions opened over HTTP; principal is whoever
	// opened the session.
	enforce   bool
	principal *auth.Principal
}

// NewMCPHandler creates a new MCP handler
func NewMCPHandler(srv *server.Server) *MCPHandler {
	return &MCPHandler{srv: srv}
}

// ForPrincipal returns a handler that checks operation permissions against p.
// A nil p can only use public tools.
func (h *MCPHandler) ForPrincipal(p *auth.Principal) *MCPHandler {
	return &MCPHandler{srv: h.srv, enforce: true, principal: p}
}

func (h *MCPHandler) logger() *slog.Logger {
	if h.srv.Logger != nil {
		return h.srv.Logger
	}
	return slog.Default()
}

type listFormatsInput struct {
	FormatIDs    []string     `json:"format_ids,omitempty" jsonschema:"return only these format ids"`
	Type         string       `json:"type,omitempty" jsonschema:"one of audio, video, display, native, dooh or universal"`
	Dimensions   string       `json:"dimensions,omitempty" jsonschema:"exact render size such as 300x250"`
	MaxWidth     *int         `json:"max_width,omitempty"`
	MaxHeight    *int         `json:"max_height,omitempty"`
	MinWidth     *int         `json:"min_width,omitempty"`
	MinHeight    *int         `json:"min_height,omitempty"`
	IsResponsive *bool        `json:"is_responsive,omitempty"`
	NameSearch   string       `json:"name_search,omitempty" jsonschema:"case-insensitive substring of the format name"`
	AssetTypes   []asset.Kind `json:"asset_types,omitempty" jsonschema:"formats must accept every one of these asset types"`
}

type getFormatInput struct {
	FormatID string `json:"format_id" jsonschema:"id of the format to describe"`
}

type formatOutput struct {
	Format *format.CreativeFormat `json:"format"`
}

type previewInput struct {
	FormatID         any             `json:"format_id" jsonschema:"format id string or {agent_url, id} object"`
	CreativeManifest any             `json:"creative_manifest" jsonschema:"manifest with format_id and assets"`
	Inputs           []preview.Input `json:"inputs,omitempty" jsonschema:"preview variants; desktop, mobile and tablet when omitted"`
}

type previewOutput struct {
	Previews       []api.Preview `json:"previews"`
	InteractiveURL string        `json:"interactive_url,omitempty"`
	ExpiresAt      string        `json:"expires_at"`
}

type validateInput struct {
	FormatID         any `json:"format_id" jsonschema:"format id string or {agent_url, id} object"`
	CreativeManifest any `json:"creative_manifest" jsonschema:"manifest with format_id and assets"`
}

type buildInput struct {
	Message           string                 `json:"message" jsonschema:"what the creative should say and look like"`
	FormatID          any                    `json:"format_id" jsonschema:"format id string or {agent_url, id} object"`
	ContextID         string                 `json:"context_id,omitempty"`
	OutputMode        string                 `json:"output_mode,omitempty" jsonschema:"manifest or code"`
	PromotedOfferings *generate.BrandContext `json:"promoted_offerings,omitempty"`
	BrandManifest     *generate.BrandContext `json:"brand_manifest,omitempty"`
	Finalize          bool                   `json:"finalize,omitempty"`
	APIKey            string                 `json:"gemini_api_key,omitempty" jsonschema:"generation key used instead of the agent's own"`
}

type creativeOutput struct {
	Type            string      `json:"type"`
	FormatID        string      `json:"format_id"`
	OutputFormatIDs []format.ID `json:"output_format_ids,omitempty"`
	Data            any         `json:"data"`
}

type buildOutput struct {
	Message               string         `json:"message"`
	ContextID             string         `json:"context_id"`
	Status                string         `json:"status"`
	CreativeOutput        creativeOutput `json:"creative_output"`
	RefinementSuggestions []string       `json:"refinement_suggestions"`
}

// Outputs sent with error results. Their slices are non-nil so they satisfy
// the tool output schemas.
var (
	emptyFormatList = api.ListCreativeFormatsResponse{
		Formats:        []*format.CreativeFormat{},
		CreativeAgents: []api.CreativeAgent{},
	}
	emptyPreview    = previewOutput{Previews: []api.Preview{}}
	emptyValidation = api.ValidateCreativeResponse{Errors: []manifest.ValidationError{}}
	emptyBuild      = buildOutput{RefinementSuggestions: []string{}}
)

func (h *MCPHandler) errorResult(errResp api.ErrorResponse) (*sdk.CallToolResult, error) {
	data, err := json.Marshal(errResp)
	if err != nil {
		return nil, err
	}
	return &sdk.CallToolResult{
		IsError: true,
		Content: []sdk.Content{
			&sdk.TextContent{Text: string(data)},
		},
	}, nil
}

func (h *MCPHandler) failure(err error) (*sdk.CallToolResult, error) {
	serr := server.AsError(err)
	if serr.Kind == server.KindInternal || serr.Kind == server.KindCollaborator {
		h.logger().Error("tool call failed", "code", serr.Code, "error", err)
	}
	return h.errorResult(api.ErrorResponse{
		Error:   serr.Message,
		Code:    serr.Code,
		Details: serr.Details,
	})
}

// recovered turns a panicking tool into an INTERNAL_ERROR result.
// blank is the output sent alongside the error.
func recovered[In, Out any](h *MCPHandler, tool string, blank Out, next sdk.ToolHandlerFor[In, Out]) sdk.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *sdk.CallToolRequest, in In) (res *sdk.CallToolResult, out Out, err error) {
		defer func() {
			if p := recover(); p != nil {
				h.logger().Error("tool panicked", "tool", tool, "panic", p, "stack", string(debug.Stack()))
				out = blank
				res, err = h.errorResult(api.ErrorResponse{
					Error:   "Internal server error",
					Code:    server.CodeInternal,
					Details: server.Truncate(fmt.Sprint(p), 500),
				})
			}
		}()
		return next(ctx, req, in)
	}
}

func formatRef(v any) (api.FormatRef, error) {
	var ref api.FormatRef
	if v == nil {
		return ref, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ref, err
	}
	if err := json.Unmarshal(data, &ref); err != nil {
		return ref, &server.Error{Kind: server.KindRequest, Code: server.CodeInvalidRequest, Message: err.Error()}
	}
	return ref, nil
}

func rawManifest(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// HandleListCreativeFormats returns the formats matching the filters
func (h *MCPHandler) HandleListCreativeFormats(ctx context.Context, _ *sdk.CallToolRequest, input listFormatsInput) (*sdk.CallToolResult, api.ListCreativeFormatsResponse, error) {
	req := api.ListCreativeFormatsRequest{
		Type:         input.Type,
		Dimensions:   input.Dimensions,
		MaxWidth:     input.MaxWidth,
		MaxHeight:    input.MaxHeight,
		MinWidth:     input.MinWidth,
		MinHeight:    input.MinHeight,
		IsResponsive: input.IsResponsive,
		NameSearch:   input.NameSearch,
		AssetTypes:   input.AssetTypes,
	}
	for _, id := range input.FormatIDs {
		req.FormatIDs = append(req.FormatIDs, api.FormatRef{ID: id})
	}

	resp, err := h.srv.ListFormats(ctx, req)
	if err != nil {
		result, buildErr := h.failure(err)
		return result, emptyFormatList, buildErr
	}
	return nil, *resp, nil
}

// HandleGetCreativeFormat describes one format
func (h *MCPHandler) HandleGetCreativeFormat(ctx context.Context, _ *sdk.CallToolRequest, input getFormatInput) (*sdk.CallToolResult, formatOutput, error) {
	f, err := h.srv.GetFormat(ctx, input.FormatID)
	if err != nil {
		result, buildErr := h.failure(err)
		return result, formatOutput{}, buildErr
	}
	return nil, formatOutput{Format: f}, nil
}

// HandlePreviewCreative validates a manifest and renders its previews
func (h *MCPHandler) HandlePreviewCreative(ctx context.Context, _ *sdk.CallToolRequest, input previewInput) (*sdk.CallToolResult, previewOutput, error) {
	ref, err := formatRef(input.FormatID)
	if err != nil {
		result, buildErr := h.failure(err)
		return result, emptyPreview, buildErr
	}
	raw, err := rawManifest(input.CreativeManifest)
	if err != nil {
		return nil, emptyPreview, err
	}

	resp, err := h.srv.PreviewCreative(ctx, api.PreviewCreativeRequest{
		FormatID:         ref,
		CreativeManifest: raw,
		Inputs:           input.Inputs,
	})
	if err != nil {
		result, buildErr := h.failure(err)
		return result, emptyPreview, buildErr
	}
	previews := resp.Previews
	if previews == nil {
		previews = []api.Preview{}
	}
	return nil, previewOutput{
		Previews:       previews,
		InteractiveURL: resp.InteractiveURL,
		ExpiresAt:      resp.ExpiresAt.Format(time.RFC3339),
	}, nil
}

// HandleValidateCreative checks a manifest without rendering it
func (h *MCPHandler) HandleValidateCreative(ctx context.Context, _ *sdk.CallToolRequest, input validateInput) (*sdk.CallToolResult, api.ValidateCreativeResponse, error) {
	ref, err := formatRef(input.FormatID)
	if err != nil {
		result, buildErr := h.failure(err)
		return result, emptyValidation, buildErr
	}
	raw, err := rawManifest(input.CreativeManifest)
	if err != nil {
		return nil, emptyValidation, err
	}

	resp, err := h.srv.ValidateManifest(ctx, ref, raw)
	if err != nil {
		result, buildErr := h.failure(err)
		return result, emptyValidation, buildErr
	}
	return nil, *resp, nil
}

// HandleBuildCreative generates a manifest from a brief
func (h *MCPHandler) HandleBuildCreative(ctx context.Context, _ *sdk.CallToolRequest, input buildInput) (*sdk.CallToolResult, buildOutput, error) {
	if h.enforce {
		if err := auth.CheckOperationPermissions(h.principal, "build_creative"); err != nil {
			code := "AUTH_REQUIRED"
			var perr *auth.InsufficientPermissionsError
			if errors.As(err, &perr) {
				code = "INSUFFICIENT_PERMISSIONS"
			}
			result, buildErr := h.errorResult(api.ErrorResponse{Error: err.Error(), Code: code})
			return result, emptyBuild, buildErr
		}
	}

	ref, err := formatRef(input.FormatID)
	if err != nil {
		result, buildErr := h.failure(err)
		return result, emptyBuild, buildErr
	}

	resp, err := h.srv.BuildCreative(ctx, api.BuildCreativeRequest{
		Message:           input.Message,
		FormatID:          ref,
		ContextID:         input.ContextID,
		OutputMode:        input.OutputMode,
		PromotedOfferings: input.PromotedOfferings,
		BrandManifest:     input.BrandManifest,
		Finalize:          input.Finalize,
		APIKey:            input.APIKey,
	})
	if err != nil {
		result, buildErr := h.failure(err)
		return result, emptyBuild, buildErr
	}

	var data any
	if err := json.Unmarshal(resp.CreativeOutput.Data, &data); err != nil {
		return nil, emptyBuild, fmt.Errorf("decode generated manifest: %w", err)
	}
	return nil, buildOutput{
		Message:   resp.Message,
		ContextID: resp.ContextID,
		Status:    resp.Status,
		CreativeOutput: creativeOutput{
			Type:            resp.CreativeOutput.Type,
			FormatID:        resp.CreativeOutput.FormatID,
			OutputFormatIDs: resp.CreativeOutput.OutputFormatIDs,
			Data:            data,
		},
		RefinementSuggestions: resp.RefinementSuggestions,
	}, nil
}

// RegisterTools registers all MCP tools with the server
func (h *MCPHandler) RegisterTools(mcpServer *sdk.Server) {
	sdk.AddTool(mcpServer, &sdk.Tool{
		Name:        "list_creative_formats",
		Description: "List the standard creative formats, optionally filtered by type, size, name or asset type",
	}, recovered(h, "list_creative_formats", emptyFormatList, h.HandleListCreativeFormats))

	sdk.AddTool(mcpServer, &sdk.Tool{
		Name:        "get_creative_format",
		Description: "Describe one creative format and its required assets",
	}, recovered(h, "get_creative_format", formatOutput{}, h.HandleGetCreativeFormat))

	sdk.AddTool(mcpServer, &sdk.Tool{
		Name:        "preview_creative",
		Description: "Validate a creative manifest and render hosted HTML previews for each input variant",
	}, recovered(h, "preview_creative", emptyPreview, h.HandlePreviewCreative))

	sdk.AddTool(mcpServer, &sdk.Tool{
		Name:        "validate_creative",
		Description: "Validate a creative manifest against a format without rendering it",
	}, recovered(h, "validate_creative", emptyValidation, h.HandleValidateCreative))

	sdk.AddTool(mcpServer, &sdk.Tool{
		Name:        "build_creative",
		Description: "Generate a creative manifest for a format from a natural language brief",
	}, recovered(h, "build_creative", emptyBuild, h.HandleBuildCreative))
}

// NewServer returns an MCP server exposing the agent's tools.
func (h *MCPHandler) NewServer() *sdk.Server {
	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    ImplementationName,
		Version: ImplementationVersion,
	}, nil)
	h.RegisterTools(mcpServer)
	return mcpServer
}

// HTTPHandler serves streamable MCP. Each session is bound to the principal
// that opened it.
func (h *MCPHandler) HTTPHandler() http.Handler {
	return sdk.NewStreamableHTTPHandler(func(r *http.Request) *sdk.Server {
		principal, _ := auth.GetPrincipalFromContext(r.Context())
		return h.ForPrincipal(principal).NewServer()
	}, nil)
}
