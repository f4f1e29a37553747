package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adte.com/adte/creative-agent/internal/api"
	"adte.com/adte/creative-agent/internal/auth"
	"adte.com/adte/creative-agent/internal/format"
	"adte.com/adte/creative-agent/internal/generate"
	"adte.com/adte/creative-agent/internal/server"
)

type memoryStore struct {
	mu   sync.Mutex
	keys []string
}

func (m *memoryStore) Put(ctx context.Context, key string, content []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return "https://previews.example.com/" + key, nil
}

type fixedGenerator struct{ output string }

func (g fixedGenerator) Generate(ctx context.Context, req generate.Request) (string, error) {
	return g.output, nil
}

var bannerManifest = map[string]any{
	"format_id": "display_300x250_image",
	"assets": map[string]any{
		"banner_image": map[string]any{"asset_type": "image", "url": "https://cdn.example.com/banner.png", "width": 300, "height": 250},
		"click_url":    map[string]any{"asset_type": "url", "url": "https://www.example.com/landing"},
	},
}

func newTestHandler(t *testing.T) *MCPHandler {
	t.Helper()
	reg, err := format.NewStandardRegistry("")
	require.NoError(t, err)
	banner, err := json.Marshal(bannerManifest)
	require.NoError(t, err)
	return NewMCPHandler(&server.Server{
		Registry:  reg,
		Store:     &memoryStore{},
		Generator: fixedGenerator{output: string(banner)},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		AgentURL:  format.DefaultAgentURL,
		Now:       func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) },
		NewID:     func() string { return "p1" },
	})
}

func errorBody(t *testing.T, res *sdk.CallToolResult) api.ErrorResponse {
	t.Helper()
	require.NotNil(t, res)
	require.True(t, res.IsError)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*sdk.TextContent)
	require.True(t, ok)
	var body api.ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(text.Text), &body))
	return body
}

func TestRegisterTools(t *testing.T) {
	h := newTestHandler(t)
	assert.NotPanics(t, func() { h.NewServer() })
}

func TestHandleListCreativeFormats(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	res, out, err := h.HandleListCreativeFormats(ctx, nil, listFormatsInput{Type: "audio"})
	require.NoError(t, err)
	assert.Nil(t, res)
	require.NotEmpty(t, out.Formats)
	for _, f := range out.Formats {
		assert.Equal(t, format.TypeAudio, f.Type)
	}
	require.Len(t, out.CreativeAgents, 1)

	res, _, err = h.HandleListCreativeFormats(ctx, nil, listFormatsInput{Dimensions: "wide"})
	require.NoError(t, err)
	assert.Equal(t, server.CodeInvalidCriteria, errorBody(t, res).Code)
}

func TestHandleGetCreativeFormat(t *testing.T) {
	h := newTestHandler(t)

	res, out, err := h.HandleGetCreativeFormat(context.Background(), nil, getFormatInput{FormatID: "display_300x250_image"})
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, "display_300x250_image", out.Format.FormatID.ID)

	res, _, err = h.HandleGetCreativeFormat(context.Background(), nil, getFormatInput{FormatID: "nope"})
	require.NoError(t, err)
	assert.Equal(t, server.CodeFormatNotFound, errorBody(t, res).Code)
}

func TestHandlePreviewCreative(t *testing.T) {
	h := newTestHandler(t)

	res, out, err := h.HandlePreviewCreative(context.Background(), nil, previewInput{
		FormatID:         map[string]any{"agent_url": format.DefaultAgentURL, "id": "display_300x250_image"},
		CreativeManifest: bannerManifest,
	})
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Len(t, out.Previews, 3)
	assert.Equal(t, "2025-03-02T00:00:00Z", out.ExpiresAt)

	res, _, err = h.HandlePreviewCreative(context.Background(), nil, previewInput{
		FormatID:         "display_300x250_image",
		CreativeManifest: "not an object",
	})
	require.NoError(t, err)
	assert.Equal(t, server.CodeInvalidManifest, errorBody(t, res).Code)

	res, _, err = h.HandlePreviewCreative(context.Background(), nil, previewInput{
		FormatID:         42,
		CreativeManifest: bannerManifest,
	})
	require.NoError(t, err)
	assert.Equal(t, server.CodeInvalidRequest, errorBody(t, res).Code)
}

func TestHandleValidateCreative(t *testing.T) {
	h := newTestHandler(t)

	res, out, err := h.HandleValidateCreative(context.Background(), nil, validateInput{
		FormatID: "display_300x250_image",
		CreativeManifest: map[string]any{
			"format_id": "display_300x250_image",
			"assets":    map[string]any{},
		},
	})
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.False(t, out.Valid)
	assert.Len(t, out.Errors, 2)
}

func TestHandleBuildCreativePermissions(t *testing.T) {
	h := newTestHandler(t)
	input := buildInput{Message: "Spring sale", FormatID: "display_300x250_image"}

	res, out, err := h.HandleBuildCreative(context.Background(), nil, input)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, api.StatusDraft, out.Status)
	data, ok := out.CreativeOutput.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "display_300x250_image", data["format_id"])

	res, _, err = h.ForPrincipal(nil).HandleBuildCreative(context.Background(), nil, input)
	require.NoError(t, err)
	assert.Equal(t, "AUTH_REQUIRED", errorBody(t, res).Code)

	res, _, err = h.ForPrincipal(auth.ReadOnly("ro")).HandleBuildCreative(context.Background(), nil, input)
	require.NoError(t, err)
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", errorBody(t, res).Code)

	res, _, err = h.ForPrincipal(auth.FullAccess("full")).HandleBuildCreative(context.Background(), nil, input)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestRecoveredTool(t *testing.T) {
	h := newTestHandler(t)
	panicking := recovered(h, "boom", struct{}{}, func(ctx context.Context, _ *sdk.CallToolRequest, _ struct{}) (*sdk.CallToolResult, struct{}, error) {
		panic("index out of range")
	})

	res, _, err := panicking(context.Background(), nil, struct{}{})
	require.NoError(t, err)
	body := errorBody(t, res)
	assert.Equal(t, server.CodeInternal, body.Code)
	assert.Equal(t, "index out of range", body.Details)
}

func connect(t *testing.T, h *MCPHandler) *sdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := sdk.NewInMemoryTransports()
	ss, err := h.NewServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func TestToolErrorsOverSession(t *testing.T) {
	cs := connect(t, newTestHandler(t))
	withoutClick := map[string]any{
		"format_id": "display_300x250_image",
		"assets": map[string]any{
			"banner_image": map[string]any{"asset_type": "image", "url": "https://cdn.example.com/banner.png", "width": 300, "height": 250},
		},
	}

	tests := []struct {
		name string
		tool string
		args map[string]any
		code string
	}{
		{
			name: "bad type criterion",
			tool: "list_creative_formats",
			args: map[string]any{"type": "bogus"},
			code: server.CodeInvalidCriteria,
		},
		{
			name: "unknown format",
			tool: "get_creative_format",
			args: map[string]any{"format_id": "nope"},
			code: server.CodeFormatNotFound,
		},
		{
			name: "preview of unknown format",
			tool: "preview_creative",
			args: map[string]any{"format_id": "nope", "creative_manifest": bannerManifest},
			code: server.CodeFormatNotFound,
		},
		{
			name: "preview missing click url",
			tool: "preview_creative",
			args: map[string]any{"format_id": "display_300x250_image", "creative_manifest": withoutClick},
			code: server.CodeValidationFailed,
		},
		{
			name: "validate of unknown format",
			tool: "validate_creative",
			args: map[string]any{"format_id": "nope", "creative_manifest": bannerManifest},
			code: server.CodeFormatNotFound,
		},
		{
			name: "validate list shaped assets",
			tool: "validate_creative",
			args: map[string]any{
				"format_id":         "display_300x250_image",
				"creative_manifest": map[string]any{"format_id": "display_300x250_image", "assets": []any{}},
			},
			code: server.CodeInvalidManifest,
		},
		{
			name: "build with bad output mode",
			tool: "build_creative",
			args: map[string]any{"message": "Spring sale", "format_id": "display_300x250_image", "output_mode": "video"},
			code: server.CodeInvalidOutputMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := cs.CallTool(context.Background(), &sdk.CallToolParams{Name: tt.tool, Arguments: tt.args})
			require.NoError(t, err)
			assert.Equal(t, tt.code, errorBody(t, res).Code)
		})
	}
}

func TestMissingClickURLOverSession(t *testing.T) {
	cs := connect(t, newTestHandler(t))

	res, err := cs.CallTool(context.Background(), &sdk.CallToolParams{
		Name: "preview_creative",
		Arguments: map[string]any{
			"format_id": "display_300x250_image",
			"creative_manifest": map[string]any{
				"format_id": "display_300x250_image",
				"assets": map[string]any{
					"banner_image": map[string]any{"asset_type": "image", "url": "https://cdn.example.com/banner.png", "width": 300, "height": 250},
				},
			},
		},
	})
	require.NoError(t, err)

	details, ok := errorBody(t, res).Details.([]any)
	require.True(t, ok)
	require.Len(t, details, 1)
	first, ok := details[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "missing_required_asset", first["type"])
	assert.Equal(t, "/assets/click_url", first["path"])
}

func TestToolResultsOverSession(t *testing.T) {
	cs := connect(t, newTestHandler(t))
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &sdk.CallToolParams{Name: "list_creative_formats", Arguments: map[string]any{"name_search": "no such format"}})
	require.NoError(t, err)
	require.False(t, res.IsError)
	listed, ok := res.StructuredContent.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{}, listed["formats"])

	res, err = cs.CallTool(ctx, &sdk.CallToolParams{
		Name:      "validate_creative",
		Arguments: map[string]any{"format_id": "display_300x250_image", "creative_manifest": bannerManifest},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	validated, ok := res.StructuredContent.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, validated["valid"])

	res, err = cs.CallTool(ctx, &sdk.CallToolParams{
		Name:      "preview_creative",
		Arguments: map[string]any{"format_id": "display_300x250_image", "creative_manifest": bannerManifest},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	previewed, ok := res.StructuredContent.(map[string]any)
	require.True(t, ok)
	assert.Len(t, previewed["previews"], 3)

	res, err = cs.CallTool(ctx, &sdk.CallToolParams{
		Name:      "build_creative",
		Arguments: map[string]any{"message": "Spring sale", "format_id": "display_300x250_image", "finalize": true},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	built, ok := res.StructuredContent.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, api.StatusFinalized, built["status"])
}

func TestListFormatsToolDescribesAssetTypeFilter(t *testing.T) {
	cs := connect(t, newTestHandler(t))

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, res.Tools, 5)

	for _, tool := range res.Tools {
		if tool.Name != "list_creative_formats" {
			continue
		}
		schema, ok := tool.InputSchema.(map[string]any)
		require.True(t, ok)
		props, ok := schema["properties"].(map[string]any)
		require.True(t, ok)
		assetTypes, ok := props["asset_types"].(map[string]any)
		require.True(t, ok)
		assert.Contains(t, assetTypes["description"], "every one of these asset types")
		return
	}
	t.Fatal("list_creative_formats is not registered")
}
