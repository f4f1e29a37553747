// Package generate talks to the language model that drafts creative
// manifests.
package generate

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

var ErrNoAPIKey = errors.New("generation API key is required")

// Request is one generation call. APIKey overrides the configured key so
// callers can pay for their own generation. Images are sent to the model
// after the prompt.
type Request struct {
	SystemPrompt string
	Prompt       string
	Images       []Image
	APIKey       string
}

// Image is an inline picture exchanged with the model.
type Image struct {
	MIMEType string
	Data     []byte
}

// DataURI encodes the image as a base64 data URI.
func (i Image) DataURI() string {
	return "data:" + i.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Generator returns the raw model output for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ImageRequest asks for N pictures matching Prompt.
type ImageRequest struct {
	Prompt string
	N      int
	APIKey string
}

// ImageGenerator draws the images placed into generated manifests.
type ImageGenerator interface {
	GenerateImages(ctx context.Context, req ImageRequest) ([]Image, error)
}

// Config holds settings for an OpenAI-compatible endpoint such as Gemini's.
// An empty ImageModel leaves image generation off.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	ImageModel string
	MaxTokens  int
}

const (
	DefaultBaseURL    = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultModel      = "gemini-2.5-flash"
	DefaultImageModel = "imagen-3.0-generate-002"
)

// OpenAIGenerator implements Generator over the chat completions API.
type OpenAIGenerator struct {
	cfg    Config
	client *openai.Client
}

func NewOpenAIGenerator(cfg Config) *OpenAIGenerator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	g := &OpenAIGenerator{cfg: cfg}
	if cfg.APIKey != "" {
		g.client = g.newClient(cfg.APIKey)
	}
	return g
}

func (g *OpenAIGenerator) newClient(apiKey string) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = g.cfg.BaseURL
	return openai.NewClientWithConfig(config)
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	client := g.client
	if req.APIKey != "" {
		client = g.newClient(req.APIKey)
	}
	if client == nil {
		return "", ErrNoAPIKey
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if len(req.Images) == 0 {
		user.Content = req.Prompt
	} else {
		user.MultiContent = append(user.MultiContent, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: req.Prompt,
		})
		for _, img := range req.Images {
			user.MultiContent = append(user.MultiContent, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: img.DataURI(), Detail: openai.ImageURLDetailAuto},
			})
		}
	}
	messages = append(messages, user)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     g.cfg.Model,
		Messages:  messages,
		MaxTokens: g.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generation API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("generation API returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// ImagesEnabled reports whether an image model is configured.
func (g *OpenAIGenerator) ImagesEnabled() bool {
	return g.cfg.ImageModel != ""
}

// GenerateImages calls the images endpoint and returns the PNGs it produced.
func (g *OpenAIGenerator) GenerateImages(ctx context.Context, req ImageRequest) ([]Image, error) {
	client := g.client
	if req.APIKey != "" {
		client = g.newClient(req.APIKey)
	}
	if client == nil {
		return nil, ErrNoAPIKey
	}
	if g.cfg.ImageModel == "" {
		return nil, errors.New("image generation is not configured")
	}
	n := req.N
	if n <= 0 {
		n = 1
	}

	resp, err := client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          g.cfg.ImageModel,
		N:              n,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("image generation API error: %w", err)
	}

	images := make([]Image, 0, len(resp.Data))
	for i, d := range resp.Data {
		data, err := base64.StdEncoding.DecodeString(d.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("decode generated image %d: %w", i, err)
		}
		images = append(images, Image{MIMEType: "image/png", Data: data})
	}
	if len(images) == 0 {
		return nil, errors.New("image generation API returned no images")
	}
	return images, nil
}
