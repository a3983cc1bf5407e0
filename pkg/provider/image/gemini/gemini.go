// Package gemini generates images with the Gemini image models through
// google.golang.org/genai.
//
// 1K requests go to the Flash image model. 2K and 4K requests go to the Pro
// image model, which is the only one that accepts an explicit image size.
package gemini

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/MrWong99/aura/pkg/provider/image"
)

var _ image.Provider = (*Provider)(nil)

// Default model names.
const (
	DefaultFlashModel = "gemini-2.5-flash-image"
	DefaultProModel   = "gemini-3-pro-image-preview"
)

// Option configures a [Provider].
type Option func(*options)

type options struct {
	flashModel string
	proModel   string
	baseURL    string
	httpClient *http.Client
}

// WithModels overrides the Flash and Pro model names. Empty values keep the
// defaults.
func WithModels(flash, pro string) Option {
	return func(o *options) {
		if flash != "" {
			o.flashModel = flash
		}
		if pro != "" {
			o.proModel = pro
		}
	}
}

// WithBaseURL points the client at a different API endpoint.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// Provider implements image.Provider.
type Provider struct {
	client     *genai.Client
	flashModel string
	proModel   string
}

// New creates a Provider authenticated with apiKey.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini image: api key must not be empty")
	}
	o := options{flashModel: DefaultFlashModel, proModel: DefaultProModel}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: o.httpClient,
	}
	if o.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: o.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini image: create client: %w", err)
	}
	return &Provider{client: client, flashModel: o.flashModel, proModel: o.proModel}, nil
}

// Generate implements image.Provider.
func (p *Provider) Generate(ctx context.Context, req image.Request) (*image.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	model := p.flashModel
	imgCfg := &genai.ImageConfig{AspectRatio: string(req.AspectRatio)}
	if req.Resolution.HighRes() {
		model = p.proModel
		imgCfg.ImageSize = string(req.Resolution)
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), &genai.GenerateContentConfig{
		ImageConfig: imgCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini image: generate: %w", err)
	}

	var res image.Result
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			switch {
			case part.InlineData != nil && len(part.InlineData.Data) > 0:
				res.Data = part.InlineData.Data
				res.MIMEType = part.InlineData.MIMEType
			case part.Text != "":
				res.Caption = part.Text
			}
		}
	}
	if len(res.Data) == 0 {
		return nil, image.ErrNoImage
	}
	if res.MIMEType == "" {
		res.MIMEType = "image/png"
	}
	return &res, nil
}
