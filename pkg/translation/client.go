// Package translation translates detected text with Cloud Translation v2.
package translation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	translatev2 "google.golang.org/api/translate/v2"

	"github.com/teslashibe/go-lens/internal/httpc"
)

const provider = "translate"

var tracer = otel.Tracer("github.com/teslashibe/go-lens/pkg/translation")

// Result is a successful translation.
type Result struct {
	TranslatedText         string `json:"translated_text"`
	DetectedSourceLanguage string `json:"detected_source_language,omitempty"`
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source,omitempty"`
	Target string `json:"target"`
	Format string `json:"format"`
}

type translateResponse struct {
	Data *translatev2.TranslationsListResponse `json:"data"`
}

// Client calls the translation endpoint.
type Client struct {
	url    string
	config *Config
	http   *http.Client
	cache  Cache
	logger *slog.Logger
}

// NewClient creates a new translation client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	url, err := httpc.WithKey(cfg.Endpoint, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("translation: %w", err)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpc.NewClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		url:    url,
		config: cfg,
		http:   hc,
		cache:  cfg.Cache,
		logger: cfg.Logger.With("component", "translation.client"),
	}, nil
}

// Target returns the output language.
func (c *Client) Target() string {
	return c.config.Target
}

// Translate returns text translated into the target language. Empty text
// returns "" without a request. On any failure the input is returned
// unchanged and the failure is logged.
func (c *Client) Translate(ctx context.Context, text, sourceLanguage string) string {
	if text == "" {
		return ""
	}

	res, err := c.TranslateWithDetails(ctx, text, sourceLanguage)
	if err != nil {
		c.logger.Warn("translation failed, using original text", httpc.ErrorAttrs(err)...)
		return text
	}
	return res.TranslatedText
}

// TranslateWithDetails is Translate with the detected source language and
// the failure exposed.
func (c *Client) TranslateWithDetails(ctx context.Context, text, sourceLanguage string) (*Result, error) {
	if text == "" {
		return &Result{}, nil
	}

	source := normalizeSource(sourceLanguage)
	key := cacheKey(c.config.Target, source, text)

	if c.cache != nil {
		if hit, ok, err := c.cache.Get(ctx, key); err != nil {
			c.logger.Warn("cache get failed", "error", err)
		} else if ok {
			return hit, nil
		}
	}

	ctx, span := tracer.Start(ctx, "translation.Translate", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("translation.source", source),
		attribute.String("translation.target", c.config.Target),
	)

	start := time.Now()
	res, err := c.translate(ctx, text, source)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	c.logger.Debug("translated",
		"detected_source_language", res.DetectedSourceLanguage,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, res); err != nil {
			c.logger.Warn("cache set failed", "error", err)
		}
	}
	return res, nil
}

func (c *Client) translate(ctx context.Context, text, source string) (*Result, error) {
	payload := translateRequest{
		Q:      text,
		Source: source,
		Target: c.config.Target,
		Format: "text",
	}

	resp, err := httpc.PostJSON(ctx, c.http, c.url, payload)
	if err != nil {
		return nil, fmt.Errorf("translation: request: %w", err)
	}
	defer resp.Body.Close()

	if err := httpc.CheckResponse(provider, resp); err != nil {
		return nil, err
	}

	var body translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if body.Data == nil || len(body.Data.Translations) == 0 || body.Data.Translations[0] == nil {
		return nil, ErrNoTranslations
	}

	t := body.Data.Translations[0]
	return &Result{
		TranslatedText:         t.TranslatedText,
		DetectedSourceLanguage: t.DetectedSourceLanguage,
	}, nil
}

// normalizeSource maps "", "unknown" and "auto" to "" so the field is
// omitted and the service auto-detects.
func normalizeSource(lang string) string {
	switch lang {
	case "", "unknown", "auto":
		return ""
	default:
		return lang
	}
}
