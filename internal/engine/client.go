package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"missionchat/internal/model"
)

const (
	ModeCompact = "compact"
	ModeVerbose = "tree_summarize"
)

// QueryRequest is the narrow interface to the retrieval engine.
type QueryRequest struct {
	Query         string `json:"query"`
	ResponseMode  string `json:"response_mode"`
	ReturnSources bool   `json:"return_sources"`
	Verbose       bool   `json:"verbose"`
}

type QueryResult struct {
	Response     string
	Sources      []model.SourceCitation
	ResponseTime float64
}

// QueryEngine is the boundary the orchestrator depends on. The engine is
// opaque; any error it raises is recovered upstream.
type QueryEngine interface {
	Query(ctx context.Context, req QueryRequest) (*QueryResult, error)
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type rawSource struct {
	Metadata struct {
		Title     string `json:"title"`
		URL       string `json:"url"`
		MissionID string `json:"mission_id"`
	} `json:"metadata"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

type rawResult struct {
	Response string      `json:"response"`
	Sources  []rawSource `json:"sources"`
	Metadata struct {
		ResponseTime float64 `json:"response_time"`
	} `json:"metadata"`
}

func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal engine request failed: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/query"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build engine request failed: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("engine request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read engine response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("engine response status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed rawResult
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse engine json failed: %w", err)
	}

	sources := make([]model.SourceCitation, 0, len(parsed.Sources))
	for _, s := range parsed.Sources {
		sources = append(sources, model.SourceCitation{
			Title:     s.Metadata.Title,
			URL:       s.Metadata.URL,
			MissionID: s.Metadata.MissionID,
			Score:     s.Score,
			Excerpt:   s.Text,
		})
	}

	return &QueryResult{
		Response:     parsed.Response,
		Sources:      sources,
		ResponseTime: parsed.Metadata.ResponseTime,
	}, nil
}
