// Package engine talks to the external answer-generation engine: one
// request/response endpoint per question and one shared event stream for
// incremental answer tokens.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wisegate/wisegate/internal/domain"
)

// ErrUpstreamUnavailable is returned when the engine cannot be reached or
// answers with a non-2xx status.
var ErrUpstreamUnavailable = errors.New("engine: upstream unavailable")

// AnswerRequest is one correlated question for the engine.
type AnswerRequest struct {
	KnowledgeBaseID string
	Question        string
	Reference       string
	Conversation    []domain.ConversationEntry
	Language        string
	WisdomLevel     string
}

// AnswerResult is the engine's synchronous answer with its citations.
type AnswerResult struct {
	Answer  string          `json:"answer"`
	Sources []domain.Source `json:"sources"`
}

// Wire shapes. The engine speaks snake_case; optional fields are omitted
// entirely when empty because the engine treats presence as a feature flag.
type answerRequestBody struct {
	KnowledgeBaseID string                  `json:"knowledge_base_id"`
	Question        string                  `json:"question"`
	Reference       string                  `json:"reference"`
	Conversation    []conversationWireEntry `json:"conversation,omitempty"`
	Language        string                  `json:"language,omitempty"`
	WisdomLevel     string                  `json:"wisdom_level,omitempty"`
}

type conversationWireEntry struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

type answerResponseBody struct {
	Answer  string       `json:"answer"`
	Sources []sourceWire `json:"sources"`
}

type sourceWire struct {
	ChunkID      string  `json:"chunk_id"`
	ChunkNumber  int     `json:"chunk_number"`
	FileName     string  `json:"file_name"`
	PageIndex    int     `json:"page_index"`
	PercentageIn float64 `json:"percentage_in"`
	Mimetype     string  `json:"mimetype"`
	ResourceName string  `json:"resource_name"`
}

// Client is the request/response side of the engine.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates an engine client for the given base URL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddAnswerRequest posts a question to the engine and waits for the full
// answer. Token fragments for the same reference arrive independently on the
// event stream; this call neither waits for nor depends on them.
func (c *Client) AddAnswerRequest(ctx context.Context, req AnswerRequest) (*AnswerResult, error) {
	body := answerRequestBody{
		KnowledgeBaseID: req.KnowledgeBaseID,
		Question:        req.Question,
		Reference:       req.Reference,
		Language:        req.Language,
		WisdomLevel:     req.WisdomLevel,
	}
	for _, entry := range req.Conversation {
		body.Conversation = append(body.Conversation, conversationWireEntry{
			Sender:  string(entry.Sender),
			Content: entry.Content,
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("engine: marshal answer request: %w", err)
	}

	url := c.baseURL + "/answer-request"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("engine: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d from %s: %s", ErrUpstreamUnavailable, resp.StatusCode, url, string(detail))
	}

	var decoded answerResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstreamUnavailable, err)
	}

	result := &AnswerResult{
		Answer:  decoded.Answer,
		Sources: make([]domain.Source, 0, len(decoded.Sources)),
	}
	for _, s := range decoded.Sources {
		result.Sources = append(result.Sources, domain.Source{
			ChunkID:      s.ChunkID,
			ChunkNumber:  s.ChunkNumber,
			FileName:     s.FileName,
			PageIndex:    s.PageIndex,
			PercentageIn: s.PercentageIn,
			Mimetype:     s.Mimetype,
			ResourceName: s.ResourceName,
		})
	}
	return result, nil
}
