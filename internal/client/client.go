// Package client is a typed HTTP client for the rules API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TimurManjosov/gorules/internal/engine"
	"github.com/TimurManjosov/gorules/internal/rules"
	"github.com/TimurManjosov/gorules/internal/store"
)

// Client is an HTTP client for the rules API
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	Status  int
	Code    string
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("API error (status %d, %s): %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.Status, e.Message)
}

// CombineResult is the response of Combine.
type CombineResult struct {
	CombinedAST rules.Node `json:"combinedAST"`
	RuleString  string     `json:"ruleString"`
	ID          string     `json:"_id,omitempty"`
}

// Export is the response of Export.
type Export struct {
	ID         string `json:"_id"`
	Format     string `json:"format"`
	Expression any    `json:"expression"`
}

// Create stores a new rule.
func (c *Client) Create(ctx context.Context, ruleString string) (*store.Rule, error) {
	var rule store.Rule
	err := c.do(ctx, http.MethodPost, "/api/rules/create", map[string]string{"ruleString": ruleString}, &rule)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// Get retrieves a single rule by id.
func (c *Client) Get(ctx context.Context, id string) (*store.Rule, error) {
	var rule store.Rule
	if err := c.do(ctx, http.MethodGet, "/api/rules/"+url.PathEscape(id), nil, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// List retrieves every stored rule.
func (c *Client) List(ctx context.Context) ([]store.Rule, error) {
	var list []store.Rule
	if err := c.do(ctx, http.MethodGet, "/api/rules/all", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Modify replaces the rule string of an existing rule.
func (c *Client) Modify(ctx context.Context, id, ruleString string) (*store.Rule, error) {
	var rule store.Rule
	body := map[string]string{"ruleId": id, "newRuleString": ruleString}
	if err := c.do(ctx, http.MethodPost, "/api/rules/modify", body, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// Delete removes a rule.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/rules/"+url.PathEscape(id), nil, nil)
}

// Combine joins rule strings with operator ("AND", "OR" or "" for the
// server default). With save set the server stores the result.
func (c *Client) Combine(ctx context.Context, ruleStrings []string, operator string, save bool) (*CombineResult, error) {
	body := struct {
		Rules    []string `json:"rules"`
		Operator string   `json:"operator,omitempty"`
		Save     bool     `json:"save,omitempty"`
	}{ruleStrings, operator, save}

	var raw struct {
		CombinedAST json.RawMessage `json:"combinedAST"`
		RuleString  string          `json:"ruleString"`
		ID          string          `json:"_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/rules/combine", body, &raw); err != nil {
		return nil, err
	}
	node, err := rules.DecodeNode(raw.CombinedAST)
	if err != nil {
		return nil, fmt.Errorf("failed to decode combined rule: %w", err)
	}
	return &CombineResult{CombinedAST: node, RuleString: raw.RuleString, ID: raw.ID}, nil
}

// Evaluate runs a stored rule against data. With explain set the result
// carries a trace.
func (c *Client) Evaluate(ctx context.Context, id string, data map[string]any, explain bool) (*engine.EvaluationResult, error) {
	return c.evaluate(ctx, evaluateBody{RuleID: id, Data: data, Explain: explain})
}

// EvaluateWithEngine runs a stored rule on the named server engine
// (native, jsonlogic or cel).
func (c *Client) EvaluateWithEngine(ctx context.Context, id string, data map[string]any, engineName string) (*engine.EvaluationResult, error) {
	return c.evaluate(ctx, evaluateBody{RuleID: id, Data: data, Engine: engineName})
}

type evaluateBody struct {
	RuleID  string         `json:"ruleId"`
	Data    map[string]any `json:"data"`
	Explain bool           `json:"explain,omitempty"`
	Engine  string         `json:"engine,omitempty"`
}

func (c *Client) evaluate(ctx context.Context, body evaluateBody) (*engine.EvaluationResult, error) {
	var res engine.EvaluationResult
	if err := c.do(ctx, http.MethodPost, "/api/rules/evaluate", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Export renders a stored rule as JSON Logic or CEL.
func (c *Client) Export(ctx context.Context, id, format string) (*Export, error) {
	path := "/api/rules/" + url.PathEscape(id) + "/export"
	if format != "" {
		path += "?format=" + url.QueryEscape(format)
	}
	var out Export
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Replace is Modify through PUT /api/rules/{id}.
func (c *Client) Replace(ctx context.Context, id, ruleString string) (*store.Rule, error) {
	var rule store.Rule
	body := map[string]string{"ruleString": ruleString}
	if err := c.do(ctx, http.MethodPut, "/api/rules/"+url.PathEscape(id), body, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// Health reports whether the server answers /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// StreamEvent is one event of the rule list stream: "init" once, then
// "update" whenever the rule list changes.
type StreamEvent struct {
	Event string
	ETag  string
}

// Watch follows the rule list stream and calls fn for every event until
// ctx is cancelled, the server closes the stream, or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(StreamEvent) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/rules/stream", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream outlives any whole-request timeout.
	hc := *c.HTTPClient
	hc.Timeout = 0
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	var ev StreamEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if ev.Event != "" {
				if err := fn(ev); err != nil {
					return err
				}
			}
			ev = StreamEvent{}
		case strings.HasPrefix(line, "event: "):
			ev.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var data struct {
				ETag string `json:"etag"`
			}
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &data); err != nil {
				return fmt.Errorf("failed to decode stream event: %w", err)
			}
			ev.ETag = data.ETag
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stream read failed: %w", err)
	}
	return ctx.Err()
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{Status: resp.StatusCode}
	var payload struct {
		Message string `json:"message"`
		Code    string `json:"code"`
		Kind    string `json:"kind"`
	}
	if json.Unmarshal(bodyBytes, &payload) == nil && payload.Message != "" {
		apiErr.Message = payload.Message
		apiErr.Code = payload.Code
		apiErr.Kind = payload.Kind
	} else {
		apiErr.Message = strings.TrimSpace(string(bodyBytes))
	}
	return apiErr
}
