package ctl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"inferd/pkg/types"
)

// Client talks to a running inferd daemon.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient builds a client for the given server base URL. Streaming
// calls run without a client timeout; deadlines come from contexts.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 0},
	}
}

func (c *Client) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.BaseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func (c *Client) post(ctx context.Context, path string, payload, dst any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.BaseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if dst == nil {
		_, err = io.Copy(io.Discard, resp.Body)
		return err
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// decodeError turns the daemon's JSON error payload into a plain error.
func decodeError(resp *http.Response) error {
	var er types.ErrorResponse
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(b, &er); err == nil && er.Error != "" {
		return fmt.Errorf("%s (HTTP %d)", er.Error, resp.StatusCode)
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

// Health fetches the daemon's residency snapshot.
func (c *Client) Health(ctx context.Context) (types.HealthResponse, error) {
	var out types.HealthResponse
	err := c.get(ctx, "/health", &out)
	return out, err
}

// Models lists known models; showAll includes undownloaded catalog
// entries.
func (c *Client) Models(ctx context.Context, showAll bool) ([]types.Model, error) {
	path := "/models"
	if showAll {
		path += "?show_all=true"
	}
	var out types.ModelsResponse
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// Stats fetches the most recent telemetry snapshot.
func (c *Client) Stats(ctx context.Context) (types.StatsResponse, error) {
	var out types.StatsResponse
	err := c.get(ctx, "/stats", &out)
	return out, err
}

// Load asks the daemon to load a model, blocking until it is ready.
func (c *Client) Load(ctx context.Context, req types.LoadRequest) error {
	return c.post(ctx, "/load", req, nil)
}

// Unload removes one named instance, or every instance when name is
// empty.
func (c *Client) Unload(ctx context.Context, name string) error {
	return c.post(ctx, "/unload", types.UnloadRequest{ModelName: name}, nil)
}

// chatRequest is the minimal OpenAI-shaped chat payload the CLI sends.
type chatRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream,omitempty"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Chat sends one user prompt and writes the assistant's reply to out.
// With stream set, tokens are written as they arrive.
func (c *Client) Chat(ctx context.Context, model, prompt string, stream bool, out io.Writer) error {
	payload := chatRequest{
		Model:    model,
		Stream:   stream,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.BaseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	if !stream {
		var cr chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
			return err
		}
		for _, ch := range cr.Choices {
			fmt.Fprintln(out, ch.Message.Content)
		}
		return nil
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(line[len("data:"):])
		if data == "[DONE]" {
			break
		}
		var cr chatResponse
		if err := json.Unmarshal([]byte(data), &cr); err != nil {
			continue
		}
		for _, ch := range cr.Choices {
			fmt.Fprint(out, ch.Delta.Content)
		}
	}
	fmt.Fprintln(out)
	return sc.Err()
}

// WaitHealthy polls /healthz until the daemon answers or the deadline
// passes. Handy right after starting the daemon.
func (c *Client) WaitHealthy(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/healthz", nil)
		if err != nil {
			return err
		}
		resp, err := c.HTTP.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("daemon at %s not healthy after %s", c.BaseURL, timeout)
		}
		time.Sleep(100 * time.Millisecond)
	}
}
