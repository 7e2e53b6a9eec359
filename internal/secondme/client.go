// Package secondme talks to the SecondMe agent-completion service. Both
// endpoints stream their answer as server-sent events; the client
// accumulates the token deltas into one string and leaves interpreting
// that string to the caller.
package secondme

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrEmptyResponse means the stream closed without yielding any text.
var ErrEmptyResponse = errors.New("secondme: empty response")

// TransportError is a failed HTTP exchange with the completion service.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("secondme: %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("secondme: %s: unexpected status %d", e.Endpoint, e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		// Generous timeout: the agent streams slowly. Shutdown waits for
		// in-flight calls instead of cancelling them.
		HTTP: &http.Client{Timeout: 3 * time.Minute},
	}
}

// ActStream asks the user's agent to act on a prompt and returns the
// accumulated answer. Used for vote suggestions.
func (c *Client) ActStream(accessToken, message, actionControl string) (string, error) {
	return c.stream("/api/secondme/act/stream", accessToken, message, actionControl)
}

// ChatStream is the conversational endpoint. Used for generating posts.
func (c *Client) ChatStream(accessToken, message, actionControl string) (string, error) {
	return c.stream("/api/secondme/chat/stream", accessToken, message, actionControl)
}

func (c *Client) stream(path, accessToken, message, actionControl string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"message":       message,
		"actionControl": actionControl,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	httpc := c.HTTP
	if httpc == nil {
		httpc = http.DefaultClient
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return "", &TransportError{Endpoint: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &TransportError{Endpoint: path, StatusCode: resp.StatusCode}
	}

	text, err := AccumulateSSE(resp.Body)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// sseEvent is the subset of the event payload we read. The service frames
// its stream OpenAI-style: choices[0].delta.content carries each token.
type sseEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// AccumulateSSE reads newline-separated event records and concatenates the
// text deltas of well-formed "data: " lines. Malformed lines (keepalives,
// "[DONE]" markers, partial JSON) are skipped, never fatal.
func AccumulateSSE(r io.Reader) (string, error) {
	var sb strings.Builder

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev sseEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			continue
		}
		if len(ev.Choices) > 0 {
			sb.WriteString(ev.Choices[0].Delta.Content)
		}
	}
	if err := sc.Err(); err != nil {
		return "", &TransportError{Endpoint: "stream", Err: err}
	}
	return sb.String(), nil
}
