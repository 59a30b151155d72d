package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flashbots/lay/protocol"
)

// DefaultTimeout bounds every relay request when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Transport is the set of relay operations the poller needs.
type Transport interface {
	SubmitPost(ctx context.Context, post *protocol.Signed[protocol.Post]) error
	SubmitProfile(ctx context.Context, profile *protocol.Signed[protocol.Profile]) error
	QueryPosts(ctx context.Context, req *protocol.Signed[protocol.PostRequest]) ([]*protocol.Signed[protocol.Post], error)
	QueryProfile(ctx context.Context, req *protocol.Signed[protocol.ProfileRequest]) (*protocol.Signed[protocol.Profile], error)
}

// RelayClient talks to a relay over HTTP. Failed requests with a relay error
// body return *protocol.Error.
type RelayClient struct {
	baseURL    string
	httpClient *http.Client

	// PostQueries sends queries as POST .../query instead of GET with a body.
	PostQueries bool
}

// NewRelayClient creates a client for the relay at baseURL.
func NewRelayClient(baseURL string, timeout time.Duration) *RelayClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RelayClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *RelayClient) SubmitPost(ctx context.Context, post *protocol.Signed[protocol.Post]) error {
	_, err := exchange[protocol.Signed[protocol.Post], struct{}](ctx, c, http.MethodPost, "/text", post)
	return err
}

func (c *RelayClient) SubmitProfile(ctx context.Context, profile *protocol.Signed[protocol.Profile]) error {
	_, err := exchange[protocol.Signed[protocol.Profile], struct{}](ctx, c, http.MethodPost, "/profile", profile)
	return err
}

func (c *RelayClient) QueryPosts(ctx context.Context, req *protocol.Signed[protocol.PostRequest]) ([]*protocol.Signed[protocol.Post], error) {
	method, path := c.queryRoute("/text")
	posts, err := exchange[protocol.Signed[protocol.PostRequest], []*protocol.Signed[protocol.Post]](ctx, c, method, path, req)
	if err != nil {
		return nil, err
	}
	return *posts, nil
}

func (c *RelayClient) QueryProfile(ctx context.Context, req *protocol.Signed[protocol.ProfileRequest]) (*protocol.Signed[protocol.Profile], error) {
	method, path := c.queryRoute("/profile")
	return exchange[protocol.Signed[protocol.ProfileRequest], protocol.Signed[protocol.Profile]](ctx, c, method, path, req)
}

func (c *RelayClient) queryRoute(path string) (string, string) {
	if c.PostQueries {
		return http.MethodPost, path + "/query"
	}
	return http.MethodGet, path
}

// exchange sends msg and decodes a successful response as Resp.
func exchange[Req, Resp any](ctx context.Context, c *RelayClient, method, path string, msg *Req) (*Resp, error) {
	data, err := protocol.SerializeMessage(msg)
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, method, path, data)
	if err != nil {
		return nil, err
	}
	resp, err := protocol.UnmarshalMessage[Resp](body)
	if err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", path, err)
	}
	return resp, nil
}

// do returns the body of a 200 response. Other statuses become a
// *protocol.Error when the body is one.
func (c *RelayClient) do(ctx context.Context, method, path string, data []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if relayErr, err := protocol.UnmarshalMessage[protocol.Error](respBody); err == nil && relayErr.Status != "" {
			return nil, relayErr
		}
		return nil, fmt.Errorf("%s %s failed (%d): %s", method, path, resp.StatusCode, string(respBody))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", path, err)
	}
	return body, nil
}
