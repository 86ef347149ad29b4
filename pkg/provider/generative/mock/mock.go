// Package mock provides a test double for the generative.Client interface.
//
// Example:
//
//	c := &mock.Client{Response: &genai.GenerateContentResponse{...}}
//	resp, err := c.Generate(ctx, req)
//	// inspect c.Requests
package mock

import (
	"context"
	"sync"

	"google.golang.org/genai"

	"github.com/MrWong99/baristagate/pkg/provider/generative"
)

// Client is a mock implementation of generative.Client.
type Client struct {
	mu sync.Mutex

	// Response is returned by Generate. May be nil.
	Response *genai.GenerateContentResponse

	// Err, if non-nil, is returned by Generate.
	Err error

	// ChatModel and VisionModel are returned by ModelID. Defaults apply when
	// empty.
	ChatModel   string
	VisionModel string

	// Requests records every Generate call in order.
	Requests []generative.Request
}

// Generate implements generative.Client.
func (c *Client) Generate(_ context.Context, req generative.Request) (*genai.GenerateContentResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Requests = append(c.Requests, req)
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Response, nil
}

// ModelID implements generative.Client.
func (c *Client) ModelID(m generative.Modality) string {
	if m == generative.ModalityVision {
		if c.VisionModel != "" {
			return c.VisionModel
		}
		return "mock-vision"
	}
	if c.ChatModel != "" {
		return c.ChatModel
	}
	return "mock-chat"
}

// CallCount returns the number of Generate calls so far.
func (c *Client) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Requests)
}
