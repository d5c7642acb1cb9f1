// Package notify pushes wake-up hints to an optional relay so mobile
// frontends learn about inbound traffic while the app is backgrounded.
// Everything here is best effort: a dead relay never blocks or fails a
// message path.
package notify

import (
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"

	"zerozero/pkg/logger"
)

const requestTimeout = 5 * time.Second

// Client talks to one relay endpoint. The zero-value base URL disables
// the client entirely.
type Client struct {
	base  string
	token string
	http  *fasthttp.Client
}

// New builds a client for the relay at base. token is attached as a
// bearer credential when non-empty.
func New(base, token string) *Client {
	return &Client{
		base:  base,
		token: token,
		http: &fasthttp.Client{
			ReadTimeout:  requestTimeout,
			WriteTimeout: requestTimeout,
		},
	}
}

// Enabled reports whether a relay is configured.
func (c *Client) Enabled() bool { return c != nil && c.base != "" }

func (c *Client) post(path string, payload interface{}) {
	if !c.Enabled() {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	go func() {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		req.SetRequestURI(c.base + path)
		req.Header.SetMethod(fasthttp.MethodPost)
		req.Header.SetContentType("application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.SetBody(body)

		if err := c.http.DoTimeout(req, resp, requestTimeout); err != nil {
			logger.Warn("notify_relay_unreachable", "path", path, "error", err)
			return
		}
		if code := resp.StatusCode(); code >= 300 {
			logger.Warn("notify_relay_rejected", "path", path, "status", code)
		}
	}()
}

// Register announces this node's number to the relay.
func (c *Client) Register(number string) {
	c.post("/register", map[string]string{"number": number})
}

// Unregister withdraws the registration, used on number renewal.
func (c *Client) Unregister(number string) {
	c.post("/unregister", map[string]string{"number": number})
}

// Notify hints that number has pending traffic. No message content ever
// leaves the node; the relay learns only that something arrived.
func (c *Client) Notify(number string) {
	c.post("/notify", map[string]string{"number": number})
}
