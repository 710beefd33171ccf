package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tsambor/gocanfd/pkg/can"
)

// Client talks to a gateway Server.
type Client struct {
	http.Client
	logger  *slog.Logger
	baseURL string
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		Client:  http.Client{},
		logger:  logger.With("service", "gateway client"),
		baseURL: baseURL,
	}
}

// do performs one request and decodes the JSON response, turning gateway
// error payloads back into errors.
func (c *Client) do(method, path string, body io.Reader, out any) error {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		c.logger.Error("request failed", "path", path, "error", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var gwErr ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&gwErr); err != nil {
			return fmt.Errorf("gateway: status %d", resp.StatusCode)
		}
		return fmt.Errorf("gateway: status %d: %s", resp.StatusCode, gwErr.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Status fetches the device counters.
func (c *Client) Status() (StatusResponse, error) {
	var status StatusResponse
	err := c.do(http.MethodGet, "/v1/status", nil, &status)
	return status, err
}

// Submit queues one frame for transmission.
func (c *Client) Submit(frame can.Frame) error {
	body, err := json.Marshal(encodeFrame(frame))
	if err != nil {
		return err
	}
	return c.do(http.MethodPost, "/v1/frames", bytes.NewReader(body), nil)
}

// Frames drains the server-side receive buffer.
func (c *Client) Frames() ([]can.Frame, error) {
	var resp FramesResponse
	if err := c.do(http.MethodGet, "/v1/frames", nil, &resp); err != nil {
		return nil, err
	}
	frames := make([]can.Frame, 0, len(resp.Frames))
	for _, in := range resp.Frames {
		frame, err := decodeFrame(in)
		if err != nil {
			return frames, err
		}
		frame.Timestamp = in.Timestamp
		frames = append(frames, frame)
	}
	return frames, nil
}

// Service asks the server to run one interrupt service pass.
func (c *Client) Service() error {
	return c.do(http.MethodPost, "/v1/service", nil, nil)
}
