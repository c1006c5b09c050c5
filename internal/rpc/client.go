package rpc

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Client is a minimal synchronous WebSocket client used by axonctl and
// axon-seed. It is not safe for concurrent use by multiple goroutines
// issuing overlapping requests; callers serialize calls themselves
// (axonctl is a one-request-per-invocation CLI, and axon-seed opens one
// Client per worker goroutine).
type Client struct {
	conn *websocket.Conn
	seq  atomic.Uint64
}

// Dial connects to addr (e.g. "ws://127.0.0.1:4470") and authenticates
// with token via the Authorization header.
func Dial(addr, token string) (*Client, error) {
	header := make(map[string][]string)
	header["Authorization"] = []string{token}

	conn, _, err := websocket.DefaultDialer.Dial(addr, header)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}

	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("rpc: close: %w", err)
	}

	return nil
}

// call sends a single request frame and returns every frame the server
// sends back until a FrameEnd, FrameResult, or FrameError terminates
// the exchange.
func (c *Client) call(op string, payload any) ([]Frame, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}

	seq := c.seq.Add(1)

	if err := c.conn.WriteJSON(Frame{Type: FrameRequest, Seq: seq, Op: op, Payload: raw}); err != nil {
		return nil, fmt.Errorf("rpc: write request %q: %w", op, err)
	}

	var frames []Frame

	for {
		var frame Frame

		if err := c.conn.ReadJSON(&frame); err != nil {
			return nil, fmt.Errorf("rpc: read response for %q: %w", op, err)
		}

		if frame.Seq != seq {
			continue
		}

		switch frame.Type {
		case FrameError:
			var payload errorPayload
			_ = json.Unmarshal(frame.Payload, &payload)

			return nil, fmt.Errorf("rpc: %s: %s", op, payload.Message)
		case FrameResult, FrameEnd:
			frames = append(frames, frame)

			return frames, nil
		case FrameData:
			frames = append(frames, frame)
		case FrameRequest:
			return nil, fmt.Errorf("rpc: unexpected request frame in response to %q", op)
		}
	}
}

// Has calls OpHas and reports whether the digest is stored.
func (c *Client) Has(hexDigest string) (bool, error) {
	frames, err := c.call(OpHas, hasRequest{Digest: hexDigest})
	if err != nil {
		return false, err
	}

	var out hasResult
	if err := json.Unmarshal(frames[len(frames)-1].Payload, &out); err != nil {
		return false, fmt.Errorf("rpc: decode has result: %w", err)
	}

	return out.Has, nil
}

// Get calls OpGet and returns the concatenated blob bytes.
func (c *Client) Get(hexDigest string) ([]byte, error) {
	frames, err := c.call(OpGet, getRequest{Digest: hexDigest})
	if err != nil {
		return nil, err
	}

	var out []byte

	for _, frame := range frames {
		if frame.Type != FrameData {
			continue
		}

		var chunk getChunk
		if err := json.Unmarshal(frame.Payload, &chunk); err != nil {
			return nil, fmt.Errorf("rpc: decode get chunk: %w", err)
		}

		out = append(out, chunk.Bytes...)
	}

	return out, nil
}

// Put calls OpPut and returns the stored size and hex digest.
func (c *Client) Put(data []byte) (uint64, string, error) {
	frames, err := c.call(OpPut, putRequest{Bytes: data})
	if err != nil {
		return 0, "", err
	}

	var out putResult
	if err := json.Unmarshal(frames[len(frames)-1].Payload, &out); err != nil {
		return 0, "", fmt.Errorf("rpc: decode put result: %w", err)
	}

	return out.Size, out.Digest, nil
}

// Metrics calls OpMetrics and returns the current persistent counters.
func (c *Client) Metrics() (map[string]uint64, error) {
	frames, err := c.call(OpMetrics, struct{}{})
	if err != nil {
		return nil, err
	}

	var out metricsResult
	if err := json.Unmarshal(frames[len(frames)-1].Payload, &out); err != nil {
		return nil, fmt.Errorf("rpc: decode metrics result: %w", err)
	}

	return out.Counters, nil
}
