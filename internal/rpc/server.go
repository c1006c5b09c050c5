package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/axonhq/axon/internal/axon"
	"github.com/axonhq/axon/internal/capability"
	"github.com/axonhq/axon/pkg/digest"
)

var errTokenHeaderMissing = errors.New("rpc: missing Authorization header")

// Server upgrades HTTP requests to WebSocket connections and dispatches
// each connection's request frames onto a [axon.Service].
type Server struct {
	svc    *axon.Service
	grants capability.Table
	log    *zap.Logger

	upgrader websocket.Upgrader
}

// NewServer builds a Server. A nil logger defaults to a no-op logger.
func NewServer(svc *axon.Service, grants capability.Table, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	return &Server{
		svc:    svc,
		grants: grants,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
		},
	}
}

// ServeHTTP upgrades the request and runs the connection's frame loop
// until the socket closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token == "" {
		http.Error(w, errTokenHeaderMissing.Error(), http.StatusUnauthorized)

		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))

		return
	}

	grants := s.grants.Lookup(token)

	c := &connection{
		conn:     conn,
		svc:      s.svc,
		grants:   grants,
		log:      s.log,
		sessions: newSessionRegistry(),
	}

	c.run(r.Context())
}

// connection owns one WebSocket's request/response loop and its
// in-progress upload sessions.
type connection struct {
	conn     *websocket.Conn
	svc      *axon.Service
	grants   capability.Set
	log      *zap.Logger
	sessions *sessionRegistry
}

func (c *connection) run(ctx context.Context) {
	defer func() {
		c.sessions.closeAll()
		_ = c.conn.Close()
	}()

	for {
		var req Frame

		if err := c.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("connection closed unexpectedly", zap.Error(err))
			}

			return
		}

		if req.Type != FrameRequest {
			c.sendError(req.Seq, fmt.Errorf("rpc: expected a request frame, got %q", req.Type))

			continue
		}

		c.dispatch(ctx, req)
	}
}

func (c *connection) dispatch(ctx context.Context, req Frame) {
	switch req.Op {
	case OpHas:
		c.handleHas(req)
	case OpGet:
		c.handleGet(req)
	case OpWants:
		c.handleWants(req)
	case OpHashes:
		c.handleHashes(req)
	case OpHistory:
		c.handleHistory(req)
	case OpMetrics:
		c.handleMetrics(req)
	case OpPut:
		c.handlePut(ctx, req)
	case OpPuts:
		c.handlePuts(ctx, req)
	case OpUploadNew:
		c.handleUploadNew(req)
	case OpUploadWrite:
		c.handleUploadWrite(req)
	case OpUploadSave:
		c.handleUploadSave(ctx, req)
	default:
		c.sendError(req.Seq, fmt.Errorf("rpc: unknown op %q", req.Op))
	}
}

func (c *connection) handleHas(req Frame) {
	var in hasRequest
	if !c.decode(req, &in) {
		return
	}

	d, err := digest.Parse(in.Digest)
	if err != nil {
		c.sendError(req.Seq, err)

		return
	}

	has, err := c.svc.Has(c.grants, d)
	if err != nil {
		c.sendError(req.Seq, err)

		return
	}

	c.sendResult(req.Seq, hasResult{Has: has})
}

func (c *connection) handleGet(req Frame) {
	var in getRequest
	if !c.decode(req, &in) {
		return
	}

	d, err := digest.Parse(in.Digest)
	if err != nil {
		c.sendError(req.Seq, err)

		return
	}

	for chunk, err := range c.svc.Get(c.grants, d) {
		if err != nil {
			c.sendError(req.Seq, err)

			return
		}

		c.sendData(req.Seq, getChunk{Bytes: chunk})
	}

	c.sendEnd(req.Seq)
}

func (c *connection) handleWants(req Frame) {
	var in wantsRequest
	if !c.decode(req, &in) {
		return
	}

	digests := make([]digest.SHA256, len(in.Digests))

	for i, hd := range in.Digests {
		d, err := digest.Parse(hd)
		if err != nil {
			c.sendError(req.Seq, err)

			return
		}

		digests[i] = d
	}

	want, err := c.svc.Wants(c.grants, digests)
	if err != nil {
		c.sendError(req.Seq, err)

		return
	}

	out := make([]hexDigest, len(want))
	for i, d := range want {
		out[i] = d.String()
	}

	c.sendResult(req.Seq, wantsResult{Want: out})
}

func (c *connection) handleHashes(req Frame) {
	var in hashesRequest
	if !c.decode(req, &in) {
		return
	}

	for entry, err := range c.svc.Hashes(c.grants, in.Offset) {
		if err != nil {
			c.sendError(req.Seq, err)

			return
		}

		c.sendData(req.Seq, hashesEntry{Offset: entry.Offset, Digest: entry.Digest.String(), Size: entry.Size})
	}

	c.sendEnd(req.Seq)
}

func (c *connection) handleHistory(req Frame) {
	var in historyRequest
	if !c.decode(req, &in) {
		return
	}

	tock := time.Time{}
	if in.Tock != nil {
		tock = *in.Tock
	}

	for entry, err := range c.svc.History(c.grants, in.Tick, tock) {
		if err != nil {
			c.sendError(req.Seq, err)

			return
		}

		c.sendData(req.Seq, historyEntry{Timestamp: entry.Timestamp, Digest: entry.Digest.String(), Size: entry.Size})
	}

	c.sendEnd(req.Seq)
}

func (c *connection) handleMetrics(req Frame) {
	counters, err := c.svc.Metrics(c.grants)
	if err != nil {
		c.sendError(req.Seq, err)

		return
	}

	c.sendResult(req.Seq, metricsResult{Counters: counters})
}

func (c *connection) handlePut(ctx context.Context, req Frame) {
	var in putRequest
	if !c.decode(req, &in) {
		return
	}

	size, d, err := c.svc.Put(ctx, c.grants, in.Bytes)
	if err != nil {
		c.sendError(req.Seq, err)

		return
	}

	c.sendResult(req.Seq, putResult{Size: size, Digest: d.String()})
}

func (c *connection) handlePuts(ctx context.Context, req Frame) {
	var in putsRequest
	if !c.decode(req, &in) {
		return
	}

	sizes, digests, err := c.svc.Puts(ctx, c.grants, in.Files)
	if err != nil {
		c.sendError(req.Seq, err)

		return
	}

	out := make([]hexDigest, len(digests))
	for i, d := range digests {
		out[i] = d.String()
	}

	c.sendResult(req.Seq, putsResult{Sizes: sizes, Digests: out})
}

func (c *connection) handleUploadNew(req Frame) {
	sess, err := c.svc.NewUpload(c.grants)
	if err != nil {
		c.sendError(req.Seq, err)

		return
	}

	handleID := c.sessions.create(sess)

	c.sendResult(req.Seq, uploadNewResult{HandleID: handleID})
}

func (c *connection) handleUploadWrite(req Frame) {
	var in uploadWriteRequest
	if !c.decode(req, &in) {
		return
	}

	sess, err := c.sessions.get(in.HandleID)
	if err != nil {
		c.sendError(req.Seq, err)

		return
	}

	if _, err := sess.Write(in.Bytes); err != nil {
		c.sendError(req.Seq, err)

		return
	}

	c.sendResult(req.Seq, struct{}{})
}

func (c *connection) handleUploadSave(ctx context.Context, req Frame) {
	var in uploadSaveRequest
	if !c.decode(req, &in) {
		return
	}

	sess, err := c.sessions.get(in.HandleID)
	if err != nil {
		c.sendError(req.Seq, err)

		return
	}

	c.sessions.remove(in.HandleID)

	size, d, err := c.svc.SaveUpload(ctx, c.grants, sess)
	if err != nil {
		c.sendError(req.Seq, err)

		return
	}

	c.sendResult(req.Seq, uploadSaveResult{Size: size, Digest: d.String()})
}

func (c *connection) decode(req Frame, v any) bool {
	if len(req.Payload) == 0 {
		c.sendError(req.Seq, fmt.Errorf("rpc: op %q requires a payload", req.Op))

		return false
	}

	if err := json.Unmarshal(req.Payload, v); err != nil {
		c.sendError(req.Seq, fmt.Errorf("rpc: decode payload for op %q: %w", req.Op, err))

		return false
	}

	return true
}

func (c *connection) sendResult(seq uint64, v any) {
	payload, err := encodePayload(v)
	if err != nil {
		c.sendError(seq, err)

		return
	}

	c.write(Frame{Type: FrameResult, Seq: seq, Payload: payload})
}

func (c *connection) sendData(seq uint64, v any) {
	payload, err := encodePayload(v)
	if err != nil {
		c.sendError(seq, err)

		return
	}

	c.write(Frame{Type: FrameData, Seq: seq, Payload: payload})
}

func (c *connection) sendEnd(seq uint64) {
	c.write(Frame{Type: FrameEnd, Seq: seq})
}

func (c *connection) sendError(seq uint64, err error) {
	payload, marshalErr := encodePayload(errorPayload{Message: err.Error()})
	if marshalErr != nil {
		c.log.Error("failed to marshal error payload", zap.Error(marshalErr))

		return
	}

	c.write(Frame{Type: FrameError, Seq: seq, Payload: payload})
}

func (c *connection) write(frame Frame) {
	if err := c.conn.WriteJSON(frame); err != nil {
		c.log.Debug("write frame failed", zap.Error(err))
	}
}
