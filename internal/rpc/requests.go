package rpc

import "time"

// Operation names carried in Frame.Op for FrameRequest frames.
const (
	OpHas         = "has"
	OpGet         = "get"
	OpWants       = "wants"
	OpHashes      = "hashes"
	OpHistory     = "history"
	OpMetrics     = "metrics"
	OpPut         = "put"
	OpPuts        = "puts"
	OpUploadNew   = "upload_new"
	OpUploadWrite = "upload_write"
	OpUploadSave  = "upload_save"
)

// hexDigest is the wire form of a digest.SHA256: lowercase hex, as
// produced by digest.SHA256.String.
type hexDigest = string

type hasRequest struct {
	Digest hexDigest `json:"digest"`
}

type hasResult struct {
	Has bool `json:"has"`
}

type getRequest struct {
	Digest hexDigest `json:"digest"`
}

// getChunk is one FrameData payload of a get stream: raw bytes, base64
// encoded by Go's encoding/json []byte marshaling.
type getChunk struct {
	Bytes []byte `json:"bytes"`
}

type wantsRequest struct {
	Digests []hexDigest `json:"digests"`
}

type wantsResult struct {
	Want []hexDigest `json:"want"`
}

type hashesRequest struct {
	Offset uint64 `json:"offset"`
}

type hashesEntry struct {
	Offset uint64    `json:"offset"`
	Digest hexDigest `json:"digest"`
	Size   uint64    `json:"size"`
}

type historyRequest struct {
	Tick time.Time  `json:"tick"`
	Tock *time.Time `json:"tock,omitempty"`
}

type historyEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Digest    hexDigest `json:"digest"`
	Size      uint64    `json:"size"`
}

type metricsResult struct {
	Counters map[string]uint64 `json:"counters"`
}

type putRequest struct {
	Bytes []byte `json:"bytes"`
}

type putResult struct {
	Size   uint64    `json:"size"`
	Digest hexDigest `json:"digest"`
}

type putsRequest struct {
	Files [][]byte `json:"files"`
}

type putsResult struct {
	Sizes   []uint64    `json:"sizes"`
	Digests []hexDigest `json:"digests"`
}

type uploadNewResult struct {
	HandleID string `json:"handle_id"`
}

type uploadWriteRequest struct {
	HandleID string `json:"handle_id"`
	Bytes    []byte `json:"bytes"`
}

type uploadSaveRequest struct {
	HandleID string `json:"handle_id"`
}

type uploadSaveResult struct {
	Size   uint64    `json:"size"`
	Digest hexDigest `json:"digest"`
}
