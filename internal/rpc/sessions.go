package rpc

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/axonhq/axon/internal/upload"
)

// sessionRegistry tracks the in-progress upload sessions for one
// connection, addressed by an opaque handle ID returned from
// OpUploadNew. This generalizes the original implementation's
// UpLoadShare (a per-call RPC share object bound to one upload): since
// this transport multiplexes many logical calls over a single
// connection rather than handing out a new RPC share per call, the
// handle ID plus a per-connection map plays the same role.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*upload.Session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*upload.Session)}
}

// create registers sess under a new handle ID and returns the ID.
func (r *sessionRegistry) create(sess *upload.Session) string {
	id := uuid.NewString()

	r.mu.Lock()
	r.sessions[id] = sess
	r.mu.Unlock()

	return id
}

// get looks up the session for handleID.
func (r *sessionRegistry) get(handleID string) (*upload.Session, error) {
	r.mu.Lock()
	sess, ok := r.sessions[handleID]
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("rpc: unknown upload handle %q", handleID)
	}

	return sess, nil
}

// remove drops handleID from the registry, used when a session is
// handed to SaveUpload.
func (r *sessionRegistry) remove(handleID string) {
	r.mu.Lock()
	delete(r.sessions, handleID)
	r.mu.Unlock()
}

// closeAll releases every outstanding session, called when a
// connection closes without saving its uploads.
func (r *sessionRegistry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, sess := range r.sessions {
		_ = sess.Close()
		delete(r.sessions, id)
	}
}
