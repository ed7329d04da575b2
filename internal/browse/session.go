package browse

import "sync"

// Session keys remembered across listing requests so deeper levels can
// render ancestor breadcrumb segments not encoded in the current path.
const (
	sessionKeyProject    = "omero_project"
	sessionKeyDataset    = "omero_dataset"
	sessionKeyTag        = "omero_tag"
	sessionKeySearchText = "omero_search_text"
)

// SessionStore holds per-user-session navigation state. It is the only
// mutable state the resolver touches, and it is injected, never global.
// Implementations are scoped per logical user session; sessions never share
// values.
type SessionStore interface {
	Get(sessionID, key string) string
	Set(sessionID, key, value string)
}

// MemorySessionStore is the in-process SessionStore.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]map[string]string
}

// NewMemorySessionStore creates an empty session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]map[string]string)}
}

// Get implements SessionStore. Unknown sessions and keys return "".
func (s *MemorySessionStore) Get(sessionID, key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sessionID][key]
}

// Set implements SessionStore.
func (s *MemorySessionStore) Set(sessionID, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = make(map[string]string)
		s.sessions[sessionID] = sess
	}
	sess[key] = value
}
