package command

import "sync"

// Session is the thread a terminal is talking in. Commands may switch it.
type Session struct {
	mu         sync.RWMutex
	threadID   string
	resourceID string
}

func NewSession(threadID, resourceID string) *Session {
	return &Session{threadID: threadID, resourceID: resourceID}
}

func (s *Session) ThreadID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threadID
}

func (s *Session) ResourceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resourceID
}

func (s *Session) Switch(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threadID = threadID
}
