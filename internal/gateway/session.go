// Package gateway is the cloneable facade that wires the data models
// behind typed operation groups, carries per-connection session state,
// and builds the command dispatch table from per-module registrations.
package gateway

import "sync"

// Session holds per-connection state: close-after-reply, selected DB,
// authenticated user, client name. A shared handle is attached to each
// per-connection Gateway clone rather than carried via thread-locals.
type Session struct {
	mu                sync.RWMutex
	shouldClose       bool
	selectedDB        int
	authenticatedUser string
	isAuthenticated   bool
	clientName        string
}

// NewSession returns a session initialized to (false, 0, none, none).
func NewSession() *Session {
	return &Session{}
}

func (s *Session) MarkClose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shouldClose = true
}

func (s *Session) ShouldClose() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shouldClose
}

func (s *Session) SetSelectedDB(db int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedDB = db
}

func (s *Session) SelectedDB() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedDB
}

func (s *Session) SetAuthenticatedUser(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticatedUser = user
	s.isAuthenticated = true
}

// AuthenticatedUser returns the current user name. Before any successful
// AUTH this is "default", matching the source's WHOAMI behavior.
func (s *Session) AuthenticatedUser() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isAuthenticated {
		return "default"
	}
	return s.authenticatedUser
}

func (s *Session) SetClientName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientName = name
}

func (s *Session) ClientName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientName
}
