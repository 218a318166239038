package stream

import (
	"context"
	"errors"
	"sync"
)

// ErrManagerClosed is returned for sessions arriving after Shutdown.
var ErrManagerClosed = errors.New("stream: manager is shut down")

// Manager tracks live sessions and their connections so shutdown can
// unblock and wait for in-flight frames.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	conns    map[string]Conn
	closed   bool
	wg       sync.WaitGroup
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		conns:    make(map[string]Conn),
	}
}

// Run registers the session, drives it to completion and unregisters it.
// Cancelling ctx closes the connection, which unblocks the session's read
// loop.
func (m *Manager) Run(ctx context.Context, session *Session, conn Conn) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close()
		return ErrManagerClosed
	}
	m.sessions[session.ID()] = session
	m.conns[session.ID()] = conn
	m.wg.Add(1)
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	defer func() {
		close(done)
		m.mu.Lock()
		delete(m.sessions, session.ID())
		delete(m.conns, session.ID())
		m.mu.Unlock()
		m.wg.Done()
	}()

	return session.Run(ctx, conn)
}

func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every live connection and rejects new sessions. Blocked
// reads return, so a Wait that follows cannot hang on idle clients.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	conns := make([]Conn, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

// Wait blocks until every registered session has finished. Call Shutdown
// first.
func (m *Manager) Wait() {
	m.wg.Wait()
}
