package relay

import (
	"sync"

	"github.com/rudransh-shrivastava/chat-it/internal/protocol"
	"github.com/rudransh-shrivastava/chat-it/internal/transport"
)

type SessionState int

const (
	StateConnecting SessionState = iota
	StateAuthenticating
	StateActive
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateActive:
		return "ACTIVE"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Session is one client connection. Exactly one goroutine drives its inbound
// loop; everything else reaches it only to send outbound frames (serialized
// by the peer's write mutex), read its identity, or resolve a pending file
// offer.
type Session struct {
	peer       *transport.Peer
	name       string
	remoteAddr string

	mu      sync.Mutex
	state   SessionState
	busy    int
	answers map[string]chan bool
}

func newSession(peer *transport.Peer) *Session {
	return &Session{
		peer:       peer,
		remoteAddr: peer.RemoteAddr(),
		state:      StateConnecting,
		answers:    make(map[string]chan bool),
	}
}

// Name is set once during authentication, before the session is published
// through the registry, and never changes afterwards.
func (s *Session) Name() string {
	return s.name
}

func (s *Session) RemoteAddr() string {
	return s.remoteAddr
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// beginWork marks the session as a party to an in-flight transfer. Shutdown
// leaves such sessions open until the transfer reaches a terminal state. A
// session can be party to several overlapping transfers, so this is a count.
func (s *Session) beginWork() {
	s.mu.Lock()
	s.busy++
	s.mu.Unlock()
}

func (s *Session) endWork() {
	s.mu.Lock()
	s.busy--
	s.mu.Unlock()
}

func (s *Session) isBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy > 0
}

// Send delivers one frame to this session's client. A failure means the
// client is gone, not that the registry is stale.
func (s *Session) Send(msg protocol.Message) error {
	return s.peer.Send(msg)
}

func (s *Session) Close() error {
	return s.peer.Close()
}

// armAnswer registers a pending file offer for this session. The returned
// channel resolves when the session's own router loop sees the matching
// accept or reject frame.
func (s *Session) armAnswer(transferID string) <-chan bool {
	ch := make(chan bool, 1)
	s.mu.Lock()
	s.answers[transferID] = ch
	s.mu.Unlock()
	return ch
}

func (s *Session) disarmAnswer(transferID string) {
	s.mu.Lock()
	delete(s.answers, transferID)
	s.mu.Unlock()
}

// resolveAnswer delivers the recipient's accept/reject decision. It reports
// false when no offer with that id is pending (already timed out, or never
// existed).
func (s *Session) resolveAnswer(transferID string, accepted bool) bool {
	s.mu.Lock()
	ch, ok := s.answers[transferID]
	if ok {
		delete(s.answers, transferID)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	ch <- accepted
	return true
}
