package relay

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/rudransh-shrivastava/chat-it/internal/protocol"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,20}$`)

// authenticate runs the identity handshake: the first frame must be a Join
// carrying a valid, unclaimed name. On failure the client gets a single
// error and the connection is dropped without ever entering the registry.
func (s *Server) authenticate(sess *Session) bool {
	sess.setState(StateAuthenticating)

	msg, err := sess.peer.Receive()
	if err != nil {
		return false
	}

	join, ok := msg.(*protocol.Join)
	if !ok {
		_ = sess.Send(&protocol.Error{
			Code:    protocol.ErrProtocol,
			Message: "ERROR: Expected a join request",
		})
		return false
	}

	name := strings.TrimSpace(join.Name)
	if !validName.MatchString(name) {
		_ = sess.Send(&protocol.Error{
			Code:    protocol.ErrAuth,
			Message: "ERROR: Invalid username. Use only alphanumeric, _, and -",
		})
		s.recordEvent("auth", "Rejected invalid username from "+sess.RemoteAddr())
		return false
	}

	sess.name = name
	if !s.registry.TryRegister(name, sess) {
		_ = sess.Send(&protocol.Error{
			Code:    protocol.ErrAuth,
			Message: "ERROR: Username '" + name + "' is already taken",
		})
		s.recordEvent("auth", "Duplicate username attempt: "+name)
		return false
	}
	sess.setState(StateActive)

	_ = sess.Send(&protocol.Welcome{
		Text: "Welcome " + name + "! Type /list, /quit, @user msg, /sendfile user file",
	})
	s.broadcast(&protocol.Notice{Text: name + " joined the chat!"}, name)

	s.logger.Info("User authenticated", "user", name, "addr", sess.RemoteAddr())
	s.recordEvent("auth", "User authenticated: "+name)
	return true
}

// serveSession is the per-connection command loop. Commands are processed
// strictly in arrival order; a file transfer blocks this loop until it
// reaches a terminal state.
func (s *Server) serveSession(ctx context.Context, sess *Session) {
	name := sess.Name()

	defer func() {
		sess.setState(StateClosing)
		s.broadcast(&protocol.Notice{Text: name + " left the chat"}, name)
		s.registry.Deregister(name)
		sess.setState(StateClosed)
		s.recordEvent("leave", "Connection closed for "+name)
	}()

	var pending protocol.Message
	for {
		if ctx.Err() != nil {
			return
		}

		msg := pending
		pending = nil
		if msg == nil {
			var err error
			msg, err = sess.peer.Receive()
			if err != nil {
				return
			}
		}

		switch m := msg.(type) {
		case *protocol.Line:
			leftover, quit := s.routeLine(sess, m.Text)
			if quit {
				return
			}
			pending = leftover

		case *protocol.FileAccept:
			if !sess.resolveAnswer(m.TransferID, true) {
				_ = sess.Send(&protocol.Error{
					Code:    protocol.ErrTransfer,
					Message: "ERROR: No pending file offer",
				})
			}

		case *protocol.FileReject:
			if !sess.resolveAnswer(m.TransferID, false) {
				_ = sess.Send(&protocol.Error{
					Code:    protocol.ErrTransfer,
					Message: "ERROR: No pending file offer",
				})
			}

		default:
			_ = sess.Send(&protocol.Error{
				Code:    protocol.ErrProtocol,
				Message: "ERROR: Unexpected " + msg.Type().String() + " frame",
			})
		}
	}
}

// routeLine classifies one inbound line. The returned message, if any, is an
// unconsumed frame a failed transfer handed back; the caller processes it
// next. quit reports that the session asked to leave.
func (s *Server) routeLine(sess *Session, text string) (leftover protocol.Message, quit bool) {
	text = strings.TrimSpace(text)
	name := sess.Name()

	switch {
	case text == "":
		return nil, false

	case text == "/list":
		_ = sess.Send(&protocol.UserList{Users: s.registry.Identities()})
		return nil, false

	case strings.HasPrefix(text, "@"):
		s.handlePrivate(sess, text)
		return nil, false

	case strings.HasPrefix(text, "/sendfile"):
		return s.handleSendfile(sess, text), false

	case text == "/quit":
		_ = sess.Send(&protocol.Notice{Text: "Goodbye " + name + "!"})
		return nil, true

	default:
		s.recordEvent("broadcast", name+": "+text)
		s.broadcast(&protocol.Chat{From: name, Text: text}, name)
		return nil, false
	}
}

func (s *Server) handlePrivate(sess *Session, text string) {
	target, content, _ := strings.Cut(strings.TrimPrefix(text, "@"), " ")
	content = strings.TrimSpace(content)
	if target == "" || content == "" {
		_ = sess.Send(&protocol.Error{
			Code:    protocol.ErrProtocol,
			Message: "ERROR: Invalid format. Use: @username message",
		})
		return
	}

	recipient, ok := s.registry.Lookup(target)
	if !ok {
		_ = sess.Send(&protocol.Error{
			Code:    protocol.ErrRouting,
			Message: "ERROR: User '" + target + "' not found or offline",
		})
		s.recordEvent("private", "Failed private message to invalid user: "+target)
		return
	}

	msg := &protocol.Private{From: sess.Name(), To: target, Text: content}
	if err := recipient.Send(msg); err != nil {
		// Recipient vanished between lookup and send.
		_ = sess.Send(&protocol.Error{
			Code:    protocol.ErrRouting,
			Message: "ERROR: User '" + target + "' not found or offline",
		})
		return
	}
	_ = sess.Send(msg)
	s.recordEvent("private", "Private message: "+sess.Name()+" -> "+target)
}

func (s *Server) handleSendfile(sess *Session, text string) protocol.Message {
	parts := strings.Fields(text)
	if len(parts) < 4 {
		_ = sess.Send(&protocol.Error{
			Code:    protocol.ErrProtocol,
			Message: "Usage: /sendfile <username> <filename> <file_size>",
		})
		return nil
	}

	size, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		_ = sess.Send(&protocol.Error{
			Code:    protocol.ErrProtocol,
			Message: "Usage: /sendfile <username> <filename> <file_size>",
		})
		return nil
	}
	if size < 1 || size > s.config.MaxFileSize {
		_ = sess.Send(&protocol.Error{
			Code:    protocol.ErrTransfer,
			Message: "ERROR: Invalid file size (max 10MB)",
		})
		return nil
	}

	return s.runTransfer(sess, parts[1], parts[2], size)
}

// broadcast delivers msg to every active session except the named sender.
// Delivery is best-effort per peer; one slow or dead client never aborts
// the rest.
func (s *Server) broadcast(msg protocol.Message, exclude string) {
	for _, sess := range s.registry.snapshot(exclude) {
		if err := sess.Send(msg); err != nil {
			s.logger.Debug("Broadcast delivery failed", "user", sess.Name(), "error", err)
		}
	}
}
