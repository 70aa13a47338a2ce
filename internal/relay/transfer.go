package relay

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/rudransh-shrivastava/chat-it/internal/protocol"
)

type TransferState int

const (
	TransferOffered TransferState = iota
	TransferAccepted
	TransferRejected
	TransferStreaming
	TransferComplete
	TransferFailed
)

func (t TransferState) String() string {
	switch t {
	case TransferOffered:
		return "OFFERED"
	case TransferAccepted:
		return "ACCEPTED"
	case TransferRejected:
		return "REJECTED"
	case TransferStreaming:
		return "STREAMING"
	case TransferComplete:
		return "COMPLETE"
	case TransferFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Transfer is one single-use relay of a file between two sessions. The
// relay borrows both sessions for its duration; the sender's command loop
// stays blocked until the transfer reaches a terminal state.
type Transfer struct {
	ID         string
	Sender     *Session
	Recipient  *Session
	Filename   string
	Size       int64
	State      TransferState
	BytesMoved int64

	failReason string
}

func (t *Transfer) fail(reason string) {
	t.State = TransferFailed
	t.failReason = reason
}

// runTransfer drives the full offer/answer/stream state machine from the
// sender's router loop. The returned message, if any, is an unconsumed
// frame that interrupted the stream.
func (s *Server) runTransfer(sender *Session, recipientName, filename string, size int64) protocol.Message {
	recipient, ok := s.registry.Lookup(recipientName)
	if !ok {
		_ = sender.Send(&protocol.Error{
			Code:    protocol.ErrTransfer,
			Message: "ERROR: User '" + recipientName + "' is not online",
		})
		return nil
	}

	t := &Transfer{
		ID:        uuid.NewString(),
		Sender:    sender,
		Recipient: recipient,
		Filename:  filename,
		Size:      size,
		State:     TransferOffered,
	}

	// Both endpoints are borrowed for the transfer's duration so a graceful
	// shutdown closes neither until the transfer reaches a terminal state.
	sender.beginWork()
	recipient.beginWork()
	defer sender.endWork()
	defer recipient.endWork()

	s.logger.Info("File offer",
		"id", t.ID,
		"from", sender.Name(),
		"to", recipientName,
		"file", filename,
		"size", humanize.IBytes(uint64(size)))
	s.recordEvent("transfer", "File offer: "+sender.Name()+" -> "+recipientName+" ("+filename+")")

	answer := recipient.armAnswer(t.ID)
	if err := recipient.Send(&protocol.FileOffer{
		TransferID: t.ID,
		From:       sender.Name(),
		Name:       filename,
		Size:       size,
	}); err != nil {
		recipient.disarmAnswer(t.ID)
		_ = sender.Send(&protocol.Error{
			Code:    protocol.ErrTransfer,
			Message: "ERROR: User '" + recipientName + "' is not online",
		})
		return nil
	}

	accepted := false
	reason := "rejected by recipient"
	select {
	case accepted = <-answer:
	case <-time.After(s.config.AnswerTimeout):
		reason = "offer timed out"
	}
	recipient.disarmAnswer(t.ID)
	if !accepted {
		// An answer racing the timeout may already sit in the buffered
		// channel; honor it instead of swallowing the recipient's reply.
		select {
		case accepted = <-answer:
			reason = "rejected by recipient"
		default:
		}
	}

	if !accepted {
		t.State = TransferRejected
		_ = sender.Send(&protocol.OfferResult{TransferID: t.ID, Accepted: false, Reason: reason})
		s.logger.Info("File offer rejected", "id", t.ID, "reason", reason)
		s.recordEvent("transfer", "File offer rejected: "+sender.Name()+" -> "+recipientName)
		return nil
	}
	t.State = TransferAccepted

	if err := recipient.Send(&protocol.FilePrepare{
		TransferID: t.ID,
		From:       sender.Name(),
		Name:       filename,
		Size:       size,
	}); err != nil {
		t.fail("recipient disconnected")
		s.finishTransfer(t)
		return nil
	}
	_ = sender.Send(&protocol.OfferResult{TransferID: t.ID, Accepted: true})

	t.State = TransferStreaming
	leftover := s.streamTransfer(t)
	s.finishTransfer(t)
	return leftover
}

// streamTransfer relays chunk frames from the sender to the recipient until
// the declared byte count is reached. At most one chunk is in memory at a
// time; bytes are forwarded in order and unmodified.
func (s *Server) streamTransfer(t *Transfer) protocol.Message {
	progressStep := t.Size / 20
	var lastMark int64

	for t.BytesMoved < t.Size {
		msg, err := t.Sender.peer.Receive()
		if err != nil {
			t.fail("sender stream ended")
			return nil
		}

		chunk, ok := msg.(*protocol.FileChunk)
		if !ok {
			t.fail("unexpected " + msg.Type().String() + " frame mid-transfer")
			return msg
		}
		if chunk.TransferID != t.ID {
			t.fail("chunk for unknown transfer")
			return nil
		}

		n := int64(len(chunk.Data))
		if n == 0 || n > int64(s.config.ChunkSize) {
			t.fail("invalid chunk size")
			return nil
		}
		if t.BytesMoved+n > t.Size {
			t.fail("declared size exceeded")
			return nil
		}

		if err := t.Recipient.Send(chunk); err != nil {
			t.fail("recipient disconnected")
			return nil
		}
		t.BytesMoved += n

		if progressStep > 0 && t.BytesMoved-lastMark >= progressStep {
			percent := t.BytesMoved * 100 / t.Size
			s.logger.Info("Transfer progress", "id", t.ID, "percent", percent)
			lastMark = t.BytesMoved
		}
	}

	t.State = TransferComplete
	return nil
}

// finishTransfer notifies whichever parties are still reachable and logs
// the terminal state.
func (s *Server) finishTransfer(t *Transfer) {
	status := &protocol.TransferStatus{
		TransferID: t.ID,
		Ok:         t.State == TransferComplete,
		BytesMoved: t.BytesMoved,
		Reason:     t.failReason,
	}
	_ = t.Sender.Send(status)
	_ = t.Recipient.Send(status)

	if t.State == TransferComplete {
		s.logger.Info("Transfer complete",
			"id", t.ID,
			"moved", humanize.IBytes(uint64(t.BytesMoved)))
		s.recordEvent("transfer",
			"File transfer completed: "+t.Sender.Name()+" -> "+t.Recipient.Name()+" ("+t.Filename+")")
		return
	}

	s.logger.Warn("Transfer failed", "id", t.ID, "reason", t.failReason)
	s.recordEvent("transfer",
		"File transfer failed: "+t.Sender.Name()+" -> "+t.Recipient.Name())
}
