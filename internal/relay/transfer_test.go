package relay

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/chat-it/internal/logger"
	"github.com/rudransh-shrivastava/chat-it/internal/protocol"
	"github.com/rudransh-shrivastava/chat-it/internal/transport"
)

func expectOffer(t *testing.T, peer *transport.Peer, from, name string, size int64) *protocol.FileOffer {
	t.Helper()

	msg := receiveMsg(t, peer)
	offer, ok := msg.(*protocol.FileOffer)
	if !ok {
		t.Fatalf("Expected *FileOffer, got %T", msg)
	}
	if offer.From != from || offer.Name != name || offer.Size != size {
		t.Errorf("Offer = %+v", offer)
	}
	return offer
}

func expectStatus(t *testing.T, peer *transport.Peer, ok bool) *protocol.TransferStatus {
	t.Helper()

	msg := receiveMsg(t, peer)
	status, isStatus := msg.(*protocol.TransferStatus)
	if !isStatus {
		t.Fatalf("Expected *TransferStatus, got %T", msg)
	}
	if status.Ok != ok {
		t.Errorf("Status.Ok = %v, want %v (reason %q)", status.Ok, ok, status.Reason)
	}
	return status
}

func TestSendfileUsageErrors(t *testing.T) {
	srv := setupServer(t)
	alice := join(t, srv, "alice")
	bob := join(t, srv, "bob")
	expectNotice(t, alice, "bob joined the chat!")

	usage := "Usage: /sendfile <username> <filename> <file_size>"
	for _, line := range []string{"/sendfile", "/sendfile bob", "/sendfile bob file.txt", "/sendfile bob file.txt many"} {
		if err := alice.Send(&protocol.Line{Text: line}); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		expectError(t, alice, protocol.ErrProtocol, usage)
	}

	// No offer was ever constructed for the recipient.
	expectSilence(t, bob)
}

func TestSendfileSizeBounds(t *testing.T) {
	srv := setupServer(t)
	alice := join(t, srv, "alice")
	bob := join(t, srv, "bob")
	expectNotice(t, alice, "bob joined the chat!")

	for _, line := range []string{
		"/sendfile bob file.txt 0",
		"/sendfile bob file.txt -5",
		"/sendfile bob file.txt 10485761",
	} {
		if err := alice.Send(&protocol.Line{Text: line}); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		expectError(t, alice, protocol.ErrTransfer, "ERROR: Invalid file size (max 10MB)")
	}

	expectSilence(t, bob)
}

func TestSendfileRecipientOffline(t *testing.T) {
	srv := setupServer(t)
	alice := join(t, srv, "alice")

	if err := alice.Send(&protocol.Line{Text: "/sendfile carol file.txt 100"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	expectError(t, alice, protocol.ErrTransfer, "ERROR: User 'carol' is not online")
}

func TestFileTransferComplete(t *testing.T) {
	srv := setupServer(t)
	alice := join(t, srv, "alice")
	bob := join(t, srv, "bob")
	expectNotice(t, alice, "bob joined the chat!")

	payload := make([]byte, 1024)
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("rand.Read failed: %v", err)
	}

	if err := alice.Send(&protocol.Line{Text: "/sendfile bob report.txt 1024"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	offer := expectOffer(t, bob, "alice", "report.txt", 1024)
	if err := bob.Send(&protocol.FileAccept{TransferID: offer.TransferID}); err != nil {
		t.Fatalf("Send FileAccept failed: %v", err)
	}

	prep := receiveMsg(t, bob)
	prepare, ok := prep.(*protocol.FilePrepare)
	if !ok {
		t.Fatalf("Expected *FilePrepare, got %T", prep)
	}
	if prepare.Size != 1024 || prepare.From != "alice" {
		t.Errorf("Prepare = %+v", prepare)
	}

	res := receiveMsg(t, alice)
	result, ok := res.(*protocol.OfferResult)
	if !ok {
		t.Fatalf("Expected *OfferResult, got %T", res)
	}
	if !result.Accepted {
		t.Fatalf("Offer was not accepted: %q", result.Reason)
	}

	// Stream in two chunks; the recipient must see the exact bytes in order.
	for _, chunk := range [][]byte{payload[:512], payload[512:]} {
		if err := alice.Send(&protocol.FileChunk{TransferID: offer.TransferID, Data: chunk}); err != nil {
			t.Fatalf("Send chunk failed: %v", err)
		}
	}

	var received bytes.Buffer
	for received.Len() < 1024 {
		msg := receiveMsg(t, bob)
		chunk, ok := msg.(*protocol.FileChunk)
		if !ok {
			t.Fatalf("Expected *FileChunk, got %T", msg)
		}
		received.Write(chunk.Data)
	}
	if !bytes.Equal(received.Bytes(), payload) {
		t.Error("Relayed bytes differ from original")
	}

	senderStatus := expectStatus(t, alice, true)
	if senderStatus.BytesMoved != 1024 {
		t.Errorf("BytesMoved = %d, want 1024", senderStatus.BytesMoved)
	}
	expectStatus(t, bob, true)
}

func TestFileTransferShortStream(t *testing.T) {
	srv := setupServer(t)
	alice := join(t, srv, "alice")
	bob := join(t, srv, "bob")
	expectNotice(t, alice, "bob joined the chat!")

	if err := alice.Send(&protocol.Line{Text: "/sendfile bob big.bin 1024"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	offer := expectOffer(t, bob, "alice", "big.bin", 1024)
	if err := bob.Send(&protocol.FileAccept{TransferID: offer.TransferID}); err != nil {
		t.Fatalf("Send FileAccept failed: %v", err)
	}
	receiveMsg(t, bob) // FilePrepare

	res := receiveMsg(t, alice)
	if result, ok := res.(*protocol.OfferResult); !ok || !result.Accepted {
		t.Fatalf("Expected accepted OfferResult, got %#v", res)
	}

	// Supply size-1 bytes then close: the transfer must fail.
	if err := alice.Send(&protocol.FileChunk{TransferID: offer.TransferID, Data: make([]byte, 1023)}); err != nil {
		t.Fatalf("Send chunk failed: %v", err)
	}
	_ = alice.Close()

	msg := receiveMsg(t, bob)
	if _, ok := msg.(*protocol.FileChunk); !ok {
		t.Fatalf("Expected *FileChunk, got %T", msg)
	}

	status := expectStatus(t, bob, false)
	if status.BytesMoved != 1023 {
		t.Errorf("BytesMoved = %d, want 1023", status.BytesMoved)
	}
}

func TestFileTransferRejected(t *testing.T) {
	srv := setupServer(t)
	alice := join(t, srv, "alice")
	bob := join(t, srv, "bob")
	expectNotice(t, alice, "bob joined the chat!")

	if err := alice.Send(&protocol.Line{Text: "/sendfile bob secret.txt 64"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	offer := expectOffer(t, bob, "alice", "secret.txt", 64)
	if err := bob.Send(&protocol.FileReject{TransferID: offer.TransferID}); err != nil {
		t.Fatalf("Send FileReject failed: %v", err)
	}

	res := receiveMsg(t, alice)
	result, ok := res.(*protocol.OfferResult)
	if !ok {
		t.Fatalf("Expected *OfferResult, got %T", res)
	}
	if result.Accepted {
		t.Error("Expected rejection")
	}
	if result.Reason != "rejected by recipient" {
		t.Errorf("Reason = %q", result.Reason)
	}

	// The sender's loop is free again.
	if err := alice.Send(&protocol.Line{Text: "/list"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if _, ok := receiveMsg(t, alice).(*protocol.UserList); !ok {
		t.Error("Expected /list to work after rejection")
	}
}

func TestFileTransferOfferTimeout(t *testing.T) {
	srv := setupServer(t)
	alice := join(t, srv, "alice")
	bob := join(t, srv, "bob")
	expectNotice(t, alice, "bob joined the chat!")

	if err := alice.Send(&protocol.Line{Text: "/sendfile bob slow.txt 64"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	expectOffer(t, bob, "alice", "slow.txt", 64)

	// Recipient never answers; the server's bounded wait resolves to
	// rejected (setup uses a 1s AnswerTimeout).
	_ = alice.SetReadDeadline(time.Now().Add(5 * time.Second))
	msg, err := alice.Receive()
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	result, ok := msg.(*protocol.OfferResult)
	if !ok {
		t.Fatalf("Expected *OfferResult, got %T", msg)
	}
	if result.Accepted || result.Reason != "offer timed out" {
		t.Errorf("Result = %+v", result)
	}

	// A late answer gets an error, not a crash.
	if err := bob.Send(&protocol.FileAccept{TransferID: "stale"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	expectError(t, bob, protocol.ErrTransfer, "ERROR: No pending file offer")
}

func TestShutdownWaitsForStreamingTransfer(t *testing.T) {
	srv, err := NewServer(Config{
		Addr:            "127.0.0.1:0",
		Logger:          logger.NewLogger(),
		AnswerTimeout:   time.Second,
		ShutdownTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = srv.Start(ctx)
	}()
	time.Sleep(50 * time.Millisecond)

	alice := join(t, srv, "alice")
	bob := join(t, srv, "bob")
	expectNotice(t, alice, "bob joined the chat!")

	payload := make([]byte, 2048)
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("rand.Read failed: %v", err)
	}

	if err := alice.Send(&protocol.Line{Text: "/sendfile bob big.bin 2048"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	offer := expectOffer(t, bob, "alice", "big.bin", 2048)
	if err := bob.Send(&protocol.FileAccept{TransferID: offer.TransferID}); err != nil {
		t.Fatalf("Send FileAccept failed: %v", err)
	}
	receiveMsg(t, bob) // FilePrepare

	res := receiveMsg(t, alice)
	if result, ok := res.(*protocol.OfferResult); !ok || !result.Accepted {
		t.Fatalf("Expected accepted OfferResult, got %#v", res)
	}

	// First half, then a shutdown arrives mid-stream.
	if err := alice.Send(&protocol.FileChunk{TransferID: offer.TransferID, Data: payload[:1024]}); err != nil {
		t.Fatalf("Send chunk failed: %v", err)
	}
	if _, ok := receiveMsg(t, bob).(*protocol.FileChunk); !ok {
		t.Fatal("Expected first chunk at recipient")
	}

	shutdownErr := make(chan error, 1)
	go func() {
		shutdownErr <- srv.Shutdown()
	}()
	time.Sleep(100 * time.Millisecond)

	// Neither endpoint was closed: the rest of the stream still goes
	// through and both parties see a completed transfer.
	if err := alice.Send(&protocol.FileChunk{TransferID: offer.TransferID, Data: payload[1024:]}); err != nil {
		t.Fatalf("Send chunk after shutdown failed: %v", err)
	}
	if _, ok := receiveMsg(t, bob).(*protocol.FileChunk); !ok {
		t.Fatal("Expected second chunk at recipient")
	}

	senderStatus := expectStatus(t, alice, true)
	if senderStatus.BytesMoved != 2048 {
		t.Errorf("BytesMoved = %d, want 2048", senderStatus.BytesMoved)
	}
	expectStatus(t, bob, true)

	_ = alice.Close()
	_ = bob.Close()

	select {
	case err := <-shutdownErr:
		if err != nil {
			t.Errorf("Shutdown returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return")
	}
}

func TestTransferStateString(t *testing.T) {
	tests := []struct {
		state    TransferState
		expected string
	}{
		{TransferOffered, "OFFERED"},
		{TransferStreaming, "STREAMING"},
		{TransferComplete, "COMPLETE"},
		{TransferFailed, "FAILED"},
		{TransferState(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("%d.String() = %s, want %s", tt.state, got, tt.expected)
		}
	}
}
