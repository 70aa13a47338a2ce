package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rudransh-shrivastava/chat-it/internal/protocol"
)

// MaxFrameSize bounds a single wire frame. A frame is a chunk or a control
// message, never a whole file, so anything larger means a broken or hostile
// peer.
const MaxFrameSize = 64 * 1024

// Peer is one framed connection. Every frame is a uint32 big-endian length
// followed by that many bytes of encoded message, so control text and file
// payload can never bleed into each other regardless of read granularity.
//
// Send may be called from multiple goroutines (router, broadcast, relay);
// the mutex keeps concurrent writers from interleaving frame bytes. Receive
// must only be called by the connection's single reader.
type Peer struct {
	codec *protocol.Codec
	conn  net.Conn
	mu    sync.Mutex
}

func NewPeer(conn net.Conn) *Peer {
	return &Peer{
		codec: protocol.NewCodec(),
		conn:  conn,
	}
}

func (p *Peer) Send(msg protocol.Message) error {
	data, err := p.codec.EncodeToBytes(msg)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", msg.Type(), err)
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", len(data))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := binary.Write(p.conn, binary.BigEndian, uint32(len(data))); err != nil {
		return err
	}
	if _, err := p.conn.Write(data); err != nil {
		return err
	}
	return nil
}

func (p *Peer) Receive() (protocol.Message, error) {
	var length uint32
	if err := binary.Read(p.conn, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("frame too large: %d bytes", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(p.conn, data); err != nil {
		return nil, err
	}
	return p.codec.DecodeFromBytes(data)
}

func (p *Peer) RemoteAddr() string {
	return p.conn.RemoteAddr().String()
}

func (p *Peer) SetReadDeadline(t time.Time) error {
	return p.conn.SetReadDeadline(t)
}

func (p *Peer) Close() error {
	return p.conn.Close()
}
