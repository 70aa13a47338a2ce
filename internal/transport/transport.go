package transport

import (
	"context"
	"net"
)

// Transport owns a TCP listener and hands out framed Peers.
type Transport struct {
	listener net.Listener
}

func NewTransport(addr string) (*Transport, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Transport{listener: listener}, nil
}

// Accept blocks until a client connects or the listener is closed.
func (t *Transport) Accept(ctx context.Context) (*Peer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := t.listener.Accept()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return NewPeer(conn), nil
}

func Dial(ctx context.Context, addr string) (*Peer, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewPeer(conn), nil
}

func (t *Transport) LocalAddr() net.Addr {
	return t.listener.Addr()
}

func (t *Transport) Close() error {
	return t.listener.Close()
}
