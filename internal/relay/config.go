package relay

import (
	"log/slog"
	"time"

	"github.com/rudransh-shrivastava/chat-it/internal/protocol"
)

// EventSink receives every operational event the relay emits. The sqlite
// event log implements it; tests and the default configuration use a no-op.
type EventSink interface {
	Record(at time.Time, kind, detail string) error
}

type nopSink struct{}

func (nopSink) Record(time.Time, string, string) error { return nil }

type Config struct {
	Addr   string
	Logger *slog.Logger
	Events EventSink

	// ChunkSize bounds a single relayed file chunk.
	ChunkSize int
	// MaxFileSize bounds the declared size of a transfer.
	MaxFileSize int64
	// AnswerTimeout bounds how long a file offer waits for the recipient;
	// expiry resolves to rejected.
	AnswerTimeout time.Duration
	// ShutdownTimeout bounds how long Shutdown waits for in-flight
	// transfers before force-closing connections.
	ShutdownTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":5000"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Events == nil {
		c.Events = nopSink{}
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = protocol.ChunkSize
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = protocol.MaxFileSize
	}
	if c.AnswerTimeout <= 0 {
		c.AnswerTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return c
}
