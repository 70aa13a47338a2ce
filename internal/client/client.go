// Package client implements the chat client: connection and identity
// handshake, command submission, and both sides of the file relay protocol
// (offering, answering, streaming chunks, saving received files).
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/chat-it/internal/protocol"
	"github.com/rudransh-shrivastava/chat-it/internal/transport"
)

// offerResultWait bounds how long a sender waits for the server to report
// the recipient's answer. The server's own answer timeout is shorter.
const offerResultWait = 60 * time.Second

type Config struct {
	ServerAddr   string
	Name         string
	DownloadDir  string
	Logger       *logrus.Logger
	ShowProgress bool
}

// Offer is a file offer awaiting this client's answer.
type Offer struct {
	TransferID string
	From       string
	Name       string
	Size       int64
}

// inboundFile is one incoming transfer being written to disk.
type inboundFile struct {
	path     string
	size     int64
	received int64
	file     *os.File
	bar      *progressbar.ProgressBar
}

type Client struct {
	config Config
	logger *logrus.Logger
	peer   *transport.Peer

	events       chan string
	offerResults chan *protocol.OfferResult
	done         chan struct{}

	// inbound is keyed by transfer id and touched only by the receive
	// loop goroutine, so it needs no lock.
	inbound map[string]*inboundFile

	mu     sync.Mutex
	offers []Offer
	closed bool
}

func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = filepath.Join("Users", cfg.Name)
	}
	return &Client{
		config:       cfg,
		logger:       cfg.Logger,
		events:       make(chan string, 128),
		offerResults: make(chan *protocol.OfferResult, 1),
		done:         make(chan struct{}),
		inbound:      make(map[string]*inboundFile),
	}
}

// Connect dials the server and claims the configured identity. On success
// the receive loop starts and Events begins delivering rendered messages.
func (c *Client) Connect(ctx context.Context) error {
	peer, err := transport.Dial(ctx, c.config.ServerAddr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", c.config.ServerAddr, err)
	}
	c.peer = peer

	if err := peer.Send(&protocol.Join{Name: c.config.Name}); err != nil {
		_ = peer.Close()
		return fmt.Errorf("claiming identity: %w", err)
	}

	msg, err := peer.Receive()
	if err != nil {
		_ = peer.Close()
		return fmt.Errorf("waiting for welcome: %w", err)
	}

	switch m := msg.(type) {
	case *protocol.Welcome:
		c.pushEvent(m.Text)
	case *protocol.Error:
		_ = peer.Close()
		return errors.New(m.Message)
	default:
		_ = peer.Close()
		return fmt.Errorf("unexpected %s frame during handshake", msg.Type())
	}

	go c.readLoop()
	return nil
}

// Events delivers rendered server messages. The channel closes when the
// connection is gone.
func (c *Client) Events() <-chan string {
	return c.events
}

func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	if c.peer == nil {
		return nil
	}
	return c.peer.Close()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// SendLine submits one raw command or chat line.
func (c *Client) SendLine(text string) error {
	return c.peer.Send(&protocol.Line{Text: text})
}

// OfferFile asks the server to relay a file of the given declared size.
func (c *Client) OfferFile(to, name string, size int64) error {
	return c.SendLine(fmt.Sprintf("/sendfile %s %s %d", to, name, size))
}

// AcceptFile answers a pending offer. An empty id answers the oldest one.
func (c *Client) AcceptFile(transferID string) error {
	offer, ok := c.popOffer(transferID)
	if !ok {
		return errors.New("no pending file offer")
	}
	return c.peer.Send(&protocol.FileAccept{TransferID: offer.TransferID})
}

// RejectFile declines a pending offer. An empty id answers the oldest one.
func (c *Client) RejectFile(transferID string) error {
	offer, ok := c.popOffer(transferID)
	if !ok {
		return errors.New("no pending file offer")
	}
	return c.peer.Send(&protocol.FileReject{TransferID: offer.TransferID})
}

// SubmitChunk sends one chunk of file payload for an accepted transfer.
func (c *Client) SubmitChunk(transferID string, data []byte) error {
	return c.peer.Send(&protocol.FileChunk{TransferID: transferID, Data: data})
}

// SendFile offers a local file to another user and, once accepted, streams
// it through the server in chunks.
func (c *Client) SendFile(to, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot open file %q: %w", path, err)
	}
	size := info.Size()
	if size < 1 || size > protocol.MaxFileSize {
		return fmt.Errorf("invalid file size %s (max %s)",
			humanize.IBytes(uint64(size)), humanize.IBytes(protocol.MaxFileSize))
	}

	if err := c.OfferFile(to, filepath.Base(path), size); err != nil {
		return err
	}

	var result *protocol.OfferResult
	select {
	case result = <-c.offerResults:
	case <-c.done:
		return errors.New("connection closed")
	case <-time.After(offerResultWait):
		return errors.New("no answer from server")
	}

	if !result.Accepted {
		return fmt.Errorf("offer not accepted: %s", result.Reason)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open file %q: %w", path, err)
	}
	defer file.Close()

	bar := c.newBar(size, "sending "+filepath.Base(path))
	buf := make([]byte, protocol.ChunkSize)
	for {
		n, err := file.Read(buf)
		if n > 0 {
			if err := c.SubmitChunk(result.TransferID, buf[:n]); err != nil {
				return fmt.Errorf("sending chunk: %w", err)
			}
			_ = bar.Add(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading %q: %w", path, err)
		}
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.events)
	defer close(c.done)

	for {
		msg, err := c.peer.Receive()
		if err != nil {
			if !c.isClosed() {
				c.logger.Errorf("Server disconnected: %v", err)
			}
			return
		}
		if err := c.dispatch(msg); err != nil {
			c.logger.Errorf("Connection lost: %v", err)
			return
		}
	}
}

// dispatch renders one server frame. It returns an error only when the
// connection is unusable.
func (c *Client) dispatch(msg protocol.Message) error {
	switch m := msg.(type) {
	case *protocol.Notice:
		c.pushEvent(m.Text)

	case *protocol.Chat:
		c.pushEvent(m.From + ": " + m.Text)

	case *protocol.Private:
		if m.From == c.config.Name {
			c.pushEvent("[PRIVATE] You -> " + m.To + ": " + m.Text)
		} else {
			c.pushEvent("[PRIVATE] " + m.From + " -> You: " + m.Text)
		}

	case *protocol.UserList:
		c.pushEvent(m.Render())

	case *protocol.Error:
		c.pushEvent(m.Message)

	case *protocol.FileOffer:
		c.addOffer(Offer{TransferID: m.TransferID, From: m.From, Name: m.Name, Size: m.Size})
		c.pushEvent(fmt.Sprintf("[FILE] %s wants to send '%s' (%s) - type /accept or /reject",
			m.From, m.Name, humanize.IBytes(uint64(m.Size))))

	case *protocol.OfferResult:
		select {
		case c.offerResults <- m:
		default:
			c.logger.Warnf("Dropping unexpected offer result for %s", m.TransferID)
		}

	case *protocol.FilePrepare:
		return c.receiveFile(m)

	case *protocol.TransferStatus:
		if m.Ok {
			c.pushEvent("[FILE] ✓ Transfer complete! (" + humanize.IBytes(uint64(m.BytesMoved)) + ")")
		} else {
			c.failInbound(m.TransferID)
			c.pushEvent("ERROR: File transfer failed (" + m.Reason + ")")
		}

	case *protocol.FileChunk:
		c.writeChunk(m)

	default:
		c.logger.Warnf("Unhandled %s frame", msg.Type())
	}
	return nil
}

// receiveFile drains frames until the prepared transfer reaches a terminal
// state. Chat traffic interleaved between chunk frames is rendered as usual,
// and another transfer starting mid-stream is received alongside this one.
func (c *Client) receiveFile(prep *protocol.FilePrepare) error {
	if err := c.openInbound(prep); err != nil {
		c.pushEvent("ERROR: " + err.Error())
		return nil
	}

	for c.inbound[prep.TransferID] != nil {
		msg, err := c.peer.Receive()
		if err != nil {
			c.dropInbound()
			return err
		}
		if err := c.dispatch(msg); err != nil {
			return err
		}
	}
	return nil
}

// openInbound creates the destination file and registers the transfer so
// chunk frames can be routed to it by id.
func (c *Client) openInbound(prep *protocol.FilePrepare) error {
	if err := os.MkdirAll(c.config.DownloadDir, 0o755); err != nil {
		return fmt.Errorf("cannot create download directory: %w", err)
	}

	path := savePath(c.config.DownloadDir, prep.From, prep.Name, time.Now())
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create output file: %w", err)
	}

	c.inbound[prep.TransferID] = &inboundFile{
		path: path,
		size: prep.Size,
		file: file,
		bar:  c.newBar(prep.Size, "receiving "+prep.Name),
	}
	c.pushEvent(fmt.Sprintf("[FILE] Receiving '%s' (%s) from %s...",
		prep.Name, humanize.IBytes(uint64(prep.Size)), prep.From))
	return nil
}

// writeChunk appends one chunk to the matching inbound transfer and
// finalizes the file once the declared byte count is reached.
func (c *Client) writeChunk(m *protocol.FileChunk) {
	in, ok := c.inbound[m.TransferID]
	if !ok {
		c.logger.Warnf("Dropping stray chunk for transfer %s", m.TransferID)
		return
	}

	if _, err := in.file.Write(m.Data); err != nil {
		c.pushEvent("ERROR: Failed to write to file: " + err.Error())
		c.failInbound(m.TransferID)
		return
	}
	in.received += int64(len(m.Data))
	_ = in.bar.Add(len(m.Data))

	if in.received >= in.size {
		_ = in.file.Close()
		delete(c.inbound, m.TransferID)
		c.pushEvent("[FILE] ✓ File saved to: " + in.path)
	}
}

// failInbound discards the partial file of a transfer that died mid-stream.
func (c *Client) failInbound(transferID string) {
	in, ok := c.inbound[transferID]
	if !ok {
		return
	}
	_ = in.file.Close()
	_ = os.Remove(in.path)
	delete(c.inbound, transferID)
}

// dropInbound closes every open inbound file when the connection is gone.
// Partial files are left on disk.
func (c *Client) dropInbound() {
	for id, in := range c.inbound {
		_ = in.file.Close()
		delete(c.inbound, id)
	}
}

func (c *Client) newBar(size int64, description string) *progressbar.ProgressBar {
	if !c.config.ShowProgress {
		return progressbar.DefaultBytesSilent(size, description)
	}
	return progressbar.DefaultBytes(size, description)
}

func (c *Client) pushEvent(text string) {
	select {
	case c.events <- text:
	default:
		c.logger.Warn("Event buffer full, dropping message")
	}
}

func (c *Client) addOffer(offer Offer) {
	c.mu.Lock()
	c.offers = append(c.offers, offer)
	c.mu.Unlock()
}

// popOffer removes and returns the offer with the given id, or the oldest
// pending one when id is empty.
func (c *Client) popOffer(transferID string) (Offer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.offers) == 0 {
		return Offer{}, false
	}
	if transferID == "" {
		offer := c.offers[0]
		c.offers = c.offers[1:]
		return offer, true
	}
	for i, offer := range c.offers {
		if offer.TransferID == transferID {
			c.offers = append(c.offers[:i], c.offers[i+1:]...)
			return offer, true
		}
	}
	return Offer{}, false
}

// savePath names a received file after its sender and arrival time while
// keeping the original extension. The sender-supplied name is never used
// as a path.
func savePath(dir, from, name string, now time.Time) string {
	ext := filepath.Ext(filepath.Base(name))
	return filepath.Join(dir, fmt.Sprintf("from_%s_%d%s", from, now.Unix(), ext))
}
