package protocol

import "strings"

type Message interface {
	Type() MessageType
}

// Chat is a public message relayed to every other active user.
type Chat struct {
	From string
	Text string
}

func (Chat) Type() MessageType { return MsgChat }

type Error struct {
	Code    ErrorCode
	Message string
}

func (Error) Type() MessageType { return MsgError }

// FileAccept is the recipient's answer to a pending file offer.
type FileAccept struct {
	TransferID string
}

func (FileAccept) Type() MessageType { return MsgFileAccept }

// FileChunk carries up to ChunkSize bytes of file payload. The server
// forwards chunks one at a time and never holds more than one in memory
// per transfer.
type FileChunk struct {
	TransferID string
	Data       []byte
}

func (FileChunk) Type() MessageType { return MsgFileChunk }

// FileOffer notifies the recipient that a sender wants to relay a file.
type FileOffer struct {
	TransferID string
	From       string
	Name       string
	Size       int64
}

func (FileOffer) Type() MessageType { return MsgFileOffer }

// FilePrepare tells the recipient to expect exactly Size bytes of chunk
// frames for the named transfer.
type FilePrepare struct {
	TransferID string
	From       string
	Name       string
	Size       int64
}

func (FilePrepare) Type() MessageType { return MsgFilePrepare }

type FileReject struct {
	TransferID string
}

func (FileReject) Type() MessageType { return MsgFileReject }

// Join claims an identity. It must be the first frame a client sends.
type Join struct {
	Name string
}

func (Join) Type() MessageType { return MsgJoin }

// Line is one newline-stripped command or chat line typed by the user.
// The server classifies it (/list, @user, /sendfile, /quit, broadcast).
type Line struct {
	Text string
}

func (Line) Type() MessageType { return MsgLine }

type Notice struct {
	Text string
}

func (Notice) Type() MessageType { return MsgNotice }

// OfferResult is the go-ahead (or refusal) delivered to the sender once
// the recipient answered or the offer timed out.
type OfferResult struct {
	TransferID string
	Accepted   bool
	Reason     string
}

func (OfferResult) Type() MessageType { return MsgOfferResult }

type Private struct {
	From string
	To   string
	Text string
}

func (Private) Type() MessageType { return MsgPrivate }

// TransferStatus reports the terminal state of a transfer to both parties.
type TransferStatus struct {
	TransferID string
	Ok         bool
	BytesMoved int64
	Reason     string
}

func (TransferStatus) Type() MessageType { return MsgTransferStatus }

type UserList struct {
	Users []string
}

func (UserList) Type() MessageType { return MsgUserList }

// Render formats the list the way the server has always displayed it.
func (m *UserList) Render() string {
	if len(m.Users) == 0 {
		return "No users online"
	}
	return "Active users: " + strings.Join(m.Users, ", ")
}

type Welcome struct {
	Text string
}

func (Welcome) Type() MessageType { return MsgWelcome }
