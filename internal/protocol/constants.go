package protocol

const (
	// ChunkSize is the largest payload a single FileChunk frame may carry.
	ChunkSize = 8 * 1024
	// MaxFileSize caps the declared size of a relayed file.
	MaxFileSize = 10 * 1024 * 1024
	// MaxNameLen caps the length of a claimed identity.
	MaxNameLen = 20
)

type MessageType uint16

const (
	MsgChat           MessageType = 0x0011
	MsgError          MessageType = 0x00FF
	MsgFileAccept     MessageType = 0x0021
	MsgFileChunk      MessageType = 0x0025
	MsgFileOffer      MessageType = 0x0020
	MsgFilePrepare    MessageType = 0x0024
	MsgFileReject     MessageType = 0x0022
	MsgJoin           MessageType = 0x0001
	MsgLine           MessageType = 0x0010
	MsgNotice         MessageType = 0x0013
	MsgOfferResult    MessageType = 0x0023
	MsgPrivate        MessageType = 0x0012
	MsgTransferStatus MessageType = 0x0026
	MsgUserList       MessageType = 0x0014
	MsgWelcome        MessageType = 0x0002
)

func (t MessageType) String() string {
	switch t {
	case MsgChat:
		return "CHAT"
	case MsgError:
		return "ERROR"
	case MsgFileAccept:
		return "FILE_ACCEPT"
	case MsgFileChunk:
		return "FILE_CHUNK"
	case MsgFileOffer:
		return "FILE_OFFER"
	case MsgFilePrepare:
		return "FILE_PREPARE"
	case MsgFileReject:
		return "FILE_REJECT"
	case MsgJoin:
		return "JOIN"
	case MsgLine:
		return "LINE"
	case MsgNotice:
		return "NOTICE"
	case MsgOfferResult:
		return "OFFER_RESULT"
	case MsgPrivate:
		return "PRIVATE"
	case MsgTransferStatus:
		return "TRANSFER_STATUS"
	case MsgUserList:
		return "USER_LIST"
	case MsgWelcome:
		return "WELCOME"
	default:
		return "UNKNOWN"
	}
}

type ErrorCode uint16

const (
	ErrAuth      ErrorCode = 0x0002
	ErrProtocol  ErrorCode = 0x0001
	ErrRouting   ErrorCode = 0x0003
	ErrTransfer  ErrorCode = 0x0004
	ErrTransport ErrorCode = 0x0005
	ErrUnknown   ErrorCode = 0x0000
)

func (e ErrorCode) String() string {
	switch e {
	case ErrAuth:
		return "AUTH_ERROR"
	case ErrProtocol:
		return "PROTOCOL_ERROR"
	case ErrRouting:
		return "ROUTING_ERROR"
	case ErrTransfer:
		return "TRANSFER_ERROR"
	case ErrTransport:
		return "TRANSPORT_ERROR"
	case ErrUnknown:
		return "UNKNOWN"
	default:
		return "UNKNOWN"
	}
}
