package protocol

import (
	"bytes"
	"encoding/gob"
	"io"
)

func init() {
	gob.Register(&Chat{})
	gob.Register(&Error{})
	gob.Register(&FileAccept{})
	gob.Register(&FileChunk{})
	gob.Register(&FileOffer{})
	gob.Register(&FilePrepare{})
	gob.Register(&FileReject{})
	gob.Register(&Join{})
	gob.Register(&Line{})
	gob.Register(&Notice{})
	gob.Register(&OfferResult{})
	gob.Register(&Private{})
	gob.Register(&TransferStatus{})
	gob.Register(&UserList{})
	gob.Register(&Welcome{})
}

type Codec struct{}

func NewCodec() *Codec {
	return &Codec{}
}

func (c *Codec) Encode(w io.Writer, msg Message) error {
	return gob.NewEncoder(w).Encode(&msg)
}

func (c *Codec) Decode(r io.Reader) (Message, error) {
	var msg Message
	if err := gob.NewDecoder(r).Decode(&msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (c *Codec) EncodeToBytes(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf, msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Codec) DecodeFromBytes(data []byte) (Message, error) {
	return c.Decode(bytes.NewReader(data))
}
