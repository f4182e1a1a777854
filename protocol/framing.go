package protocol

import (
	"encoding/binary"
	"errors"
	"io"
)

var ErrPacketSize = errors.New("packet size is invalid")

// ReadMsg reads one length-prefixed message
func ReadMsg(r io.Reader, m *Message) error {
	var length uint32

	err := binary.Read(r, binary.BigEndian, &length)
	if err != nil {
		return err
	}

	if length == 0 || length > MaxPacketSize {
		return ErrPacketSize
	}

	data := make([]byte, length)

	_, err = io.ReadFull(r, data)
	if err != nil {
		return err
	}

	return Unmarshal(data, m)
}

// WriteMsg writes m with a 4 byte big endian length prefix
func WriteMsg(w io.Writer, m *Message) error {
	out, err := Marshal(m)
	if err != nil {
		return err
	}

	if len(out) == 0 || len(out) > MaxPacketSize {
		return ErrPacketSize
	}

	buf := make([]byte, 4, 4+len(out))
	binary.BigEndian.PutUint32(buf, uint32(len(out)))
	buf = append(buf, out...)

	_, err = w.Write(buf)
	return err
}
