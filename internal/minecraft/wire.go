package minecraft

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// maxVarIntBytes bounds VarInt decoding to 5 bytes (enough for a full int32),
// matching the wire format used by the impersonated protocol.
const maxVarIntBytes = 5

var errVarIntTooLong = errors.New("minecraft: varint too long")

// ReadVarInt decodes a 7-bit little-endian base-128 VarInt from r.
func ReadVarInt(r io.Reader) (int32, error) {
	var value int32
	var buf [1]byte
	for i := 0; i < maxVarIntBytes; i++ {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		b := buf[0]
		value |= int32(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			return value, nil
		}
	}
	return 0, errVarIntTooLong
}

var errVarIntNegative = errors.New("minecraft: varint cannot be negative")

// WriteVarInt encodes value as a VarInt onto w. value must not be negative.
func WriteVarInt(w io.Writer, value int32) error {
	if value < 0 {
		return errVarIntNegative
	}
	v := uint32(value)
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		if _, err := w.Write([]byte{b}); err != nil {
			return err
		}
		if v == 0 {
			return nil
		}
	}
}

// ReadString reads a VarInt-length-prefixed UTF-8 string.
func ReadString(r io.Reader) (string, error) {
	n, err := ReadVarInt(r)
	if err != nil {
		return "", err
	}
	if n < 0 || n >= 1<<28 {
		return "", errors.New("minecraft: string length out of range")
	}
	// Read through a limit instead of preallocating n bytes, so a large
	// declared length on a short input does not allocate up front.
	buf, err := io.ReadAll(io.LimitReader(r, int64(n)))
	if err != nil {
		return "", err
	}
	if len(buf) != int(n) {
		return "", io.ErrUnexpectedEOF
	}
	return string(buf), nil
}

// WriteString writes s as a VarInt-length-prefixed UTF-8 string.
func WriteString(w io.Writer, s string) error {
	if err := WriteVarInt(w, int32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// ReadUShort reads a big-endian unsigned 16-bit integer.
func ReadUShort(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// ReadLong reads a big-endian signed 64-bit integer.
func ReadLong(r io.Reader) (int64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

// WriteLong writes v as a big-endian signed 64-bit integer.
func WriteLong(w io.Writer, v int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	_, err := w.Write(buf[:])
	return err
}

// WritePacket frames payload behind a packetID and an overall VarInt length
// prefix, the standard packet envelope for this protocol.
func WritePacket(w io.Writer, packetID int32, payload []byte) error {
	var body bytes.Buffer
	if err := WriteVarInt(&body, packetID); err != nil {
		return err
	}
	body.Write(payload)

	if err := WriteVarInt(w, int32(body.Len())); err != nil {
		return err
	}
	_, err := w.Write(body.Bytes())
	return err
}

// ReadPacket reads one length-prefixed packet and splits it into its packet
// ID and remaining payload.
func ReadPacket(r io.Reader) (packetID int32, payload []byte, err error) {
	length, err := ReadVarInt(r)
	if err != nil {
		return 0, nil, err
	}
	if length < 0 || length > 1<<20 {
		return 0, nil, errors.New("minecraft: packet length out of range")
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}

	br := bytes.NewReader(body)
	packetID, err = ReadVarInt(br)
	if err != nil {
		return 0, nil, err
	}
	rest := make([]byte, br.Len())
	_, _ = io.ReadFull(br, rest)
	return packetID, rest, nil
}
