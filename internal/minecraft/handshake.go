package minecraft

import (
	"bytes"
	"fmt"
)

// NextState values from the client's handshake packet.
const (
	NextStateStatus = 1
	NextStateLogin  = 2
)

// Handshake is the client's first frame: protocol version, the hostname and
// port it believes it's connecting to, and its declared intent.
type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	NextState       int32
}

// ParseHandshake parses the payload of a handshake packet — the packet ID
// has already been read and confirmed to be 0x00 by the caller (ReadPacket
// strips it off). It returns an error for anything malformed, including an
// unrecognized next-state — callers should treat any error as "drop the
// connection silently", matching the upstream behavior of ignoring malformed
// probes rather than answering them.
func ParseHandshake(payload []byte) (Handshake, error) {
	r := bytes.NewReader(payload)

	protocolVersion, err := ReadVarInt(r)
	if err != nil {
		return Handshake{}, fmt.Errorf("read protocol version: %w", err)
	}
	serverAddress, err := ReadString(r)
	if err != nil {
		return Handshake{}, fmt.Errorf("read server address: %w", err)
	}
	serverPort, err := ReadUShort(r)
	if err != nil {
		return Handshake{}, fmt.Errorf("read server port: %w", err)
	}
	nextState, err := ReadVarInt(r)
	if err != nil {
		return Handshake{}, fmt.Errorf("read next state: %w", err)
	}
	if nextState != NextStateStatus && nextState != NextStateLogin {
		return Handshake{}, fmt.Errorf("unrecognized next state %d", nextState)
	}

	return Handshake{
		ProtocolVersion: protocolVersion,
		ServerAddress:   serverAddress,
		ServerPort:      serverPort,
		NextState:       nextState,
	}, nil
}
