package util

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/notifylab/fanout/pkg/types"
)

// EncodeEvent serializes an event into a binary frame:
// [kind][idLen][id][keyLen][key][producedAt][payloadLen][payload]
func EncodeEvent(ev types.Event) ([]byte, error) {
	idBytes := []byte(ev.ID)
	keyBytes := []byte(ev.Key)
	payloadBytes := ev.Payload

	if len(idBytes) > 0xFFFF {
		return nil, fmt.Errorf("event id too long: %d bytes", len(idBytes))
	}
	if len(keyBytes) > 0xFFFF {
		return nil, fmt.Errorf("partition key too long: %d bytes", len(keyBytes))
	}

	total := 1 + 2 + len(idBytes) + 2 + len(keyBytes) + 8 + 4 + len(payloadBytes)
	buf := make([]byte, total)

	pos := 0
	buf[pos] = byte(ev.Kind)
	pos++

	binary.BigEndian.PutUint16(buf[pos:], uint16(len(idBytes)))
	pos += 2
	copy(buf[pos:], idBytes)
	pos += len(idBytes)

	binary.BigEndian.PutUint16(buf[pos:], uint16(len(keyBytes)))
	pos += 2
	copy(buf[pos:], keyBytes)
	pos += len(keyBytes)

	binary.BigEndian.PutUint64(buf[pos:], ev.ProducedAt)
	pos += 8

	binary.BigEndian.PutUint32(buf[pos:], uint32(len(payloadBytes)))
	pos += 4
	copy(buf[pos:], payloadBytes)

	return buf, nil
}

// DecodeEvent deserializes a frame produced by EncodeEvent.
func DecodeEvent(data []byte) (types.Event, error) {
	var ev types.Event
	if len(data) < 17 {
		return ev, fmt.Errorf("event frame too short: %d bytes", len(data))
	}

	pos := 0
	ev.Kind = types.EventKind(data[pos])
	pos++

	idLen := int(binary.BigEndian.Uint16(data[pos:]))
	pos += 2
	if pos+idLen > len(data) {
		return ev, fmt.Errorf("invalid event id length")
	}
	ev.ID = string(data[pos : pos+idLen])
	pos += idLen

	if pos+2 > len(data) {
		return ev, fmt.Errorf("invalid partition key length")
	}
	keyLen := int(binary.BigEndian.Uint16(data[pos:]))
	pos += 2
	if pos+keyLen > len(data) {
		return ev, fmt.Errorf("invalid partition key")
	}
	ev.Key = string(data[pos : pos+keyLen])
	pos += keyLen

	if pos+12 > len(data) {
		return ev, fmt.Errorf("invalid event header")
	}
	ev.ProducedAt = binary.BigEndian.Uint64(data[pos:])
	pos += 8

	payloadLen := int(binary.BigEndian.Uint32(data[pos:]))
	pos += 4
	if pos+payloadLen > len(data) {
		return ev, fmt.Errorf("invalid payload length")
	}
	ev.Payload = append([]byte(nil), data[pos:pos+payloadLen]...)

	return ev, nil
}

// WriteWithLength writes data with a 4-byte length prefix.
func WriteWithLength(conn net.Conn, data []byte) error {
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(data)))
	if _, err := conn.Write(lenBuf); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// ReadWithLength reads data with a 4-byte length prefix.
func ReadWithLength(conn net.Conn) ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(conn, lenBuf); err != nil {
		return nil, fmt.Errorf("read length: %w", err)
	}
	length := binary.BigEndian.Uint32(lenBuf)
	buf := make([]byte, length)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return buf, nil
}
