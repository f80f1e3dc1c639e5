package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Opcode is the first byte of every frame.
type Opcode byte

const (
	OpCreateFile Opcode = 0x00
	OpDeleteFile Opcode = 0x01
	OpReadFile   Opcode = 0x02
	OpWriteFile  Opcode = 0x03
	OpMkdir      Opcode = 0x04
	OpListDir    Opcode = 0x05

	OpFileData Opcode = 0x10
	OpFileInfo Opcode = 0x11
	OpFileAck  Opcode = 0x12
)

var opNames = map[Opcode]string{
	OpCreateFile: "create",
	OpDeleteFile: "delete",
	OpReadFile:   "read",
	OpWriteFile:  "write",
	OpMkdir:      "mkdir",
	OpListDir:    "list",
	OpFileData:   "data",
	OpFileInfo:   "info",
	OpFileAck:    "ack",
}

func (o Opcode) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return fmt.Sprintf("op(0x%02x)", byte(o))
}

var (
	ErrEmptyFrame    = errors.New("empty frame")
	ErrShortPayload  = errors.New("payload too short")
	ErrFrameTooLarge = errors.New("frame exceeds mtu")
)

// Frame is a decoded opcode-tagged packet.
type Frame struct {
	Op      Opcode
	Payload []byte
}

// Size is the encoded length of f.
func (f Frame) Size() int { return 1 + len(f.Payload) }

// Bytes encodes f.
func (f Frame) Bytes() []byte { return Encode(f.Op, f.Payload) }

// Encode returns op‖payload. The payload is copied.
func Encode(op Opcode, payload []byte) []byte {
	b := make([]byte, 1+len(payload))
	b[0] = byte(op)
	copy(b[1:], payload)
	return b
}

// Decode splits b into opcode and payload. The payload aliases b.
func Decode(b []byte) (Frame, error) {
	if len(b) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	return Frame{Op: Opcode(b[0]), Payload: b[1:]}, nil
}

// CheckSize reports ErrFrameTooLarge when an encoded frame does not fit mtu.
func CheckSize(frame []byte, mtu int) error {
	if mtu > 0 && len(frame) > mtu {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(frame), mtu)
	}
	return nil
}

// NameCommand builds one of the name-only commands (create, delete, write,
// mkdir, list).
func NameCommand(op Opcode, name string) []byte {
	return Encode(op, []byte(name))
}

// ReadRequest builds the begin-read command:
//
//	| 0x02 | offset u32 LE | stride u32 LE | name |
func ReadRequest(offset, stride uint32, name string) []byte {
	b := make([]byte, 9+len(name))
	b[0] = byte(OpReadFile)
	binary.LittleEndian.PutUint32(b[1:5], offset)
	binary.LittleEndian.PutUint32(b[5:9], stride)
	copy(b[9:], name)
	return b
}

// ParseReadRequest is the inverse of ReadRequest applied to a decoded payload.
func ParseReadRequest(payload []byte) (offset, stride uint32, name string, err error) {
	if len(payload) < 8 {
		return 0, 0, "", ErrShortPayload
	}
	offset = binary.LittleEndian.Uint32(payload[0:4])
	stride = binary.LittleEndian.Uint32(payload[4:8])
	return offset, stride, string(payload[8:]), nil
}

// DataFrame builds a data frame. An empty chunk is the end-of-stream marker.
func DataFrame(seq uint8, chunk []byte) []byte {
	b := make([]byte, 2+len(chunk))
	b[0] = byte(OpFileData)
	b[1] = seq
	copy(b[2:], chunk)
	return b
}

// AckFrame builds an acknowledgment for seq.
func AckFrame(seq uint8) []byte {
	return []byte{byte(OpFileAck), seq}
}

// ParseData splits a data frame payload into its sequence number and chunk.
func ParseData(payload []byte) (seq uint8, chunk []byte, err error) {
	if len(payload) < 1 {
		return 0, nil, ErrShortPayload
	}
	return payload[0], payload[1:], nil
}

// ParseAck returns the sequence number carried by an acknowledgment payload.
func ParseAck(payload []byte) (uint8, error) {
	if len(payload) < 1 {
		return 0, ErrShortPayload
	}
	return payload[0], nil
}
