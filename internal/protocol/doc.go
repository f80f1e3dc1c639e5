// Package protocol implements the wire format spoken over the two CRS
// characteristics of the device: opcode-tagged frames and the fixed 22-byte
// directory entry record.
//
// # Frames
//
// Every frame is a single opcode byte followed by an opcode-specific payload:
//
//	| op (1) | payload (0..MTU-1) |
//
// Data frames (OpFileData) and acknowledgments (OpFileAck) carry a one-byte
// sequence number as the first payload byte. Sequence numbers are the low
// 8 bits of an unbounded counter and must only ever be compared for
// equality; see package transfer for how windows are kept small enough for
// that to be safe.
//
// The codec is pure and stateless. It does not interpret payloads beyond
// what is needed to split them; semantic checks belong to the consumer.
package protocol
