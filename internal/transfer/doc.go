// Package transfer turns a lossy link.Link into a remote file interface.
//
// It provides three engines:
//
//   - Upload: a go-back-N sender. Up to WindowLength data frames are
//     outstanding at once; a missing acknowledgment rewinds the window to the
//     oldest unacknowledged frame and resends everything from there. The end
//     of the stream is an empty data frame carrying a real sequence number,
//     so it is retried like any other frame.
//   - Download: an acknowledged receiver. Only the next expected frame is
//     accepted and acknowledged; anything else is dropped without an ack,
//     which makes the device resend.
//   - ListDirectory: a best-effort collector of directory entry
//     notifications over a fixed time window.
//
// # Sequence numbers
//
// Counters are unbounded ints; only their low 8 bits go on the wire, and
// wire values are only ever compared for equality with the low 8 bits of the
// expected counter. This is correct as long as no two frames whose counters
// differ by 256 can be in flight at once, which Config.Validate enforces by
// bounding WindowLength to MaxWindowLength.
//
// # Concurrency
//
// Each engine runs in the calling goroutine. It consumes the link's inbound
// queue from its own select loop, so window and receive state are never
// shared with another goroutine.
package transfer
