// Package prlsc implements the Prioritised Rate-Limited Serial
// Communications link layer: byte-level framing with escape encoding,
// frame-to-datagram reassembly per service, datagram-to-frame
// fragmentation, a per-service circular transmit buffer, and the
// priority/rate-limit arbiter that decides which service's next frame
// goes on the wire.
//
// The package never touches a UART, a clock, or a thread. A Bus is a
// set of pure functions over a state struct the caller owns; the
// embedding environment supplies time, checksum, byte-sink and
// datagram-sink callbacks and drives ReceiveByte/TxByte from whatever
// loop or interrupt context it prefers. See Config and NewBus.
package prlsc
