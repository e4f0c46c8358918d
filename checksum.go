package prlsc

// frameChecksum computes the frame checksum over serviceCode||length||data,
// i.e. length+2 bytes starting at the service code byte in a raw frame
// buffer. The start byte and the checksum byte itself are excluded. No
// algorithm is mandated by the protocol; calc is the embedder-supplied
// callback.
func frameChecksum(calc func([]byte) uint8, rawFrame []byte, dataLen uint8) uint8 {
	return calc(rawFrame[1 : 3+int(dataLen)])
}

// datagramChecksum computes the datagram checksum over data[0:length],
// used only for diagnostics datagrams.
func datagramChecksum(calc func([]byte) uint8, data []byte, length int) uint8 {
	return calc(data[:length])
}
