package serialport

// ToTransportBuffer copies caller bytes into a buffer owned by the transport.
// A nil input yields an empty, non-nil buffer.
func ToTransportBuffer(data []byte) []byte {
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf
}

// FromTransportBuffer copies a transport buffer into a caller-owned slice so
// the transport is free to reuse its read buffer.
func FromTransportBuffer(buf []byte) []byte {
	data := make([]byte, len(buf))
	copy(data, buf)
	return data
}

// StringToBuffer returns the UTF-8 bytes of s.
func StringToBuffer(s string) []byte {
	return []byte(s)
}
