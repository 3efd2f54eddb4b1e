package ipc

import "bytes"

// Framer splits a byte stream into newline-delimited messages.
// Bytes after the last newline are held until more data arrives.
// A Framer belongs to one connection and is not safe for concurrent use.
type Framer struct {
	pending []byte
}

// Feed appends data and calls emit once for every complete message, in order.
// Messages are decoded only once complete, so a multi-byte character split
// across reads is reassembled intact.
func (f *Framer) Feed(data []byte, emit func(msg string)) {
	f.pending = append(f.pending, data...)

	start := 0
	for {
		i := bytes.IndexByte(f.pending[start:], '\n')
		if i < 0 {
			break
		}
		emit(string(f.pending[start : start+i]))
		start += i + 1
	}

	if start > 0 {
		f.pending = append(f.pending[:0], f.pending[start:]...)
	}
}

// Pending returns the number of buffered bytes not yet terminated by a newline
func (f *Framer) Pending() int {
	return len(f.pending)
}

// Reset discards any buffered partial message
func (f *Framer) Reset() {
	f.pending = nil
}
