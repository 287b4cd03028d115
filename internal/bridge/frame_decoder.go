package bridge

import (
	"bytes"
	"encoding/json"
	"iter"
)

// MalformedLineFunc receives a complete line that was not valid JSON.
type MalformedLineFunc func(line []byte, err error)

// FrameDecoder splits a byte stream into newline-terminated JSON values. Chunks may cut a
// line anywhere; the unterminated tail is kept until a later chunk completes it.
//
// A FrameDecoder is not safe for concurrent use. Each worker output stream owns one.
type FrameDecoder struct {
	pending     []byte
	onMalformed MalformedLineFunc
}

func NewFrameDecoder(onMalformed MalformedLineFunc) *FrameDecoder {
	return &FrameDecoder{onMalformed: onMalformed}
}

// Feed appends chunk to the pending fragment and returns the values of every line the chunk
// completed. Lines are cut immediately, so the decoder state is already advanced when Feed
// returns; parsing happens while the sequence is ranged over. Blank lines are skipped and a
// malformed line is reported to the diagnostic callback without stopping the sequence.
func (slf *FrameDecoder) Feed(chunk []byte) iter.Seq[json.RawMessage] {
	lines := slf.cut(chunk)
	return func(yield func(json.RawMessage) bool) {
		for _, line := range lines {
			trimmed := bytes.TrimSpace(line)
			if len(trimmed) == 0 {
				continue
			}
			var value json.RawMessage
			if err := json.Unmarshal(trimmed, &value); err != nil {
				if slf.onMalformed != nil {
					slf.onMalformed(line, err)
				}
				continue
			}
			if !yield(value) {
				return
			}
		}
	}
}

// Pending returns a copy of the unterminated fragment.
func (slf *FrameDecoder) Pending() []byte {
	return bytes.Clone(slf.pending)
}

// Reset discards the pending fragment.
func (slf *FrameDecoder) Reset() {
	slf.pending = nil
}

func (slf *FrameDecoder) cut(chunk []byte) [][]byte {
	if len(chunk) == 0 {
		return nil
	}
	buf := append(slf.pending, chunk...)

	var lines [][]byte
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, buf[:i:i])
		buf = buf[i+1:]
	}
	// The tail is copied so completed lines never alias the next pending buffer.
	slf.pending = bytes.Clone(buf)
	return lines
}
