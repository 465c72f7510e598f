package ipc

import "bytes"

// LineBuffer reassembles newline-delimited messages from arbitrary chunks.
type LineBuffer struct {
	buf        []byte
	max        int
	discarding bool
}

// NewLineBuffer returns a buffer that drops any line longer than max bytes.
// max <= 0 disables the limit.
func NewLineBuffer(max int) *LineBuffer {
	return &LineBuffer{max: max}
}

// Feed appends chunk and returns every complete, non-blank line, trimmed of
// surrounding whitespace. If a line was dropped for size, err is
// ErrLineTooLong; the remaining lines are still returned.
func (b *LineBuffer) Feed(chunk []byte) (lines [][]byte, err error) {
	b.buf = append(b.buf, chunk...)

	for {
		i := bytes.IndexByte(b.buf, '\n')
		if i < 0 {
			break
		}
		line := b.buf[:i]
		b.buf = b.buf[i+1:]

		if b.discarding {
			b.discarding = false
			continue
		}
		if b.max > 0 && len(line) > b.max {
			err = ErrLineTooLong
			continue
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		lines = append(lines, bytes.Clone(line))
	}

	if b.max > 0 && len(b.buf) > b.max {
		if !b.discarding {
			err = ErrLineTooLong
		}
		b.discarding = true
		b.buf = b.buf[:0]
	}
	if len(b.buf) == 0 {
		b.buf = nil
	}
	return lines, err
}

// Buffered reports how many bytes of an incomplete line are held.
func (b *LineBuffer) Buffered() int {
	return len(b.buf)
}
