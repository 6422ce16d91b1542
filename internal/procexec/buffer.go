package procexec

import "bytes"

// captureLimit bounds how much of a stream is retained. A runaway child
// writing gigabytes must not grow the memoized result with it.
const captureLimit = 1 << 20

// limitedBuffer keeps the first captureLimit bytes written and silently
// discards the rest, never failing the writer.
type limitedBuffer struct {
	buf       bytes.Buffer
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	remaining := captureLimit - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) Bytes() []byte {
	if b.truncated {
		return append(b.buf.Bytes(), []byte("\n[truncated]")...)
	}
	return b.buf.Bytes()
}
