package reputation

import "bytes"

// cappedBuffer keeps at most limit bytes and silently drops the rest, so a
// chatty child never blocks on a full pipe.
type cappedBuffer struct {
	buf      bytes.Buffer
	limit    int64
	overflow bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - int64(b.buf.Len())
	if room <= 0 {
		b.overflow = b.overflow || len(p) > 0
		return len(p), nil
	}
	if int64(len(p)) > room {
		b.buf.Write(p[:room])
		b.overflow = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte    { return b.buf.Bytes() }
func (b *cappedBuffer) String() string   { return b.buf.String() }
func (b *cappedBuffer) Len() int         { return b.buf.Len() }
func (b *cappedBuffer) Overflowed() bool { return b.overflow }
