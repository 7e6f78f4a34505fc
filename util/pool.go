package util

import "sync"

// DefaultBufSize is the standard scratch size for a single non-blocking
// read (16 KiB, one maximum-size TLS record).
const DefaultBufSize = 16 * 1024

// BufPool provides reusable read buffers, reducing GC pressure on the
// pump paths that run once per readiness notification.
var BufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, DefaultBufSize)
		return &buf
	},
}

// GetBuf retrieves a buffer from the pool.  Callers must return it
// with [PutBuf] when finished.
func GetBuf() *[]byte {
	return BufPool.Get().(*[]byte)
}

// PutBuf returns a buffer to the pool for reuse.
func PutBuf(buf *[]byte) {
	if buf == nil {
		return
	}
	BufPool.Put(buf)
}
