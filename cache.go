package ringfs

import (
	"github.com/dsoprea/go-logging"
)

// WriteCache batches partial byte chunks in RAM and appends one object to
// the ring each time a full object's worth has accumulated. It is a
// convenience wrapper for producers whose records arrive in pieces; it
// participates in none of the ring invariants.
type WriteCache struct {
	fs *RingFS

	buffer []byte
	fill   int
}

// NewWriteCache returns a staging buffer sized to the instance's object
// size.
func NewWriteCache(fs *RingFS) *WriteCache {
	return &WriteCache{
		fs:     fs,
		buffer: make([]byte, fs.objectSize),
	}
}

// Buffered returns the number of staged bytes not yet appended.
func (wc *WriteCache) Buffered() int {
	return wc.fill
}

// Write stages the given bytes, appending an object to the ring each time
// the buffer fills. Implements io.Writer.
func (wc *WriteCache) Write(p []byte) (n int, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	for len(p) > 0 {
		copied := copy(wc.buffer[wc.fill:], p)

		wc.fill += copied
		p = p[copied:]
		n += copied

		if wc.fill == len(wc.buffer) {
			err = wc.fs.Append(wc.buffer)
			log.PanicIf(err)

			wc.fill = 0
		}
	}

	return n, nil
}

// Flush appends whatever is staged as one object, padding the unused tail
// with the erased bit pattern. A no-op when nothing is staged.
func (wc *WriteCache) Flush() (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if wc.fill == 0 {
		return nil
	}

	for i := wc.fill; i < len(wc.buffer); i++ {
		wc.buffer[i] = 0xFF
	}

	err = wc.fs.Append(wc.buffer)
	log.PanicIf(err)

	wc.fill = 0

	return nil
}
