// Host-side flash device backed by an ordinary file. It reproduces the NOR
// semantics the core depends on: Program can only clear bits (data is ANDed
// into the current contents) and SectorErase rewrites a whole sector to
// all-ones.

package ringfs

import (
	"os"

	"github.com/dsoprea/go-logging"
)

// FileFlash implements the Flash contract over a file image. It is used by
// the command tools and the test suite; it is not part of the ring
// algorithm.
type FileFlash struct {
	f *os.File

	sectorSize   int
	sectorOffset int
	sectorCount  int
}

// NewFileFlash opens (or creates) the image at the given path and sizes it
// to hold the whole medium, partition offset included.
func NewFileFlash(filepath string, sectorSize, sectorOffset, sectorCount int) (ff *FileFlash, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if sectorSize <= 0 || sectorCount <= 0 || sectorOffset < 0 {
		log.Panicf("geometry not valid: sector-size=(%d) sector-offset=(%d) sector-count=(%d)", sectorSize, sectorOffset, sectorCount)
	}

	f, err := os.OpenFile(filepath, os.O_RDWR|os.O_CREATE, 0644)
	log.PanicIf(err)

	mediumSize := int64(sectorOffset+sectorCount) * int64(sectorSize)

	fi, err := f.Stat()
	log.PanicIf(err)

	// A new chip arrives erased. Grow the image with all-ones rather than
	// the zeros a bare truncate would leave, which would read back as the
	// FORMATTING poison mark.
	if fi.Size() < mediumSize {
		empty := make([]byte, int(mediumSize-fi.Size()))
		for i := range empty {
			empty[i] = 0xFF
		}

		_, err = f.WriteAt(empty, fi.Size())
		log.PanicIf(err)
	}

	ff = &FileFlash{
		f:            f,
		sectorSize:   sectorSize,
		sectorOffset: sectorOffset,
		sectorCount:  sectorCount,
	}

	return ff, nil
}

// Close releases the underlying image file.
func (ff *FileFlash) Close() error {
	return ff.f.Close()
}

// SectorSize returns the size of one erase-sector, in bytes.
func (ff *FileFlash) SectorSize() int {
	return ff.sectorSize
}

// SectorOffset returns the partition offset, in sectors.
func (ff *FileFlash) SectorOffset() int {
	return ff.sectorOffset
}

// SectorCount returns the partition size, in sectors.
func (ff *FileFlash) SectorCount() int {
	return ff.sectorCount
}

// SectorErase rewrites the sector containing the address to all-ones.
func (ff *FileFlash) SectorErase(address int64) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	sectorStart := address - address%int64(ff.sectorSize)

	empty := make([]byte, ff.sectorSize)
	for i := range empty {
		empty[i] = 0xFF
	}

	_, err = ff.f.WriteAt(empty, sectorStart)
	log.PanicIf(err)

	return nil
}

// Program ANDs the data into the current contents at the address.
func (ff *FileFlash) Program(address int64, data []byte) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	current := make([]byte, len(data))

	_, err = ff.f.ReadAt(current, address)
	log.PanicIf(err)

	for i := range current {
		current[i] &= data[i]
	}

	_, err = ff.f.WriteAt(current, address)
	log.PanicIf(err)

	return nil
}

// Read fills the buffer from the address.
func (ff *FileFlash) Read(address int64, buffer []byte) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	_, err = ff.f.ReadAt(buffer, address)
	log.PanicIf(err)

	return nil
}
