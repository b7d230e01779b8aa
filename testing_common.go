package ringfs

import (
	"io/ioutil"
	"os"

	"github.com/dsoprea/go-logging"
)

// Small geometry so walks in the tests stay short: (128 - 8) / (4 + 16)
// gives six slots per sector.
const (
	testSectorSize  = 128
	testSectorCount = 4
	testObjectSize  = 16
	testVersion     = uint32(1)
)

func newTestFlash() (ff *FileFlash, cleanup func()) {
	f, err := ioutil.TempFile("", "ringfs-test-*.img")
	log.PanicIf(err)

	err = f.Close()
	log.PanicIf(err)

	ff, err = NewFileFlash(f.Name(), testSectorSize, 0, testSectorCount)
	log.PanicIf(err)

	cleanup = func() {
		ff.Close()
		os.Remove(f.Name())
	}

	return ff, cleanup
}

func newTestRingFS() (fs *RingFS, ff *FileFlash, cleanup func()) {
	ff, cleanup = newTestFlash()

	fs, err := NewRingFS(ff, testVersion, testObjectSize)
	log.PanicIf(err)

	err = fs.Format()
	log.PanicIf(err)

	return fs, ff, cleanup
}

func testObject(fill byte) []byte {
	object := make([]byte, testObjectSize)
	for i := range object {
		object[i] = fill
	}

	return object
}
