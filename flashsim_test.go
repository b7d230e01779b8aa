package ringfs

import (
	"bytes"
	"testing"

	"github.com/dsoprea/go-logging"
)

func TestFileFlash_SectorErase(t *testing.T) {
	ff, cleanup := newTestFlash()

	defer cleanup()

	err := ff.Program(10, []byte{0x00, 0x00})
	log.PanicIf(err)

	// Any address inside the sector erases the whole sector.
	err = ff.SectorErase(17)
	log.PanicIf(err)

	buffer := make([]byte, testSectorSize)

	err = ff.Read(0, buffer)
	log.PanicIf(err)

	for i, c := range buffer {
		if c != 0xFF {
			t.Fatalf("Erase did not return byte (%d) to all-ones: (0x%02x)", i, c)
		}
	}
}

func TestFileFlash_Program_clearsBitsOnly(t *testing.T) {
	ff, cleanup := newTestFlash()

	defer cleanup()

	err := ff.SectorErase(0)
	log.PanicIf(err)

	err = ff.Program(0, []byte{0xF0})
	log.PanicIf(err)

	// Programming can not set bits back; the result is the AND of both
	// patterns.
	err = ff.Program(0, []byte{0xCC})
	log.PanicIf(err)

	buffer := make([]byte, 1)

	err = ff.Read(0, buffer)
	log.PanicIf(err)

	if buffer[0] != 0xC0 {
		t.Fatalf("Program did not AND into current contents: (0x%02x)", buffer[0])
	}
}

func TestFileFlash_Read(t *testing.T) {
	ff, cleanup := newTestFlash()

	defer cleanup()

	err := ff.SectorErase(0)
	log.PanicIf(err)

	data := []byte{0x12, 0x34, 0x56}

	err = ff.Program(5, data)
	log.PanicIf(err)

	buffer := make([]byte, 3)

	err = ff.Read(5, buffer)
	log.PanicIf(err)

	if bytes.Equal(buffer, data) != true {
		t.Fatalf("Read-back not correct: %x", buffer)
	}
}

func TestFileFlash_geometry(t *testing.T) {
	ff, cleanup := newTestFlash()

	defer cleanup()

	if ff.SectorSize() != testSectorSize {
		t.Fatalf("Sector-size not correct: (%d)", ff.SectorSize())
	} else if ff.SectorOffset() != 0 {
		t.Fatalf("Sector-offset not correct: (%d)", ff.SectorOffset())
	} else if ff.SectorCount() != testSectorCount {
		t.Fatalf("Sector-count not correct: (%d)", ff.SectorCount())
	}
}
