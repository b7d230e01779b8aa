package ringfs

import (
	"bytes"
	"io/ioutil"
	"os"
	"testing"

	"github.com/dsoprea/go-logging"
)

func TestNewRingFS_validation(t *testing.T) {
	ff, cleanup := newTestFlash()

	defer cleanup()

	_, err := NewRingFS(ff, testVersion, 0)
	if err == nil {
		t.Fatalf("Zero object-size accepted.")
	}

	// Larger than a sector can hold.
	_, err = NewRingFS(ff, testVersion, testSectorSize)
	if err == nil {
		t.Fatalf("Oversized object accepted.")
	}

	fs, err := NewRingFS(ff, testVersion, testObjectSize)
	log.PanicIf(err)

	if fs.SlotsPerSector() != 6 {
		t.Fatalf("Slots-per-sector not correct: (%d)", fs.SlotsPerSector())
	} else if fs.ObjectSize() != testObjectSize {
		t.Fatalf("Object-size not correct: (%d)", fs.ObjectSize())
	} else if fs.Version() != testVersion {
		t.Fatalf("Version not correct: (%d)", fs.Version())
	}
}

func TestRingFS_Format(t *testing.T) {
	fs, _, cleanup := newTestRingFS()

	defer cleanup()

	for sector := 0; sector < testSectorCount; sector++ {
		sh, err := fs.readSectorHeader(sector)
		log.PanicIf(err)

		if sh.SectorStatus() != SectorFree {
			t.Fatalf("Sector (%d) not FREE after format: %s", sector, sh)
		} else if sh.Version != testVersion {
			t.Fatalf("Sector (%d) version not correct: %s", sector, sh)
		}

		for slot := 0; slot < fs.slotsPerSector; slot++ {
			status, err := fs.slotGetStatus(Loc{Sector: sector, Slot: slot})
			log.PanicIf(err)

			if status != SlotErased {
				t.Fatalf("Slot (%d,%d) not ERASED after format: %s", sector, slot, status)
			}
		}
	}

	if fs.read.equal(Loc{}) != true || fs.cursor.equal(Loc{}) != true || fs.write.equal(Loc{}) != true {
		t.Fatalf("Cursors not reset by format.")
	}
}

func TestRingFS_Capacity(t *testing.T) {
	fs, _, cleanup := newTestRingFS()

	defer cleanup()

	if fs.Capacity() != 6*(testSectorCount-1) {
		t.Fatalf("Capacity not correct: (%d)", fs.Capacity())
	}
}

func TestRingFS_AppendFetch(t *testing.T) {
	fs, _, cleanup := newTestRingFS()

	defer cleanup()

	original := testObject(0x41)

	err := fs.Append(original)
	log.PanicIf(err)

	err = fs.Scan()
	log.PanicIf(err)

	recovered := make([]byte, testObjectSize)

	err = fs.Fetch(recovered)
	log.PanicIf(err)

	if bytes.Equal(recovered, original) != true {
		t.Fatalf("Fetched object not correct: %x", recovered)
	}

	countExact, err := fs.CountExact()
	log.PanicIf(err)

	if countExact != 1 {
		t.Fatalf("Exact count not correct: (%d)", countExact)
	} else if fs.CountEstimate() != 1 {
		t.Fatalf("Estimated count not correct: (%d)", fs.CountEstimate())
	}
}

func TestRingFS_Fetch_empty(t *testing.T) {
	fs, _, cleanup := newTestRingFS()

	defer cleanup()

	object := make([]byte, testObjectSize)

	err := fs.Fetch(object)
	if err != ErrEmpty {
		t.Fatalf("Fetch on an empty ring did not return ErrEmpty: %v", err)
	}
}

func TestRingFS_Append_wraparound(t *testing.T) {
	fs, _, cleanup := newTestRingFS()

	defer cleanup()

	// Three data sectors of six slots each; the nineteenth append forces
	// the reclaim of sector zero and the first six objects are lost.
	appendCount := 3*fs.slotsPerSector + 1

	for i := 0; i < appendCount; i++ {
		err := fs.Append(testObject(byte(i)))
		log.PanicIf(err)
	}

	// The sector after the write head must still be FREE.
	nextSector := (fs.write.Sector + 1) % testSectorCount

	status, err := fs.sectorGetStatus(nextSector)
	log.PanicIf(err)

	if status != SectorFree {
		t.Fatalf("Sector after the write head not FREE: %s", status)
	}

	if fs.read.Sector != 1 {
		t.Fatalf("Read head did not move off the reclaimed sector: %s", fs.read)
	}

	countExact, err := fs.CountExact()
	log.PanicIf(err)

	expectedCount := 2*fs.slotsPerSector + 1
	if countExact != expectedCount {
		t.Fatalf("Exact count after wraparound not correct: (%d) != (%d)", countExact, expectedCount)
	}

	if fs.CountEstimate() < countExact {
		t.Fatalf("Estimate (%d) fell below exact count (%d).", fs.CountEstimate(), countExact)
	}

	// Delivery resumes at the oldest surviving object.
	object := make([]byte, testObjectSize)

	for i := 0; i < expectedCount; i++ {
		err := fs.Fetch(object)
		log.PanicIf(err)

		expected := testObject(byte(i + fs.slotsPerSector))
		if bytes.Equal(object, expected) != true {
			t.Fatalf("Object (%d) out of order: %x", i, object)
		}
	}

	err = fs.Fetch(object)
	if err != ErrEmpty {
		t.Fatalf("Ring not empty after fetching everything: %v", err)
	}
}

func TestRingFS_Discard(t *testing.T) {
	fs, _, cleanup := newTestRingFS()

	defer cleanup()

	for i := 0; i < 3; i++ {
		err := fs.Append(testObject(byte(i)))
		log.PanicIf(err)
	}

	object := make([]byte, testObjectSize)

	err := fs.Fetch(object)
	log.PanicIf(err)

	err = fs.Fetch(object)
	log.PanicIf(err)

	// Committing the consumption retires the two fetched objects.
	err = fs.Discard()
	log.PanicIf(err)

	countExact, err := fs.CountExact()
	log.PanicIf(err)

	if countExact != 1 {
		t.Fatalf("Exact count after discard not correct: (%d)", countExact)
	}

	for slot := 0; slot < 2; slot++ {
		status, err := fs.slotGetStatus(Loc{Slot: slot})
		log.PanicIf(err)

		if status != SlotGarbage {
			t.Fatalf("Discarded slot (%d) not GARBAGE: %s", slot, status)
		}
	}

	err = fs.Fetch(object)
	log.PanicIf(err)

	if bytes.Equal(object, testObject(2)) != true {
		t.Fatalf("Wrong object delivered after discard: %x", object)
	}
}

func TestRingFS_Rewind(t *testing.T) {
	fs, _, cleanup := newTestRingFS()

	defer cleanup()

	err := fs.Append(testObject(0xAA))
	log.PanicIf(err)

	first := make([]byte, testObjectSize)

	err = fs.Fetch(first)
	log.PanicIf(err)

	err = fs.Rewind()
	log.PanicIf(err)

	// Not discarded, so the rewind re-delivers the same object.
	second := make([]byte, testObjectSize)

	err = fs.Fetch(second)
	log.PanicIf(err)

	if bytes.Equal(first, second) != true {
		t.Fatalf("Rewound fetch did not re-deliver: %x != %x", first, second)
	}
}

func TestRingFS_ItemDiscard(t *testing.T) {
	fs, _, cleanup := newTestRingFS()

	defer cleanup()

	err := fs.Append(testObject(0x01))
	log.PanicIf(err)

	err = fs.Append(testObject(0x02))
	log.PanicIf(err)

	// Drop the head record without involving the cursor.
	err = fs.ItemDiscard()
	log.PanicIf(err)

	countExact, err := fs.CountExact()
	log.PanicIf(err)

	if countExact != 1 {
		t.Fatalf("Exact count after item-discard not correct: (%d)", countExact)
	}

	object := make([]byte, testObjectSize)

	err = fs.Fetch(object)
	log.PanicIf(err)

	if bytes.Equal(object, testObject(0x02)) != true {
		t.Fatalf("Wrong object delivered after item-discard: %x", object)
	}
}

func TestRingFS_persistence(t *testing.T) {
	ff, cleanup := newTestFlash()

	defer cleanup()

	fs1, err := NewRingFS(ff, testVersion, testObjectSize)
	log.PanicIf(err)

	err = fs1.Format()
	log.PanicIf(err)

	for i := 0; i < 4; i++ {
		err := fs1.Append(testObject(byte(0x10 + i)))
		log.PanicIf(err)
	}

	// A second instance over the same medium reconstructs the queue.
	fs2, err := NewRingFS(ff, testVersion, testObjectSize)
	log.PanicIf(err)

	err = fs2.Scan()
	log.PanicIf(err)

	countExact, err := fs2.CountExact()
	log.PanicIf(err)

	if countExact != 4 {
		t.Fatalf("Recovered count not correct: (%d)", countExact)
	}

	object := make([]byte, testObjectSize)

	err = fs2.Fetch(object)
	log.PanicIf(err)

	if bytes.Equal(object, testObject(0x10)) != true {
		t.Fatalf("Recovered object not correct: %x", object)
	}
}

func TestRingFS_EraseSector(t *testing.T) {
	fs, _, cleanup := newTestRingFS()

	defer cleanup()

	err := fs.Append(testObject(0x99))
	log.PanicIf(err)

	err = fs.EraseSector(0)
	log.PanicIf(err)

	sh, err := fs.readSectorHeader(0)
	log.PanicIf(err)

	if sh.SectorStatus() != SectorFree {
		t.Fatalf("Sector not FREE after direct erase: %s", sh)
	}

	err = fs.EraseSector(testSectorCount)
	if err == nil {
		t.Fatalf("Out-of-partition sector accepted.")
	}
}

func TestRingFS_Dump(t *testing.T) {
	fs, _, cleanup := newTestRingFS()

	defer cleanup()

	err := fs.Append(testObject(0x55))
	log.PanicIf(err)

	fs.Dump()
}

func TestRingFS_specGeometry(t *testing.T) {
	// The reference geometry: 64KiB sectors, four of them, 16-byte objects.

	f, err := ioutil.TempFile("", "ringfs-large-*.img")
	log.PanicIf(err)

	f.Close()

	defer os.Remove(f.Name())

	ff, err := NewFileFlash(f.Name(), 65536, 0, 4)
	log.PanicIf(err)

	defer ff.Close()

	fs, err := NewRingFS(ff, 1, 16)
	log.PanicIf(err)

	if fs.SlotsPerSector() != 3276 {
		t.Fatalf("Slots-per-sector not correct: (%d)", fs.SlotsPerSector())
	} else if fs.Capacity() != 3276*3 {
		t.Fatalf("Capacity not correct: (%d)", fs.Capacity())
	}

	err = fs.Format()
	log.PanicIf(err)

	original := make([]byte, 16)
	for i := range original {
		original[i] = 0x41
	}

	err = fs.Append(original)
	log.PanicIf(err)

	err = fs.Scan()
	log.PanicIf(err)

	recovered := make([]byte, 16)

	err = fs.Fetch(recovered)
	log.PanicIf(err)

	if bytes.Equal(recovered, original) != true {
		t.Fatalf("Fetched object not correct: %x", recovered)
	}

	countExact, err := fs.CountExact()
	log.PanicIf(err)

	if countExact != 1 || fs.CountEstimate() != 1 {
		t.Fatalf("Counts not correct: exact=(%d) estimate=(%d)", countExact, fs.CountEstimate())
	}
}
