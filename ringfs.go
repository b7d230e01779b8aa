package ringfs

import (
	"errors"
	"fmt"

	"github.com/dsoprea/go-logging"
)

var (
	// ErrFormatInProgress means the scan saw a FORMATTING sector: a format
	// was interrupted and the partition must be re-formatted before use.
	ErrFormatInProgress = errors.New("partition format was interrupted")

	// ErrCorruptSector means a sector status was outside its legal chain
	// even after in-place repair.
	ErrCorruptSector = errors.New("corrupt sector status")

	// ErrVersionMismatch means a sector carries a schema version other than
	// the one the instance was initialized with.
	ErrVersionMismatch = errors.New("incompatible sector version")

	// ErrNoFreeSector means the single-free-sector invariant does not hold
	// on the medium.
	ErrNoFreeSector = errors.New("no free sector found")

	// ErrCorruptAppend means the current write sector is neither FREE nor
	// IN_USE.
	ErrCorruptAppend = errors.New("write sector corrupt")

	// ErrEmpty is returned by Fetch when the cursor has reached the write
	// head and there are no more objects to deliver.
	ErrEmpty = errors.New("no more objects")
)

// RingFS is one mounted ring-buffer partition. Initialize with NewRingFS and
// then either Format (new medium) or Scan (existing medium) before appending
// or fetching.
//
// An instance must be accessed by at most one goroutine at a time; callers
// serialize with their own mutual exclusion.
type RingFS struct {
	flash      Flash
	version    uint32
	objectSize int

	slotsPerSector int

	// read marks the oldest unretired object, write the next free slot, and
	// cursor the read-ahead position between them.
	read   Loc
	cursor Loc
	write  Loc
}

// NewRingFS returns a new RingFS instance over the given partition.
//
// version should be incremented whenever the stored object's semantics or
// size change in a backwards-incompatible way. objectSize is fixed for the
// lifetime of the partition.
func NewRingFS(flash Flash, version uint32, objectSize int) (fs *RingFS, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if flash.SectorCount() < 2 {
		log.Panicf("partition needs at least two sectors: (%d)", flash.SectorCount())
	}

	if objectSize <= 0 {
		log.Panicf("object-size not valid: (%d)", objectSize)
	}

	slotsPerSector := (flash.SectorSize() - sectorHeaderSize) / (slotHeaderSize + objectSize)
	if slotsPerSector < 1 {
		log.Panicf("object-size (%d) too large for sector-size (%d)", objectSize, flash.SectorSize())
	}

	fs = &RingFS{
		flash:          flash,
		version:        version,
		objectSize:     objectSize,
		slotsPerSector: slotsPerSector,
	}

	return fs, nil
}

// ObjectSize returns the configured object size, in bytes.
func (fs *RingFS) ObjectSize() int {
	return fs.objectSize
}

// SlotsPerSector returns the number of object slots each sector holds.
func (fs *RingFS) SlotsPerSector() int {
	return fs.slotsPerSector
}

// Version returns the schema version the instance was initialized with.
func (fs *RingFS) Version() uint32 {
	return fs.version
}

func (fs *RingFS) sectorAddress(sector int) int64 {
	return int64(fs.flash.SectorOffset()+sector) * int64(fs.flash.SectorSize())
}

func (fs *RingFS) readSectorHeader(sector int) (sh SectorHeader, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	raw := make([]byte, sectorHeaderSize)

	err = fs.flash.Read(fs.sectorAddress(sector), raw)
	log.PanicIf(err)

	sh, err = parseSectorHeader(raw)
	log.PanicIf(err)

	return sh, nil
}

func (fs *RingFS) sectorGetStatus(sector int) (status SectorStatus, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	raw := make([]byte, statusWordSize)

	err = fs.flash.Read(fs.sectorAddress(sector), raw)
	log.PanicIf(err)

	return SectorStatus(parseStatusWord(raw)), nil
}

func (fs *RingFS) sectorSetStatus(sector int, status SectorStatus) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	err = fs.flash.Program(fs.sectorAddress(sector), packStatusWord(uint32(status)))
	log.PanicIf(err)

	return nil
}

func (fs *RingFS) sectorSetVersion(sector int) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	err = fs.flash.Program(fs.sectorAddress(sector)+statusWordSize, packStatusWord(fs.version))
	log.PanicIf(err)

	return nil
}

// sectorReclaim takes a sector from any state back to FREE: record the
// intent, erase, program the version, mark FREE. Every program in the
// sequence only clears bits, so an interrupted reclaim is observed as
// ERASING (or, once the erase itself has run, ERASED) on the next scan and
// restarted.
func (fs *RingFS) sectorReclaim(sector int) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	err = fs.sectorSetStatus(sector, SectorErasing)
	log.PanicIf(err)

	err = fs.flash.SectorErase(fs.sectorAddress(sector))
	log.PanicIf(err)

	err = fs.sectorSetVersion(sector)
	log.PanicIf(err)

	err = fs.sectorSetStatus(sector, SectorFree)
	log.PanicIf(err)

	return nil
}

func (fs *RingFS) slotAddress(loc Loc) int64 {
	return fs.sectorAddress(loc.Sector) + sectorHeaderSize + int64((slotHeaderSize+fs.objectSize)*loc.Slot)
}

func (fs *RingFS) slotGetStatus(loc Loc) (status SlotStatus, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	raw := make([]byte, statusWordSize)

	err = fs.flash.Read(fs.slotAddress(loc), raw)
	log.PanicIf(err)

	return SlotStatus(parseStatusWord(raw)), nil
}

func (fs *RingFS) slotSetStatus(loc Loc, status SlotStatus) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	err = fs.flash.Program(fs.slotAddress(loc), packStatusWord(uint32(status)))
	log.PanicIf(err)

	return nil
}

// Format initializes an empty partition. Every sector is first poisoned with
// the FORMATTING mark so that a power loss mid-way is detectable on the next
// scan, then reclaimed to FREE with the instance's version.
func (fs *RingFS) Format() (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	for sector := 0; sector < fs.flash.SectorCount(); sector++ {
		err = fs.sectorSetStatus(sector, SectorFormatting)
		log.PanicIf(err)
	}

	for sector := 0; sector < fs.flash.SectorCount(); sector++ {
		err = fs.sectorReclaim(sector)
		log.PanicIf(err)
	}

	fs.read = Loc{}
	fs.write = Loc{}
	fs.cursor = Loc{}

	return nil
}

// Scan reconstructs the read and write heads from the medium after a mount.
// Partially erased sectors are repaired in place; a partially formatted
// partition, a corrupt sector, or a version mismatch make the scan fail, in
// which case the caller's remediation is to re-format.
func (fs *RingFS) Scan() (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	previousStatus := SectorFree

	// The read sector is the first IN_USE sector after a FREE one (or the
	// first overall); the write sector is the last IN_USE sector before a
	// FREE one (or the last overall).
	readSector := 0
	writeSector := fs.flash.SectorCount() - 1

	freeSeen := false
	usedSeen := false

	for sector := 0; sector < fs.flash.SectorCount(); sector++ {
		sh, err := fs.readSectorHeader(sector)
		log.PanicIf(err)

		status := sh.SectorStatus()

		if status == SectorFormatting {
			return ErrFormatInProgress
		}

		// Finish the job of an interrupted reclaim.
		if status == SectorErasing || status == SectorErased {
			err = fs.sectorReclaim(sector)
			log.PanicIf(err)

			status = SectorFree
		}

		// ERASED, ERASING and FORMATTING were consumed above; anything
		// else outside the chain is corruption.
		if status.IsLegal() != true {
			return ErrCorruptSector
		}

		// The version as read at the top of the loop. A sector whose erase
		// was never completed with a version program fails here even after
		// the repair; the remediation is to re-format.
		if sh.Version != fs.version {
			return ErrVersionMismatch
		}

		if status == SectorFree {
			freeSeen = true
		}

		if status == SectorInUse {
			usedSeen = true
		}

		if status == SectorInUse && previousStatus == SectorFree {
			readSector = sector
		}

		if status == SectorFree && previousStatus == SectorInUse {
			writeSector = sector - 1
		}

		previousStatus = status
	}

	if freeSeen != true {
		return ErrNoFreeSector
	}

	if usedSeen != true {
		// Empty filesystem.
		writeSector = 0
	} else {
		// The boundary search can leave the read sector at its initial
		// value when the used run starts at sector zero. The ring is
		// contiguous, so wherever it landed must be IN_USE.
		status, err := fs.sectorGetStatus(readSector)
		log.PanicIf(err)

		if status != SectorInUse {
			return ErrCorruptSector
		}
	}

	// Skip the occupied slots at the front of the write sector. If the
	// sector proves full, this legitimately lands at the start of the next,
	// FREE, sector.
	fs.write = Loc{Sector: writeSector}
	for fs.write.Sector == writeSector {
		status, err := fs.slotGetStatus(fs.write)
		log.PanicIf(err)

		if status == SlotErased {
			break
		}

		fs.advanceSlot(&fs.write)
	}

	// Put the read head on the first object of value, skipping garbage and
	// uncommitted slots. Reaching the write head means there is no data.
	fs.read = Loc{Sector: readSector}
	for fs.read.equal(fs.write) != true {
		status, err := fs.slotGetStatus(fs.read)
		log.PanicIf(err)

		if status == SlotValid {
			break
		}

		fs.advanceSlot(&fs.read)
	}

	fs.cursor = fs.read

	return nil
}

// Capacity returns the maximum number of objects the partition can hold. One
// sector is always kept FREE, so it is one sector short of the whole ring.
func (fs *RingFS) Capacity() int {
	return fs.slotsPerSector * (fs.flash.SectorCount() - 1)
}

// CountEstimate returns an O(1) approximation of the number of stored
// objects. It treats the span between the read and write heads as
// contiguous, so garbage and uncommitted slots inside it are overcounted.
func (fs *RingFS) CountEstimate() int {
	sectorDiff := (fs.write.Sector - fs.read.Sector + fs.flash.SectorCount()) % fs.flash.SectorCount()

	return sectorDiff*fs.slotsPerSector + fs.write.Slot - fs.read.Slot
}

// CountExact returns the exact number of stored objects. It walks the span
// between the read and write heads, so it is O(n) in the queue length.
func (fs *RingFS) CountExact() (count int, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	loc := fs.read
	for loc.equal(fs.write) != true {
		status, err := fs.slotGetStatus(loc)
		log.PanicIf(err)

		if status == SlotValid {
			count++
		}

		fs.advanceSlot(&loc)
	}

	return count, nil
}

// Append stores one object at the end of the ring. When the ring is full the
// oldest sector is silently reclaimed to make room; the caller receives no
// warning of the overwrite.
func (fs *RingFS) Append(object []byte) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if len(object) != fs.objectSize {
		log.Panicf("object length (%d) does not match configured object-size (%d)", len(object), fs.objectSize)
	}

	// Three sectors are involved in an append: the sector being written,
	// which has to be writable; the next one, which must be FREE at all
	// times; and the one after that, where the read heads are moved if the
	// reclaim below collides with them.

	nextSector := (fs.write.Sector + 1) % fs.flash.SectorCount()

	status, err := fs.sectorGetStatus(nextSector)
	log.PanicIf(err)

	if status != SectorFree {
		// The ring has wrapped; the oldest sector has to go. Move the read
		// heads out of the way first.
		if fs.read.Sector == nextSector {
			fs.advanceSector(&fs.read)
		}

		if fs.cursor.Sector == nextSector {
			fs.advanceSector(&fs.cursor)
		}

		err = fs.sectorReclaim(nextSector)
		log.PanicIf(err)
	}

	status, err = fs.sectorGetStatus(fs.write.Sector)
	log.PanicIf(err)

	if status == SectorFree {
		err = fs.sectorSetStatus(fs.write.Sector, SectorInUse)
		log.PanicIf(err)
	} else if status != SectorInUse {
		return ErrCorruptAppend
	}

	err = fs.slotSetStatus(fs.write, SlotReserved)
	log.PanicIf(err)

	err = fs.flash.Program(fs.slotAddress(fs.write)+slotHeaderSize, object)
	log.PanicIf(err)

	err = fs.slotSetStatus(fs.write, SlotValid)
	log.PanicIf(err)

	fs.advanceSlot(&fs.write)

	return nil
}

// Fetch delivers the next object, oldest-first, into the given buffer and
// advances the read cursor past it. ErrEmpty means the cursor has reached
// the write head. The buffer must be ObjectSize() bytes.
func (fs *RingFS) Fetch(object []byte) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if len(object) != fs.objectSize {
		log.Panicf("object length (%d) does not match configured object-size (%d)", len(object), fs.objectSize)
	}

	for fs.cursor.equal(fs.write) != true {
		status, err := fs.slotGetStatus(fs.cursor)
		log.PanicIf(err)

		if status == SlotValid {
			err = fs.flash.Read(fs.slotAddress(fs.cursor)+slotHeaderSize, object)
			log.PanicIf(err)

			fs.advanceSlot(&fs.cursor)

			return nil
		}

		fs.advanceSlot(&fs.cursor)
	}

	return ErrEmpty
}

// Discard retires everything fetched so far: every slot from the read head
// up to the cursor is marked GARBAGE and can no longer be re-delivered.
func (fs *RingFS) Discard() (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	for fs.read.equal(fs.cursor) != true {
		err = fs.slotSetStatus(fs.read, SlotGarbage)
		log.PanicIf(err)

		fs.advanceSlot(&fs.read)
	}

	return nil
}

// ItemDiscard drops the single object at the read head without involving
// the cursor.
func (fs *RingFS) ItemDiscard() (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	err = fs.slotSetStatus(fs.read, SlotGarbage)
	log.PanicIf(err)

	fs.advanceSlot(&fs.read)

	return nil
}

// Rewind moves the cursor back to the read head. Objects fetched but not
// yet discarded will be delivered again.
func (fs *RingFS) Rewind() error {
	fs.cursor = fs.read

	return nil
}

// EraseSector reclaims one sector directly. Maintenance use only; the append
// path maintains the ring invariants on its own.
func (fs *RingFS) EraseSector(sector int) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if sector < 0 || sector >= fs.flash.SectorCount() {
		log.Panicf("sector (%d) not in partition", sector)
	}

	err = fs.sectorReclaim(sector)
	log.PanicIf(err)

	return nil
}

// Dump prints the cursors and a per-sector slot map.
func (fs *RingFS) Dump() {
	fmt.Printf("RingFS read: {%d,%d} cursor: {%d,%d} write: {%d,%d}\n",
		fs.read.Sector, fs.read.Slot,
		fs.cursor.Sector, fs.cursor.Slot,
		fs.write.Sector, fs.write.Slot)

	for sector := 0; sector < fs.flash.SectorCount(); sector++ {
		sh, err := fs.readSectorHeader(sector)
		log.PanicIf(err)

		fmt.Printf("[%04d] [v=0x%08x] [%-10s] ", sector, sh.Version, sh.SectorStatus())

		for slot := 0; slot < fs.slotsPerSector; slot++ {
			status, err := fs.slotGetStatus(Loc{Sector: sector, Slot: slot})
			log.PanicIf(err)

			fmt.Printf("%s", status.Mark())
		}

		fmt.Printf("\n")
	}
}
