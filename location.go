package ringfs

import (
	"fmt"
)

// Loc addresses one slot as a (sector, slot) pair. Advancing past the last
// slot of a sector moves to the next sector; advancing past the last sector
// wraps to the first.
type Loc struct {
	Sector int
	Slot   int
}

// String returns a description of the location.
func (loc Loc) String() string {
	return fmt.Sprintf("Loc<SECTOR=(%d) SLOT=(%d)>", loc.Sector, loc.Slot)
}

func (loc Loc) equal(other Loc) bool {
	return loc.Sector == other.Sector && loc.Slot == other.Slot
}

// advanceSector moves the location to the first slot of the next sector,
// modulo the partition.
func (fs *RingFS) advanceSector(loc *Loc) {
	loc.Slot = 0

	loc.Sector++
	if loc.Sector >= fs.flash.SectorCount() {
		loc.Sector = 0
	}
}

// advanceSlot moves the location to the next slot, advancing the sector too
// if needed.
func (fs *RingFS) advanceSlot(loc *Loc) {
	loc.Slot++
	if loc.Slot >= fs.slotsPerSector {
		fs.advanceSector(loc)
	}
}
