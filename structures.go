// This package manages the low-level, on-flash storage structures.

package ringfs

import (
	"fmt"

	"encoding/binary"

	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

const (
	// sectorHeaderSize is the number of bytes reserved at the front of every
	// sector for the sector header. The header is the authoritative location;
	// slots follow it at a fixed stride.
	sectorHeaderSize = 8

	// slotHeaderSize is the number of bytes of metadata in front of every
	// object payload.
	slotHeaderSize = 4

	statusWordSize = 4
)

var (
	defaultEncoding = binary.LittleEndian
)

// SectorStatus is the lifecycle state of one erase-sector. On flash it is a
// 32-bit little-endian word whose legal values form a monotone chain under
// bitwise AND: each transition only clears bits, so it can be applied with an
// ordinary program operation, without an erase, and is idempotent if repeated
// after an interrupted program.
type SectorStatus uint32

const (
	// SectorErased is the physical all-ones pattern left by a NOR erase.
	SectorErased SectorStatus = 0xFFFFFFFF

	// SectorFree means the sector has been erased and versioned, and is
	// available to the write head.
	SectorFree SectorStatus = 0xFFFFFF00

	// SectorInUse means the sector holds (or held) object slots.
	SectorInUse SectorStatus = 0xFFFF0000

	// SectorErasing records the intent to erase; a scan that observes it
	// finishes the reclaim.
	SectorErasing SectorStatus = 0xFF000000

	// SectorFormatting marks the whole partition as mid-rebuild. No legal
	// sequence of transitions reaches it except the format procedure itself.
	SectorFormatting SectorStatus = 0x00000000
)

// IsLegal indicates whether the raw word is a member of the status chain.
// Anything else is corruption.
func (ss SectorStatus) IsLegal() bool {
	switch ss {
	case SectorErased, SectorFree, SectorInUse, SectorErasing, SectorFormatting:
		return true
	}

	return false
}

// String returns a description of the sector status.
func (ss SectorStatus) String() string {
	switch ss {
	case SectorErased:
		return "ERASED"
	case SectorFree:
		return "FREE"
	case SectorInUse:
		return "IN_USE"
	case SectorErasing:
		return "ERASING"
	case SectorFormatting:
		return "FORMATTING"
	}

	return fmt.Sprintf("UNKNOWN<0x%08x>", uint32(ss))
}

// SlotStatus is the lifecycle state of one object slot. Same monotone-chain
// encoding as SectorStatus; slots never cycle individually, they return to
// ERASED only when their whole sector is erased.
type SlotStatus uint32

const (
	// SlotErased is the all-ones pattern of a slot that has never been
	// written since the last sector erase.
	SlotErased SlotStatus = 0xFFFFFFFF

	// SlotReserved means a write has started but is not yet committed.
	SlotReserved SlotStatus = 0xFFFFFF00

	// SlotValid means the write committed and the payload is deliverable.
	SlotValid SlotStatus = 0xFFFF0000

	// SlotGarbage means the object was discarded by the consumer.
	SlotGarbage SlotStatus = 0xFF000000
)

// String returns a description of the slot status.
func (ss SlotStatus) String() string {
	switch ss {
	case SlotErased:
		return "ERASED"
	case SlotReserved:
		return "RESERVED"
	case SlotValid:
		return "VALID"
	case SlotGarbage:
		return "GARBAGE"
	}

	return fmt.Sprintf("UNKNOWN<0x%08x>", uint32(ss))
}

// Mark returns the single-character rendering used by the sector maps that
// Dump() prints.
func (ss SlotStatus) Mark() string {
	switch ss {
	case SlotErased:
		return "E"
	case SlotReserved:
		return "R"
	case SlotValid:
		return "V"
	case SlotGarbage:
		return "G"
	}

	return "?"
}

// SectorHeader is the eight bytes at the front of every sector.
type SectorHeader struct {
	// Status: The sector lifecycle word. See SectorStatus.
	Status uint32

	// Version: The schema version programmed immediately after erase. A
	// mounted instance refuses sectors whose version differs from its own.
	Version uint32
}

// SectorStatus returns the typed status word.
func (sh SectorHeader) SectorStatus() SectorStatus {
	return SectorStatus(sh.Status)
}

// String returns a description of the header.
func (sh SectorHeader) String() string {
	return fmt.Sprintf("SectorHeader<STATUS=[%s] VERSION=(0x%08x)>", sh.SectorStatus(), sh.Version)
}

func parseSectorHeader(raw []byte) (sh SectorHeader, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	err = restruct.Unpack(raw, defaultEncoding, &sh)
	log.PanicIf(err)

	return sh, nil
}

func packStatusWord(value uint32) []byte {
	raw := make([]byte, statusWordSize)
	defaultEncoding.PutUint32(raw, value)

	return raw
}

func parseStatusWord(raw []byte) uint32 {
	return defaultEncoding.Uint32(raw)
}
