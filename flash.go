// This package implements a persistent FIFO queue of fixed-size objects on
// top of raw NOR flash: objects are appended at the write head and fetched
// oldest-first, and a full ring silently reclaims its oldest sector.

package ringfs

// Flash is the device contract for one partition of NOR-style memory. The
// implementation is owned by the caller and stays opaque to the core.
//
// Addresses passed to the operations are absolute byte offsets into the
// underlying medium; the core applies the partition base itself from
// SectorOffset.
//
// NOR physics drive the contract: Program may only clear bits (the device
// ANDs the data into the current contents), and the only way to set bits
// back to one is SectorErase, which rewrites an entire sector to 0xFF.
type Flash interface {
	// SectorSize returns the size of one erase-sector, in bytes.
	SectorSize() int

	// SectorOffset returns the partition offset, in sectors.
	SectorOffset() int

	// SectorCount returns the partition size, in sectors.
	SectorCount() int

	// SectorErase erases the sector containing the given address back to
	// all-ones.
	SectorErase(address int64) error

	// Program clears bits: the device stores (current AND data) starting at
	// the given address. It must only be asked to clear 1-bits or rewrite
	// existing 0-bits.
	Program(address int64, data []byte) error

	// Read fills the buffer from the given address.
	Read(address int64, buffer []byte) error
}
