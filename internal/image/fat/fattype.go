package fat

import "fmt"

// Type is the FAT variant of a volume, derived from its cluster count.
type Type int

// FAT variants
const (
	FAT12 Type = iota + 1
	FAT16
	FAT32
)

// Cluster count thresholds separating the FAT variants.
const (
	fat16MinClusters = 4085
	fat32MinClusters = 65525
)

// TypeForClusterCount classifies a volume by its number of data clusters.
func TypeForClusterCount(n uint32) Type {
	switch {
	case n < fat16MinClusters:
		return FAT12
	case n < fat32MinClusters:
		return FAT16
	default:
		return FAT32
	}
}

func (t Type) String() string {
	switch t {
	case FAT12:
		return "FAT12"
	case FAT16:
		return "FAT16"
	case FAT32:
		return "FAT32"
	default:
		return fmt.Sprintf("FAT(%d)", int(t))
	}
}

type sentinels struct {
	bits uint32
	mask uint32
	eoc  uint32
	bad  uint32
}

var sentinelTable = map[Type]sentinels{
	FAT12: {bits: 12, mask: 0x00000FFF, eoc: 0x00000FF8, bad: 0x00000FF7},
	FAT16: {bits: 16, mask: 0x0000FFFF, eoc: 0x0000FFF8, bad: 0x0000FFF7},
	FAT32: {bits: 32, mask: 0x0FFFFFFF, eoc: 0x0FFFFFF8, bad: 0x0FFFFFF7},
}

// EntryBits returns the width of one FAT entry in bits.
func (t Type) EntryBits() uint32 { return sentinelTable[t].bits }

// Mask returns the bits of an entry that hold the cluster value.
func (t Type) Mask() uint32 { return sentinelTable[t].mask }

// IsEOC reports whether a masked FAT value ends a cluster chain.
func (t Type) IsEOC(v uint32) bool {
	s, ok := sentinelTable[t]
	return ok && v >= s.eoc
}

// BadClusterMarker returns the value marking a cluster as unusable.
func (t Type) BadClusterMarker() uint32 { return sentinelTable[t].bad }

// IsBad reports whether a masked FAT value is the bad-cluster marker.
func (t Type) IsBad(v uint32) bool {
	s, ok := sentinelTable[t]
	return ok && v == s.bad
}

// EndOfChain returns the value written to terminate a chain.
func (t Type) EndOfChain() uint32 { return sentinelTable[t].mask }
