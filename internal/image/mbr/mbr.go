// Package mbr decodes and validates the classic Master Boot Record
// partition table found in the first sector of a disk image.
package mbr

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jack695/FATForensics/internal/image/sectorio"
	"github.com/jack695/FATForensics/internal/utils/logger"
)

// On-disk layout of the partition table.
const (
	PartitionCount      = 4
	partitionTableStart = 446
	partitionEntrySize  = 16
	signatureOffset     = 510

	// BootSignature is the value of the little-endian u16 at offset 510.
	BootSignature uint16 = 0xAA55
)

// PartitionType is the raw partition type byte of a table entry.
type PartitionType uint8

// Fat32LBA is the only partition type opened as a volume.
const Fat32LBA PartitionType = 0x0C

// IsFat32 reports whether the entry is an LBA FAT32 partition.
func (t PartitionType) IsFat32() bool { return t == Fat32LBA }

func (t PartitionType) String() string {
	if t.IsFat32() {
		return "LBA FAT32"
	}
	return fmt.Sprintf("Unsupported: 0x%02X", uint8(t))
}

// Entry is one decoded partition table entry.
type Entry struct {
	Type        PartitionType `json:"type" yaml:"type"`
	LBAStart    uint32        `json:"lbaStart" yaml:"lbaStart"`
	SectorCount uint32        `json:"sectorCount" yaml:"sectorCount"`
}

// End returns the first sector after the partition.
func (e Entry) End() uint64 { return uint64(e.LBAStart) + uint64(e.SectorCount) }

// IsEmpty reports whether the slot is unused.
func (e Entry) IsEmpty() bool { return e.SectorCount == 0 }

// MasterBootRecord is a validated partition table. It can only be obtained
// through Parse or Read, so a value always satisfies the ordering, overlap
// and signature rules.
type MasterBootRecord struct {
	entries         [PartitionCount]Entry
	signature       uint16
	diskSectorCount uint64
}

// Parse decodes the partition table of the first disk sector in buf.
// totalSectors is the size of the whole disk in sectors. Checks run in
// order and the first failing one is returned.
func Parse(buf []byte, totalSectors uint64) (*MasterBootRecord, error) {
	if len(buf) < signatureOffset+2 {
		return nil, ioError(fmt.Errorf("boot sector is %d bytes, need at least %d: %w",
			len(buf), signatureOffset+2, io.ErrUnexpectedEOF))
	}

	m := &MasterBootRecord{
		signature:       binary.LittleEndian.Uint16(buf[signatureOffset:]),
		diskSectorCount: totalSectors,
	}
	for i := range m.entries {
		off := partitionTableStart + i*partitionEntrySize
		m.entries[i] = Entry{
			Type:        PartitionType(buf[off+0x04]),
			LBAStart:    binary.LittleEndian.Uint32(buf[off+0x08:]),
			SectorCount: binary.LittleEndian.Uint32(buf[off+0x0C:]),
		}
	}

	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Read reads sector 0 from r and parses it.
func Read(r io.ReaderAt, sectorSize int, totalSectors uint64) (*MasterBootRecord, error) {
	buf, err := sectorio.ReadSector(r, 0, sectorSize)
	if err != nil {
		return nil, ioError(err)
	}
	m, err := Parse(buf, totalSectors)
	if err != nil {
		return nil, err
	}
	logger.Logger().Debugf("MBR parsed: %d partition(s), %d disk sectors", len(m.Entries()), totalSectors)
	return m, nil
}

// Entries returns the non-empty entries in table order.
func (m *MasterBootRecord) Entries() []Entry {
	out := make([]Entry, 0, PartitionCount)
	for _, e := range m.entries {
		if !e.IsEmpty() {
			out = append(out, e)
		}
	}
	return out
}

// RawEntries returns all four slots, including empty ones.
func (m *MasterBootRecord) RawEntries() [PartitionCount]Entry { return m.entries }

// Signature returns the boot signature.
func (m *MasterBootRecord) Signature() uint16 { return m.signature }

// DiskSectorCount returns the disk size in sectors.
func (m *MasterBootRecord) DiskSectorCount() uint64 { return m.diskSectorCount }

func (m *MasterBootRecord) validate() error {
	entries := m.Entries()

	for i := 1; i < len(entries); i++ {
		if entries[i-1].LBAStart > entries[i].LBAStart {
			return ErrPartitionTableNotSorted
		}
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].End() > uint64(entries[i].LBAStart) {
			return ErrOverlappingPartitions
		}
	}
	if m.signature != BootSignature {
		return &Error{Code: CodeInvalidSignature, Signature: m.signature}
	}
	return nil
}
