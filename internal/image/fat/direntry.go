package fat

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"
)

// DirEntrySize is the size of one short directory entry.
const DirEntrySize = 32

// Directory entry attribute bits.
const (
	AttrReadOnly  uint8 = 0x01
	AttrHidden    uint8 = 0x02
	AttrSystem    uint8 = 0x04
	AttrVolumeID  uint8 = 0x08
	AttrDirectory uint8 = 0x10
	AttrArchive   uint8 = 0x20

	AttrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID
)

const deletedMarker = 0xE5

// DirEntry is a decoded 32-byte short directory entry.
type DirEntry struct {
	Name         [11]byte
	Attr         uint8
	NTRes        uint8
	CrtTimeTenth uint8
	CrtTime      uint16
	CrtDate      uint16
	LstAccDate   uint16
	FstClusHi    uint16
	WrtTime      uint16
	WrtDate      uint16
	FstClusLo    uint16
	FileSize     uint32
}

// DecodeDirEntry decodes the first 32 bytes of b.
func DecodeDirEntry(b []byte) (DirEntry, error) {
	if len(b) < DirEntrySize {
		return DirEntry{}, fmt.Errorf("directory entry is %d bytes, need %d", len(b), DirEntrySize)
	}
	var e DirEntry
	copy(e.Name[:], b[0:11])
	e.Attr = b[11]
	e.NTRes = b[12]
	e.CrtTimeTenth = b[13]
	e.CrtTime = binary.LittleEndian.Uint16(b[14:])
	e.CrtDate = binary.LittleEndian.Uint16(b[16:])
	e.LstAccDate = binary.LittleEndian.Uint16(b[18:])
	e.FstClusHi = binary.LittleEndian.Uint16(b[20:])
	e.WrtTime = binary.LittleEndian.Uint16(b[22:])
	e.WrtDate = binary.LittleEndian.Uint16(b[24:])
	e.FstClusLo = binary.LittleEndian.Uint16(b[26:])
	e.FileSize = binary.LittleEndian.Uint32(b[28:])
	return e, nil
}

// Encode returns the 32-byte on-disk form.
func (e DirEntry) Encode() [DirEntrySize]byte {
	var b [DirEntrySize]byte
	copy(b[0:11], e.Name[:])
	b[11] = e.Attr
	b[12] = e.NTRes
	b[13] = e.CrtTimeTenth
	binary.LittleEndian.PutUint16(b[14:], e.CrtTime)
	binary.LittleEndian.PutUint16(b[16:], e.CrtDate)
	binary.LittleEndian.PutUint16(b[18:], e.LstAccDate)
	binary.LittleEndian.PutUint16(b[20:], e.FstClusHi)
	binary.LittleEndian.PutUint16(b[22:], e.WrtTime)
	binary.LittleEndian.PutUint16(b[24:], e.WrtDate)
	binary.LittleEndian.PutUint16(b[26:], e.FstClusLo)
	binary.LittleEndian.PutUint32(b[28:], e.FileSize)
	return b
}

// ClusterNumber returns the first cluster of the entry.
func (e DirEntry) ClusterNumber() uint32 {
	return uint32(e.FstClusHi)<<16 | uint32(e.FstClusLo)
}

// SetClusterNumber splits c into the high and low halves.
func (e *DirEntry) SetClusterNumber(c uint32) {
	e.FstClusHi = uint16(c >> 16)
	e.FstClusLo = uint16(c)
}

// IsDir reports whether the directory attribute is set.
func (e DirEntry) IsDir() bool { return e.Attr&AttrDirectory != 0 }

// IsRegularDir reports whether the entry is a directory other than "." or "..".
func (e DirEntry) IsRegularDir() bool {
	if !e.IsDir() {
		return false
	}
	name := e.ShortName()
	return name != "." && name != ".."
}

// IsLongNameFragment reports whether the entry is a VFAT long-name slot.
func (e DirEntry) IsLongNameFragment() bool { return e.Attr&AttrLongName == AttrLongName }

// IsDeleted reports whether the slot was freed by a deletion.
func (e DirEntry) IsDeleted() bool { return e.Name[0] == deletedMarker }

// IsVolumeLabel reports whether the entry holds the volume label.
func (e DirEntry) IsVolumeLabel() bool {
	return !e.IsLongNameFragment() && e.Attr&AttrVolumeID != 0
}

// SameShortName reports whether query, rendered as an 8.3 name, equals the
// stored name. The comparison is case-insensitive.
func (e DirEntry) SameShortName(query string) bool {
	name, err := ShortName(query)
	if err != nil {
		return false
	}
	return name == e.Name
}

// ShortName renders the stored 8.3 name as "BASE.EXT". Non-ASCII bytes are
// quoted.
func (e DirEntry) ShortName() string {
	base := strings.TrimRight(string(e.Name[0:8]), " ")
	ext := strings.TrimRight(string(e.Name[8:11]), " ")
	if !utf8.ValidString(base) || !utf8.ValidString(ext) {
		return fmt.Sprintf("%q", e.Name[:])
	}
	base, ext = strings.ToUpper(base), strings.ToUpper(ext)
	if ext == "" {
		return base
	}
	return base + "." + ext
}

func (e DirEntry) String() string {
	return fmt.Sprintf("%q %dB", e.ShortName(), e.FileSize)
}

// ShortName converts a "name.ext" string into the space-padded, upper-case
// 11-byte form. The base may hold up to 8 characters and the extension up to 3.
func ShortName(name string) ([11]byte, error) {
	var out [11]byte
	base, ext, _ := strings.Cut(name, ".")
	if len(base) > 8 || len(ext) > 3 || strings.Contains(ext, ".") {
		return out, fmt.Errorf("%q is not a valid 8.3 name", name)
	}
	copy(out[:], fmt.Sprintf("%-8s%-3s", strings.ToUpper(base), strings.ToUpper(ext)))
	return out, nil
}
