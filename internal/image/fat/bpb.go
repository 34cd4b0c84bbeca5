package fat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/jack695/FATForensics/internal/image/sectorio"
)

// BootSectorSize is the size of the decoded boot sector structure.
const BootSectorSize = 512

const maxClusterSize = 32 * 1024

var (
	validBytesPerSec = []uint16{512, 1024, 2048, 4096}
	validSecPerClus  = []uint8{1, 2, 4, 8, 16, 32, 64, 128}
	bootSignature    = [2]byte{0x55, 0xAA}
)

// BPB is the BIOS Parameter Block of a FAT boot sector, laid out exactly as
// on disk so it can be decoded and encoded with encoding/binary.
type BPB struct {
	Jmp        [3]byte
	OEMName    [8]byte
	BytsPerSec uint16
	SecPerClus uint8
	RsvdSecCnt uint16
	NumFATs    uint8
	RootEntCnt uint16
	TotSec16   uint16
	Media      uint8
	FATSz16    uint16
	SecPerTrk  uint16
	NumHeads   uint16
	HiddSec    uint32
	TotSec32   uint32
	FATSz32    uint32
	ExtFlags   uint16
	FSVer      uint16
	RootClus   uint32
	FSInfo     uint16
	BkBootSec  uint16
	Reserved   [12]byte
	DrvNum     uint8
	Reserved1  uint8
	BootSig    uint8
	VolID      uint32
	VolLab     [11]byte
	FilSysType [8]byte
	BootCode   [420]byte
	Signature  [2]byte
}

// ParseBPB decodes the first 512 bytes of buf. When validate is set the
// result must pass Validate; otherwise it is returned unchecked and derived
// geometry may be meaningless.
func ParseBPB(buf []byte, validate bool) (*BPB, error) {
	if len(buf) < BootSectorSize {
		return nil, ioError(fmt.Errorf("boot sector is %d bytes, need %d: %w", len(buf), BootSectorSize, io.ErrUnexpectedEOF))
	}
	var b BPB
	if err := binary.Read(bytes.NewReader(buf[:BootSectorSize]), binary.LittleEndian, &b); err != nil {
		return nil, ioError(fmt.Errorf("decode boot sector: %w", err))
	}
	if validate {
		if err := b.Validate(); err != nil {
			return nil, err
		}
	}
	return &b, nil
}

// ReadBPB reads the boot sector at the given sector number and decodes it.
func ReadBPB(r io.ReaderAt, sector uint64, sectorSize int, validate bool) (*BPB, error) {
	if sectorSize < BootSectorSize {
		return nil, ioError(fmt.Errorf("sector size %d is smaller than a boot sector", sectorSize))
	}
	buf, err := sectorio.ReadSector(r, sector, sectorSize)
	if err != nil {
		return nil, ioError(err)
	}
	return ParseBPB(buf, validate)
}

// Encode returns the 512-byte on-disk form.
func (b *BPB) Encode() []byte {
	var buf bytes.Buffer
	buf.Grow(BootSectorSize)
	// writes into a bytes.Buffer cannot fail for fixed-size structs
	_ = binary.Write(&buf, binary.LittleEndian, b)
	return buf.Bytes()
}

// RootDirSectors returns the number of sectors of the fixed FAT12/16 root
// directory, zero on FAT32.
func (b *BPB) RootDirSectors() uint32 {
	if b.BytsPerSec == 0 {
		return 0
	}
	bps := uint32(b.BytsPerSec)
	return (uint32(b.RootEntCnt)*32 + bps - 1) / bps
}

// ClusterCount returns the number of data clusters. Geometry that does not
// leave room for any data yields zero.
func (b *BPB) ClusterCount() uint32 {
	if b.SecPerClus == 0 {
		return 0
	}
	fatSz := uint64(b.FATSize())
	totSec := uint64(b.TotalSectors())
	overhead := uint64(b.RsvdSecCnt) + uint64(b.NumFATs)*fatSz + uint64(b.RootDirSectors())
	if overhead >= totSec {
		return 0
	}
	return uint32((totSec - overhead) / uint64(b.SecPerClus))
}

// Type classifies the volume from its cluster count. It is recomputed on
// every call.
func (b *BPB) Type() Type { return TypeForClusterCount(b.ClusterCount()) }

// FATSize returns the number of sectors occupied by one FAT: BPB_FATSz16
// when it is set, BPB_FATSz32 otherwise.
func (b *BPB) FATSize() uint32 {
	return pick16or32(b.FATSz16, b.FATSz32)
}

// TotalSectors returns the number of sectors covered by the volume:
// BPB_TotSec16 when it is set, BPB_TotSec32 otherwise.
func (b *BPB) TotalSectors() uint32 {
	return pick16or32(b.TotSec16, b.TotSec32)
}

func pick16or32(v16 uint16, v32 uint32) uint32 {
	if v16 != 0 {
		return uint32(v16)
	}
	return v32
}

// ClusterSize returns the cluster size in bytes.
func (b *BPB) ClusterSize() uint32 {
	return uint32(b.BytsPerSec) * uint32(b.SecPerClus)
}

// Validate runs the general checks followed by the FAT32 checks and returns
// the first failure.
func (b *BPB) Validate() error {
	if !(b.Jmp[0] == 0xEB && b.Jmp[2] == 0x90) && b.Jmp[0] != 0xE9 {
		return &Error{Code: CodeInvalidJmp, Detail: fmt.Sprintf("0x%02X%02X%02X", b.Jmp[0], b.Jmp[1], b.Jmp[2])}
	}
	if !slices.Contains(validBytesPerSec, b.BytsPerSec) {
		return &Error{Code: CodeInvalidBytesPerSec, Value: uint64(b.BytsPerSec)}
	}
	if !slices.Contains(validSecPerClus, b.SecPerClus) {
		return &Error{Code: CodeInvalidSecPerClus, Value: uint64(b.SecPerClus)}
	}
	if b.ClusterSize() > maxClusterSize {
		return &Error{Code: CodeInvalidClusSz, Value: uint64(b.ClusterSize())}
	}
	if b.Signature != bootSignature {
		return &Error{Code: CodeInvalidSignature, Detail: fmt.Sprintf("0x%02X%02X", b.Signature[0], b.Signature[1])}
	}
	if t := b.Type(); t != FAT32 {
		return &Error{Code: CodeUnsupportedFATType, Detail: t.String()}
	}
	return b.validateFAT32()
}

func (b *BPB) validateFAT32() error {
	switch {
	case b.RsvdSecCnt == 0:
		return &Error{Code: CodeInvalidRsvdSecCnt, Value: uint64(b.RsvdSecCnt)}
	case b.NumFATs == 0:
		return &Error{Code: CodeInvalidNumFat, Value: uint64(b.NumFATs)}
	case b.RootEntCnt != 0:
		return &Error{Code: CodeInvalidRootEntCnt, Value: uint64(b.RootEntCnt)}
	case b.TotSec16 != 0:
		return &Error{Code: CodeInvalidTotSec, Value: uint64(b.TotSec16), Detail: "BPB_TotSec16 must be 0 on FAT32"}
	case b.TotSec32 == 0:
		return &Error{Code: CodeInvalidTotSec, Value: 0, Detail: "BPB_TotSec32 must be greater than 0 on FAT32"}
	case b.FATSz16 != 0:
		return &Error{Code: CodeInvalidFatSz, Value: uint64(b.FATSz16), Detail: "BPB_FATSz16 must be 0 on FAT32"}
	case b.FATSz32 == 0:
		return &Error{Code: CodeInvalidFatSz, Value: 0, Detail: "BPB_FATSz32 must be greater than 0 on FAT32"}
	case b.RootClus < 2:
		return &Error{Code: CodeInvalidRootClus, Value: uint64(b.RootClus)}
	}
	return nil
}

// Dump writes every field with its byte offset, followed by a hexdump of the
// boot code and the trailing signature.
func (b *BPB) Dump(w io.Writer) error {
	var sb strings.Builder
	offset := 0
	field := func(name string, val any, size int) {
		fmt.Fprintf(&sb, "  %-20s 0x%04X: %v\n", name, offset, val)
		offset += size
	}

	sb.WriteString("BIOS Parameter Block (BPB):\n")
	field("jmp", fmt.Sprintf("[% X]", b.Jmp[:]), 3)
	field("oem_name", printable(b.OEMName[:]), 8)
	field("bytes_per_sec", b.BytsPerSec, 2)
	field("sec_per_clus", b.SecPerClus, 1)
	field("rsvd_sec_cnt", b.RsvdSecCnt, 2)
	field("num_fat", b.NumFATs, 1)
	field("root_ent_cnt", b.RootEntCnt, 2)
	field("tot_sec_16", b.TotSec16, 2)
	field("media", fmt.Sprintf("0x%X", b.Media), 1)
	field("fat_sz_16", b.FATSz16, 2)
	field("sec_per_trk", b.SecPerTrk, 2)
	field("num_heads", b.NumHeads, 2)
	field("hidd_sec", b.HiddSec, 4)
	field("tot_sec_32", b.TotSec32, 4)
	field("fat_sz_32", b.FATSz32, 4)
	field("ext_flags", b.ExtFlags, 2)
	field("fs_ver", b.FSVer, 2)
	field("root_clus", b.RootClus, 4)
	field("fs_info", b.FSInfo, 2)
	field("bk_boot_sec", b.BkBootSec, 2)
	field("reserved", fmt.Sprintf("[% X]", b.Reserved[:]), 12)
	field("drv_num", fmt.Sprintf("0x%X", b.DrvNum), 1)
	field("reserved_1", b.Reserved1, 1)
	field("boot_sig", fmt.Sprintf("0x%X", b.BootSig), 1)
	field("vol_id", fmt.Sprintf("0x%X", b.VolID), 4)
	field("vol_lab", printable(b.VolLab[:]), 11)
	field("fil_sys_type", printable(b.FilSysType[:]), 8)

	fmt.Fprintf(&sb, "\nBoot Code 0x%04X (%d bytes):\n", offset, len(b.BootCode))
	for i := 0; i < len(b.BootCode); i += 16 {
		end := min(i+16, len(b.BootCode))
		fmt.Fprintf(&sb, "  0x%04X: % X\n", offset+i, b.BootCode[i:end])
	}
	offset += len(b.BootCode)

	fmt.Fprintf(&sb, "\nSignature 0x%04X: [% X]\n", offset, b.Signature[:])

	_, err := io.WriteString(w, sb.String())
	return err
}

func printable(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c < 0x20 || c > 0x7E {
			c = '.'
		}
		out[i] = c
	}
	return string(out)
}
