package fat

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

// validBPB returns a FAT32 boot sector with 70000 clusters of 4 sectors.
func validBPB() *BPB {
	return &BPB{
		Jmp:        [3]byte{0xEB, 0x3C, 0x90},
		BytsPerSec: 512,
		SecPerClus: 4,
		RsvdSecCnt: 32,
		NumFATs:    2,
		TotSec32:   32 + 2*600 + 4*70000,
		FATSz32:    600,
		RootClus:   2,
		Signature:  [2]byte{0x55, 0xAA},
	}
}

func TestParseBPB_Valid(t *testing.T) {
	raw := validBPB().Encode()
	if len(raw) != BootSectorSize {
		t.Fatalf("Encode produced %d bytes", len(raw))
	}
	if raw[510] != 0x55 || raw[511] != 0xAA || raw[11] != 0x00 || raw[12] != 0x02 {
		t.Fatalf("unexpected encoding: sig=%x %x bps=%x %x", raw[510], raw[511], raw[11], raw[12])
	}

	b, err := ParseBPB(raw, true)
	if err != nil {
		t.Fatalf("ParseBPB: %v", err)
	}
	if b.ClusterCount() != 70000 {
		t.Errorf("ClusterCount=%d want 70000", b.ClusterCount())
	}
	if b.Type() != FAT32 {
		t.Errorf("Type=%v", b.Type())
	}
	if b.FATSize() != 600 || b.TotalSectors() != b.TotSec32 {
		t.Errorf("FATSize=%d TotalSectors=%d", b.FATSize(), b.TotalSectors())
	}
	if b.ClusterSize() != 2048 {
		t.Errorf("ClusterSize=%d", b.ClusterSize())
	}
}

func TestValidate_SingleFieldFlips(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *BPB)
		want   error
	}{
		{"jump", func(b *BPB) { b.Jmp = [3]byte{0x00, 0x3C, 0x90} }, ErrInvalidJmp},
		{"short jump without nop", func(b *BPB) { b.Jmp[2] = 0x00 }, ErrInvalidJmp},
		{"bytes per sector", func(b *BPB) { b.BytsPerSec = 500 }, ErrInvalidBytesPerSec},
		{"sectors per cluster", func(b *BPB) { b.SecPerClus = 3 }, ErrInvalidSecPerClus},
		{"cluster size", func(b *BPB) { b.BytsPerSec = 4096; b.SecPerClus = 16 }, ErrInvalidClusSz},
		{"signature", func(b *BPB) { b.Signature = [2]byte{0xAA, 0x55} }, ErrInvalidSignature},
		{"too few clusters", func(b *BPB) { b.TotSec32 = 20000 }, ErrUnsupportedFATType},
		{"reserved sectors", func(b *BPB) { b.RsvdSecCnt = 0 }, ErrInvalidRsvdSecCnt},
		{"number of FATs", func(b *BPB) { b.NumFATs = 0 }, ErrInvalidNumFat},
		{"root entry count", func(b *BPB) { b.RootEntCnt = 16 }, ErrInvalidRootEntCnt},
		{"FAT size 16", func(b *BPB) { b.FATSz16 = 1 }, ErrInvalidFatSz},
		{"FAT size 32", func(b *BPB) { b.FATSz32 = 0 }, ErrInvalidFatSz},
		{"root cluster", func(b *BPB) { b.RootClus = 1 }, ErrInvalidRootClus},
		// a non-zero 16-bit sector count drives the classification below FAT32
		{"total sectors 16", func(b *BPB) { b.TotSec16 = 1000 }, ErrUnsupportedFATType},
		{"total sectors 32", func(b *BPB) { b.TotSec32 = 0 }, ErrUnsupportedFATType},
	}

	all := []error{
		ErrInvalidJmp, ErrInvalidBytesPerSec, ErrInvalidSecPerClus, ErrInvalidClusSz,
		ErrInvalidSignature, ErrUnsupportedFATType, ErrInvalidRsvdSecCnt, ErrInvalidNumFat,
		ErrInvalidRootEntCnt, ErrInvalidTotSec, ErrInvalidFatSz, ErrInvalidRootClus,
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := validBPB()
			tt.mutate(b)

			_, err := ParseBPB(b.Encode(), true)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err=%v want %v", err, tt.want)
			}
			for _, other := range all {
				if other != tt.want && errors.Is(err, other) {
					t.Errorf("err=%v also matches %v", err, other)
				}
			}
			var fe *Error
			if !errors.As(err, &fe) || fe.Kind() != tt.want.(*Error).Code.Kind() {
				t.Errorf("unexpected kind for %v", err)
			}
		})
	}
}

func TestValidate_AlternateJump(t *testing.T) {
	b := validBPB()
	b.Jmp = [3]byte{0xE9, 0x00, 0x00}
	if err := b.Validate(); err != nil {
		t.Fatalf("E9 jump must be accepted: %v", err)
	}
}

func TestValidate_ErrorValues(t *testing.T) {
	b := validBPB()
	b.BytsPerSec = 777
	var fe *Error
	if err := b.Validate(); !errors.As(err, &fe) || fe.Value != 777 {
		t.Fatalf("err=%v, want value 777", err)
	}

	b = validBPB()
	b.Jmp = [3]byte{0x12, 0x34, 0x56}
	if err := b.Validate(); !errors.As(err, &fe) || fe.Detail != "0x123456" {
		t.Fatalf("err=%v, want detail 0x123456", err)
	}
}

func TestParseBPB_WithoutValidation(t *testing.T) {
	garbage := bytes.Repeat([]byte{0xFF}, BootSectorSize)
	b, err := ParseBPB(garbage, false)
	if err != nil {
		t.Fatalf("unvalidated parse must succeed: %v", err)
	}
	if b.BytsPerSec != 0xFFFF {
		t.Fatalf("BytsPerSec=%#x", b.BytsPerSec)
	}

	zero, err := ParseBPB(make([]byte, BootSectorSize), false)
	if err != nil {
		t.Fatal(err)
	}
	if zero.ClusterCount() != 0 || zero.RootDirSectors() != 0 || zero.Type() != FAT12 {
		t.Fatalf("zero BPB: clusters=%d type=%v", zero.ClusterCount(), zero.Type())
	}
}

func TestParseBPB_ShortBuffer(t *testing.T) {
	_, err := ParseBPB(make([]byte, 100), false)
	if !errors.Is(err, ErrIO) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err=%v", err)
	}
}

func TestBPB_FAT16Geometry(t *testing.T) {
	b := &BPB{
		BytsPerSec: 512,
		SecPerClus: 4,
		RsvdSecCnt: 1,
		NumFATs:    2,
		RootEntCnt: 512,
		TotSec16:   40000,
		FATSz16:    40,
	}
	// root dir = 32 sectors, data = 40000-(1+80+32) = 39887 -> 9971 clusters
	if b.RootDirSectors() != 32 {
		t.Errorf("RootDirSectors=%d", b.RootDirSectors())
	}
	if b.ClusterCount() != 9971 || b.Type() != FAT16 {
		t.Errorf("clusters=%d type=%v", b.ClusterCount(), b.Type())
	}
	if b.FATSize() != 40 || b.TotalSectors() != 40000 {
		t.Errorf("FATSize=%d TotalSectors=%d", b.FATSize(), b.TotalSectors())
	}
	if err := b.Validate(); !errors.Is(err, ErrInvalidJmp) {
		t.Errorf("err=%v", err)
	}
}

func TestBPB_SixteenBitFieldsTakePrecedence(t *testing.T) {
	b := validBPB()
	b.FATSz16 = 10
	if b.Type() != FAT32 {
		t.Fatalf("Type=%v want FAT32", b.Type())
	}
	if b.FATSize() != 10 {
		t.Errorf("FATSize=%d want 10", b.FATSize())
	}
	overhead := uint32(b.RsvdSecCnt) + uint32(b.NumFATs)*b.FATSize()
	if want := (b.TotalSectors() - overhead) / uint32(b.SecPerClus); b.ClusterCount() != want {
		t.Errorf("ClusterCount=%d, region arithmetic gives %d", b.ClusterCount(), want)
	}
	if err := b.Validate(); !errors.Is(err, ErrInvalidFatSz) {
		t.Errorf("Validate err=%v want ErrInvalidFatSz", err)
	}

	b = validBPB()
	b.TotSec16 = 1000
	if b.TotalSectors() != 1000 {
		t.Errorf("TotalSectors=%d want 1000", b.TotalSectors())
	}
}

func TestBPB_Dump(t *testing.T) {
	b := validBPB()
	copy(b.OEMName[:], "MSWIN4.1")
	b.BootCode[0] = 0xFA

	var buf bytes.Buffer
	if err := b.Dump(&buf); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"BIOS Parameter Block (BPB):",
		"jmp                  0x0000: [EB 3C 90]",
		"oem_name             0x0003: MSWIN4.1",
		"bytes_per_sec        0x000B: 512",
		"root_clus            0x002C: 2",
		"fil_sys_type         0x0052:",
		"Boot Code 0x005A (420 bytes):",
		"  0x005A: FA 00",
		"Signature 0x01FE: [55 AA]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump missing %q", want)
		}
	}
}
