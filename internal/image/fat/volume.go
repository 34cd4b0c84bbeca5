// Package fat implements the FAT volume engine: BPB decoding and
// validation, region arithmetic, cluster-chain walking, directory listing,
// path resolution, bad-cluster marking and slack-space access.
//
// A Volume keeps only its geometry and the image path. Every operation opens
// the image for its own duration, so nothing is cached between calls.
package fat

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jack695/FATForensics/internal/image/sectorio"
	"github.com/jack695/FATForensics/internal/utils/logger"
)

// Volume is one FAT volume located inside a partition of a disk image.
type Volume struct {
	bpb   *BPB
	start uint32
	end   uint64
	path  string
}

// Open reads the boot sector at startSector of the image at path and
// returns the volume spanning sectorCount sectors.
func Open(path string, startSector, sectorCount uint32, sectorSize int, validate bool) (*Volume, error) {
	var bpb *BPB
	err := sectorio.OpenRead(path, func(f *os.File) error {
		var rerr error
		bpb, rerr = ReadBPB(f, uint64(startSector), sectorSize, validate)
		return rerr
	})
	if err != nil {
		return nil, wrapIO(err)
	}
	v := New(path, bpb, startSector, sectorCount)
	logger.Logger().Debugf("FAT volume at sector %d: type=%s clusters=%d cluster_size=%d",
		startSector, bpb.Type(), bpb.ClusterCount(), bpb.ClusterSize())
	return v, nil
}

// New builds a volume from an already decoded BPB.
func New(path string, bpb *BPB, startSector, sectorCount uint32) *Volume {
	return &Volume{
		bpb:   bpb,
		start: startSector,
		end:   uint64(startSector) + uint64(sectorCount),
		path:  path,
	}
}

// BPB returns the decoded boot sector.
func (v *Volume) BPB() *BPB { return v.bpb }

// Path returns the backing image path.
func (v *Volume) Path() string { return v.path }

// Type returns the FAT variant of the volume.
func (v *Volume) Type() Type { return v.bpb.Type() }

// Start returns the first sector of the partition.
func (v *Volume) Start() uint32 { return v.start }

// End returns the first sector after the partition.
func (v *Volume) End() uint64 { return v.end }

// ReservedStart returns the first sector of the reserved region.
func (v *Volume) ReservedStart() uint64 { return uint64(v.start) }

// FATStart returns the first sector of the first FAT.
func (v *Volume) FATStart() uint64 {
	return v.ReservedStart() + uint64(v.bpb.RsvdSecCnt)
}

// RootStart returns the first sector after the FATs. It only holds a root
// directory on FAT12/16.
func (v *Volume) RootStart() uint64 {
	return v.FATStart() + uint64(v.bpb.FATSize())*uint64(v.bpb.NumFATs)
}

// DataStart returns the sector of cluster 2.
func (v *Volume) DataStart() uint64 {
	return v.RootStart() + uint64(v.bpb.RootDirSectors())
}

// DataEnd returns the first sector after the last cluster.
func (v *Volume) DataEnd() uint64 {
	return v.DataStart() + uint64(v.bpb.ClusterCount())*uint64(v.bpb.SecPerClus)
}

// ClusterSize returns the cluster size in bytes.
func (v *Volume) ClusterSize() uint32 { return v.bpb.ClusterSize() }

// ClusterToSector returns the first sector of cluster c. Clusters 0 and 1
// do not address data.
func (v *Volume) ClusterToSector(c uint32) (uint64, error) {
	if c < 2 {
		return 0, invalidCluster(c)
	}
	return v.DataStart() + uint64(c-2)*uint64(v.bpb.SecPerClus), nil
}

func (v *Volume) bytesPerSec() int64 { return int64(v.bpb.BytsPerSec) }

// maxCluster returns the first cluster number past the data region.
func (v *Volume) maxCluster() uint32 { return v.bpb.ClusterCount() + 2 }

func (v *Volume) clusterOffset(c uint32) (int64, error) {
	sector, err := v.ClusterToSector(c)
	if err != nil {
		return 0, err
	}
	return int64(sector) * v.bytesPerSec(), nil
}

// fatEntryOffset returns the byte offset of the entry of cluster c in FAT
// copy n.
func (v *Volume) fatEntryOffset(c uint32, n uint32) int64 {
	fatStart := int64(v.FATStart()+uint64(n)*uint64(v.bpb.FATSize())) * v.bytesPerSec()
	return fatStart + int64(c)*int64(v.Type().EntryBits())/8
}

func (v *Volume) readFATEntry(r io.ReaderAt, c uint32) (uint32, error) {
	t := v.Type()
	off := v.fatEntryOffset(c, 0)
	switch t {
	case FAT32:
		var b [4]byte
		if err := sectorio.ReadFull(r, b[:], off); err != nil {
			return 0, ioError(err)
		}
		return binary.LittleEndian.Uint32(b[:]) & t.Mask(), nil
	case FAT16:
		var b [2]byte
		if err := sectorio.ReadFull(r, b[:], off); err != nil {
			return 0, ioError(err)
		}
		return uint32(binary.LittleEndian.Uint16(b[:])), nil
	default:
		var b [2]byte
		if err := sectorio.ReadFull(r, b[:], off); err != nil {
			return 0, ioError(err)
		}
		raw := binary.LittleEndian.Uint16(b[:])
		if c%2 == 1 {
			return uint32(raw >> 4), nil
		}
		return uint32(raw & 0x0FFF), nil
	}
}

func (v *Volume) readCluster(r io.ReaderAt, c uint32) ([]byte, error) {
	off, err := v.clusterOffset(c)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, v.ClusterSize())
	if err := sectorio.ReadFull(r, buf, off); err != nil {
		return nil, ioError(err)
	}
	return buf, nil
}

// NextCluster returns the raw FAT value stored for cluster c, masked to the
// entry width.
func (v *Volume) NextCluster(c uint32) (uint32, error) {
	if c < 2 || c >= v.maxCluster() {
		return 0, invalidCluster(c)
	}
	var next uint32
	err := v.withReader(func(r io.ReaderAt) error {
		var rerr error
		next, rerr = v.readFATEntry(r, c)
		return rerr
	})
	return next, err
}

// ListClusters follows the chain starting at start and returns every
// cluster in order. A chain that loops, leaves the data region, reaches a
// free entry or hits a bad-cluster marker yields CodeCorruptChain carrying
// the offending FAT value.
func (v *Volume) ListClusters(start uint32) ([]uint32, error) {
	var chain []uint32
	err := v.withReader(func(r io.ReaderAt) error {
		var rerr error
		chain, rerr = v.listClusters(r, start)
		return rerr
	})
	return chain, err
}

func (v *Volume) listClusters(r io.ReaderAt, start uint32) ([]uint32, error) {
	if start < 2 || start >= v.maxCluster() {
		return nil, invalidCluster(start)
	}
	t := v.Type()
	seen := make(map[uint32]struct{})
	chain := []uint32{}

	for c := start; ; {
		if _, ok := seen[c]; ok {
			return nil, corruptChain(c, "cluster %d is linked twice", c)
		}
		seen[c] = struct{}{}
		chain = append(chain, c)

		next, err := v.readFATEntry(r, c)
		if err != nil {
			return nil, err
		}
		switch {
		case t.IsEOC(next):
			return chain, nil
		case t.IsBad(next):
			return nil, corruptChain(next, "cluster %d is marked bad", c)
		case next < 2 || next >= v.maxCluster():
			return nil, corruptChain(next, "cluster %d links outside the data region", c)
		}
		c = next
	}
}

// ListDir decodes every directory slot of the chain starting at cluster
// whose first four bytes are not all zero. Deleted and long-name slots are
// returned too.
func (v *Volume) ListDir(cluster uint32) ([]DirEntry, error) {
	if err := v.requireFAT32("directory listing"); err != nil {
		return nil, err
	}
	var entries []DirEntry
	err := v.withReader(func(r io.ReaderAt) error {
		var rerr error
		entries, rerr = v.listDir(r, cluster)
		return rerr
	})
	return entries, err
}

func (v *Volume) listDir(r io.ReaderAt, cluster uint32) ([]DirEntry, error) {
	if cluster < 2 {
		return nil, invalidCluster(cluster)
	}
	chain, err := v.listClusters(r, cluster)
	if err != nil {
		return nil, err
	}

	var entries []DirEntry
	for _, c := range chain {
		buf, err := v.readCluster(r, c)
		if err != nil {
			return nil, err
		}
		for off := 0; off+DirEntrySize <= len(buf); off += DirEntrySize {
			slot := buf[off : off+DirEntrySize]
			if binary.LittleEndian.Uint32(slot) == 0 {
				continue
			}
			e, err := DecodeDirEntry(slot)
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// FindFile resolves a slash separated path of 8.3 names from the root
// directory. Intermediate components must be directories and the last one
// must not be.
func (v *Volume) FindFile(path string) (DirEntry, error) {
	if err := v.requireFAT32("path resolution"); err != nil {
		return DirEntry{}, err
	}
	var entry DirEntry
	err := v.withReader(func(r io.ReaderAt) error {
		var rerr error
		entry, rerr = v.findFile(r, path)
		return rerr
	})
	return entry, err
}

func (v *Volume) findFile(r io.ReaderAt, path string) (DirEntry, error) {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return DirEntry{}, &Error{Code: CodeFileNotFound, Detail: path}
	}

	dir := v.bpb.RootClus
	for i, part := range parts {
		wantDir := i < len(parts)-1
		entries, err := v.listDir(r, dir)
		if err != nil {
			return DirEntry{}, err
		}

		match, ok := matchEntry(entries, part, wantDir)
		if !ok {
			return DirEntry{}, &Error{Code: CodeFileNotFound, Detail: path}
		}
		if !wantDir {
			return match, nil
		}
		dir = match.ClusterNumber()
	}
	return DirEntry{}, &Error{Code: CodeFileNotFound, Detail: path}
}

func matchEntry(entries []DirEntry, name string, wantDir bool) (DirEntry, bool) {
	for _, e := range entries {
		if e.IsLongNameFragment() || e.IsDeleted() || e.IsVolumeLabel() {
			continue
		}
		if e.IsDir() != wantDir {
			continue
		}
		if e.SameShortName(name) {
			return e, true
		}
	}
	return DirEntry{}, false
}

func (v *Volume) requireFAT32(op string) error {
	if t := v.Type(); t != FAT32 {
		return unsupportedType(t, op)
	}
	return nil
}

func (v *Volume) withReader(fn func(r io.ReaderAt) error) error {
	return wrapIO(sectorio.OpenRead(v.path, func(f *os.File) error { return fn(f) }))
}

func (v *Volume) withWriter(fn func(f *os.File) error) error {
	return wrapIO(sectorio.OpenWrite(v.path, fn))
}

// wrapIO turns plain errors from the I/O layer into CodeIO errors and
// leaves package errors untouched.
func wrapIO(err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return ioError(err)
}

// String summarises the volume geometry.
func (v *Volume) String() string {
	return fmt.Sprintf("%s volume [%d, %d) cluster_size=%d clusters=%d",
		v.Type(), v.start, v.end, v.ClusterSize(), v.bpb.ClusterCount())
}
