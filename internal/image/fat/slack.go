package fat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/jack695/FATForensics/internal/image/sectorio"
	"github.com/jack695/FATForensics/internal/utils/logger"
)

// SlackWriter hides data in space allocated but not used by a volume or by
// one of its files.
type SlackWriter interface {
	WriteToVolumeSlack(data []byte) error
	WriteToFileSlack(path string, data []byte) error
}

var _ SlackWriter = (*Volume)(nil)

// VolumeSlackSize returns the number of bytes between the end of the data
// region and the end of the partition.
func (v *Volume) VolumeSlackSize() uint64 {
	if v.DataEnd() >= v.end {
		return 0
	}
	return (v.end - v.DataEnd()) * uint64(v.bpb.BytsPerSec)
}

// WriteToVolumeSlack writes data verbatim at the start of the volume slack.
func (v *Volume) WriteToVolumeSlack(data []byte) error {
	free := v.VolumeSlackSize()
	if uint64(len(data)) > free {
		return insufficientSlack(free, uint64(len(data)))
	}

	off := int64(v.DataEnd()) * v.bytesPerSec()
	logger.Logger().Debugf("writing %d bytes of volume slack at offset %d", len(data), off)
	return v.withWriter(func(f *os.File) error {
		return wrapIO(sectorio.WriteAt(f, off, data))
	})
}

// fileSlack locates the slack of the file at path: the chain, the file
// entry and the number of slack bytes.
func (v *Volume) fileSlack(r io.ReaderAt, path string) (DirEntry, []uint32, uint64, error) {
	entry, err := v.findFile(r, path)
	if err != nil {
		return DirEntry{}, nil, 0, err
	}
	if entry.ClusterNumber() == 0 {
		return entry, nil, 0, nil
	}
	chain, err := v.listClusters(r, entry.ClusterNumber())
	if err != nil {
		return DirEntry{}, nil, 0, err
	}
	allocated := uint64(len(chain)) * uint64(v.ClusterSize())
	if uint64(entry.FileSize) > allocated {
		return entry, chain, 0, nil
	}
	return entry, chain, allocated - uint64(entry.FileSize), nil
}

// FileSlackOffset returns the image byte offset of the first slack byte of
// the file at path. Files without slack fail with InsufficientSlackSpace.
func (v *Volume) FileSlackOffset(path string) (int64, error) {
	if err := v.requireFAT32("file slack lookup"); err != nil {
		return 0, err
	}
	var off int64
	err := v.withReader(func(r io.ReaderAt) error {
		entry, chain, free, err := v.fileSlack(r, path)
		if err != nil {
			return err
		}
		if free == 0 {
			return insufficientSlack(0, 1)
		}
		off, err = v.slackStart(entry, chain)
		return err
	})
	return off, err
}

// slackStart returns the offset right after the last byte of entry, inside
// the cluster holding that byte. The chain must have slack.
func (v *Volume) slackStart(entry DirEntry, chain []uint32) (int64, error) {
	cs := uint64(v.ClusterSize())
	base, err := v.clusterOffset(chain[uint64(entry.FileSize)/cs])
	if err != nil {
		return 0, err
	}
	return base + int64(uint64(entry.FileSize)%cs), nil
}

// WriteToFileSlack writes data right after the last byte of the file at
// path. The data must fit in the slack and must not cross the end of the
// cluster holding the end of the file. Clusters allocated past that one are
// left untouched.
func (v *Volume) WriteToFileSlack(path string, data []byte) error {
	if err := v.requireFAT32("file slack writing"); err != nil {
		return err
	}
	needed := uint64(len(data))

	var off int64
	var empty bool
	err := v.withReader(func(r io.ReaderAt) error {
		entry, chain, free, err := v.fileSlack(r, path)
		if err != nil {
			return err
		}
		if entry.FileSize == 0 && entry.ClusterNumber() == 0 {
			return insufficientSlack(0, needed)
		}
		if needed > free {
			return insufficientSlack(free, needed)
		}
		if needed == 0 {
			empty = true
			return nil
		}

		cs := uint64(v.ClusterSize())
		if needed > cs {
			return unsupportedFeature("writing %d bytes of file slack spans more than one cluster", needed)
		}
		within := uint64(entry.FileSize) % cs
		if within+needed > cs {
			return unsupportedFeature("writing %d bytes at offset %d of a %d-byte cluster crosses into the next cluster",
				needed, within, cs)
		}

		off, err = v.slackStart(entry, chain)
		return err
	})
	if err != nil || empty {
		return err
	}

	logger.Logger().Debugf("writing %d bytes of file slack for %s at offset %d", len(data), path, off)
	return v.withWriter(func(f *os.File) error {
		return wrapIO(sectorio.WriteAt(f, off, data))
	})
}

// MarkAsBad finds the first run of count consecutive clusters that are free
// in the FAT and zero-filled on disk, writes the bad-cluster marker for each
// of them into every FAT copy and returns the first cluster of the run.
func (v *Volume) MarkAsBad(count uint32) (uint32, error) {
	if err := v.requireFAT32("bad cluster marking"); err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, &Error{Code: CodeNoFreeClusterChain, Value: 0}
	}

	var start uint32
	found := false
	err := v.withReader(func(r io.ReaderAt) error {
		var rerr error
		start, found, rerr = v.findFreeRun(r, count)
		return rerr
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, &Error{Code: CodeNoFreeClusterChain, Value: uint64(count)}
	}

	err = v.withWriter(func(f *os.File) error {
		for c := start; c < start+count; c++ {
			if err := v.writeFATEntry(f, c, v.Type().BadClusterMarker()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	logger.Logger().Infof("marked clusters %d..%d as bad in %d FAT copies", start, start+count-1, v.bpb.NumFATs)
	return start, nil
}

func (v *Volume) findFreeRun(r io.ReaderAt, count uint32) (uint32, bool, error) {
	zero := make([]byte, v.ClusterSize())
	var run uint32
	start := uint32(2)

	for c := uint32(2); c < v.maxCluster(); c++ {
		free, err := v.isFreeCluster(r, c, zero)
		if err != nil {
			return 0, false, err
		}
		if !free {
			run = 0
			start = c + 1
			continue
		}
		run++
		if run == count {
			return start, true, nil
		}
	}
	return 0, false, nil
}

func (v *Volume) isFreeCluster(r io.ReaderAt, c uint32, zero []byte) (bool, error) {
	next, err := v.readFATEntry(r, c)
	if err != nil {
		return false, err
	}
	if next != 0 {
		return false, nil
	}
	buf, err := v.readCluster(r, c)
	if err != nil {
		return false, err
	}
	return bytes.Equal(buf, zero), nil
}

// writeFATEntry stores value for cluster c in every FAT copy. The reserved
// top four bits of FAT32 entries are preserved.
func (v *Volume) writeFATEntry(f *os.File, c uint32, value uint32) error {
	t := v.Type()
	for n := uint32(0); n < uint32(v.bpb.NumFATs); n++ {
		off := v.fatEntryOffset(c, n)
		switch t {
		case FAT32:
			var b [4]byte
			if err := sectorio.ReadFull(f, b[:], off); err != nil {
				return ioError(err)
			}
			old := binary.LittleEndian.Uint32(b[:])
			binary.LittleEndian.PutUint32(b[:], old&^t.Mask()|value&t.Mask())
			if err := sectorio.WriteAt(f, off, b[:]); err != nil {
				return ioError(err)
			}
		default:
			return unsupportedType(t, "FAT entry update")
		}
	}
	return nil
}

// WriteRaw copies length bytes from src to the disk-relative sector using
// the volume sector size. A non-zero limit is a byte offset the write must
// not cross.
func (v *Volume) WriteRaw(sector uint64, src io.Reader, length int64, limit int64) error {
	bps := v.bytesPerSec()
	if bps == 0 {
		return ioError(fmt.Errorf("volume at sector %d has no sector size", v.start))
	}
	return v.withWriter(func(f *os.File) error {
		return wrapIO(sectorio.WriteFrom(f, int64(sector)*bps, src, length, int(bps), limit))
	})
}
