package fat

import (
	"io"

	"github.com/jack695/FATForensics/internal/image/sectorio"
)

// ReadFile returns the content of the file at path, following its chain
// for FileSize bytes.
func (v *Volume) ReadFile(path string) ([]byte, error) {
	if err := v.requireFAT32("file extraction"); err != nil {
		return nil, err
	}
	var out []byte
	err := v.withReader(func(r io.ReaderAt) error {
		entry, err := v.findFile(r, path)
		if err != nil {
			return err
		}
		if entry.FileSize == 0 {
			out = []byte{}
			return nil
		}
		chain, err := v.listClusters(r, entry.ClusterNumber())
		if err != nil {
			return err
		}
		if need := uint64(entry.FileSize); uint64(len(chain))*uint64(v.ClusterSize()) < need {
			return corruptChain(uint32(len(chain)), "chain of %s holds %d clusters, too short for %d bytes",
				path, len(chain), need)
		}

		out = make([]byte, 0, entry.FileSize)
		remaining := int(entry.FileSize)
		for _, c := range chain {
			if remaining == 0 {
				break
			}
			buf, err := v.readCluster(r, c)
			if err != nil {
				return err
			}
			n := min(remaining, len(buf))
			out = append(out, buf[:n]...)
			remaining -= n
		}
		return nil
	})
	return out, err
}

// ReadClusters returns count contiguous clusters starting at start,
// regardless of what the FAT says about them.
func (v *Volume) ReadClusters(start, count uint32) ([]byte, error) {
	if start < 2 || start >= v.maxCluster() {
		return nil, invalidCluster(start)
	}
	if count == 0 {
		return []byte{}, nil
	}
	if uint64(start)+uint64(count) > uint64(v.maxCluster()) {
		return nil, invalidCluster(start + count - 1)
	}
	out := make([]byte, 0, uint64(count)*uint64(v.ClusterSize()))
	err := v.withReader(func(r io.ReaderAt) error {
		for c := start; c < start+count; c++ {
			buf, err := v.readCluster(r, c)
			if err != nil {
				return err
			}
			out = append(out, buf...)
		}
		return nil
	})
	return out, err
}

// ReadFileSlack returns every byte between the end of the file at path and
// the end of its last cluster.
func (v *Volume) ReadFileSlack(path string) ([]byte, error) {
	if err := v.requireFAT32("file slack extraction"); err != nil {
		return nil, err
	}
	var out []byte
	err := v.withReader(func(r io.ReaderAt) error {
		entry, chain, free, err := v.fileSlack(r, path)
		if err != nil {
			return err
		}
		out = make([]byte, 0, free)
		if free == 0 {
			return nil
		}

		cs := uint64(v.ClusterSize())
		first := uint64(entry.FileSize) / cs
		skip := uint64(entry.FileSize) % cs
		for _, c := range chain[first:] {
			buf, err := v.readCluster(r, c)
			if err != nil {
				return err
			}
			out = append(out, buf[skip:]...)
			skip = 0
		}
		return nil
	})
	return out, err
}

// ReadVolumeSlack returns the bytes between the end of the data region and
// the end of the partition.
func (v *Volume) ReadVolumeSlack() ([]byte, error) {
	size := v.VolumeSlackSize()
	out := make([]byte, size)
	if size == 0 {
		return out, nil
	}
	off := int64(v.DataEnd()) * v.bytesPerSec()
	err := v.withReader(func(r io.ReaderAt) error {
		if err := sectorio.ReadFull(r, out, off); err != nil {
			return ioError(err)
		}
		return nil
	})
	return out, err
}
