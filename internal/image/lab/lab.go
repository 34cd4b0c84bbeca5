// Package lab hides data in the places of a FAT32 disk image that a
// file-level view does not show: the gap between the MBR and the first
// partition, volume slack, file slack and clusters marked as bad.
package lab

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/jack695/FATForensics/internal/config"
	"github.com/jack695/FATForensics/internal/image/disk"
	"github.com/jack695/FATForensics/internal/image/fat"
	"github.com/jack695/FATForensics/internal/utils/logger"
)

// Place identifies a hiding place.
type Place int

// Hiding places, in the order flags are assigned to them.
const (
	MBRGap Place = iota
	VolumeSlack
	FileSlack
	BadClusters
)

// PlaceCount is the number of hiding places.
const PlaceCount = 4

// ErrNoData is returned when asked to hide zero bytes.
var ErrNoData = errors.New("no data to hide")

func (p Place) String() string {
	switch p {
	case MBRGap:
		return "MBR gap"
	case VolumeSlack:
		return "volume slack"
	case FileSlack:
		return "file slack"
	case BadClusters:
		return "bad clusters"
	default:
		return fmt.Sprintf("place(%d)", int(p))
	}
}

// Location records where data was written.
type Location struct {
	Place Place
	// Offset is the byte offset of the first written byte in the image.
	Offset int64
	Bytes  int
	// Cluster is the first bad-marked cluster, zero for other places.
	Cluster uint32
	// Clusters is the number of bad-marked clusters.
	Clusters uint32
}

func (l Location) String() string {
	if l.Place == BadClusters {
		return fmt.Sprintf("%d bytes in %s %d..%d (offset %d)",
			l.Bytes, l.Place, l.Cluster, l.Cluster+l.Clusters-1, l.Offset)
	}
	return fmt.Sprintf("%d bytes in %s (offset %d)", l.Bytes, l.Place, l.Offset)
}

// Lab prepares a disk image holding exactly one FAT32 volume.
type Lab struct {
	disk   *disk.Disk
	volume *fat.Volume
	cfg    config.LabConfig
}

// New checks that d holds exactly one FAT32 volume.
func New(d *disk.Disk, cfg config.LabConfig) (*Lab, error) {
	vols := d.Volumes()
	if len(vols) != 1 {
		return nil, fmt.Errorf("the disk must hold exactly one volume, found %d", len(vols))
	}
	if vols[0].Type() != fat.FAT32 {
		return nil, fmt.Errorf("the volume must be FAT32, found %s", vols[0].Type())
	}
	return &Lab{disk: d, volume: vols[0], cfg: cfg}, nil
}

// Volume returns the FAT32 volume of the lab disk.
func (l *Lab) Volume() *fat.Volume { return l.volume }

// Hide writes data to the hiding place of the index-th flag.
func (l *Lab) Hide(index int, data []byte) (Location, error) {
	switch Place(index) {
	case MBRGap:
		return HideInMBRGap(l.disk, l.volume, l.cfg.MBRGapStartSector, data)
	case VolumeSlack:
		return HideInVolumeSlack(l.volume, data)
	case FileSlack:
		return HideInFileSlack(l.volume, l.cfg.FileSlackTarget, data)
	case BadClusters:
		return HideInBadClusters(l.volume, data)
	default:
		return Location{}, fmt.Errorf("unsupported flag count to hide: %d (at most %d)", index+1, PlaceCount)
	}
}

// HideInMBRGap writes data at sector start of the disk. The write must end
// before the first sector of v.
func HideInMBRGap(d *disk.Disk, v *fat.Volume, start uint64, data []byte) (Location, error) {
	if len(data) == 0 {
		return Location{}, fmt.Errorf("MBR gap: %w", ErrNoData)
	}
	bps := int64(d.SectorSize())
	limit := int64(v.Start()) * bps
	off := int64(start) * bps
	if err := d.WriteRaw(start, bytes.NewReader(data), int64(len(data)), limit); err != nil {
		return Location{}, fmt.Errorf("failed to hide %d bytes after the MBR: %w", len(data), err)
	}
	return logged(Location{Place: MBRGap, Offset: off, Bytes: len(data)}), nil
}

// HideInVolumeSlack writes data at the start of the volume slack.
func HideInVolumeSlack(v *fat.Volume, data []byte) (Location, error) {
	if len(data) == 0 {
		return Location{}, fmt.Errorf("volume slack: %w", ErrNoData)
	}
	if err := v.WriteToVolumeSlack(data); err != nil {
		return Location{}, fmt.Errorf("failed to write to volume slack: %w", err)
	}
	off := int64(v.DataEnd()) * int64(v.BPB().BytsPerSec)
	return logged(Location{Place: VolumeSlack, Offset: off, Bytes: len(data)}), nil
}

// HideInFileSlack writes data right after the end of the file at path.
func HideInFileSlack(v *fat.Volume, path string, data []byte) (Location, error) {
	if len(data) == 0 {
		return Location{}, fmt.Errorf("file slack of %s: %w", path, ErrNoData)
	}
	if err := v.WriteToFileSlack(path, data); err != nil {
		return Location{}, fmt.Errorf("failed to write to the file slack of %s: %w", path, err)
	}
	off, err := v.FileSlackOffset(path)
	if err != nil {
		return Location{}, err
	}
	return logged(Location{Place: FileSlack, Offset: off, Bytes: len(data)}), nil
}

// HideInBadClusters marks enough free clusters as bad to hold data, then
// writes data into them.
func HideInBadClusters(v *fat.Volume, data []byte) (Location, error) {
	if len(data) == 0 {
		return Location{}, fmt.Errorf("bad clusters: %w", ErrNoData)
	}
	cs := v.ClusterSize()
	count := uint32((uint64(len(data)) + uint64(cs) - 1) / uint64(cs))
	first, err := v.MarkAsBad(count)
	if err != nil {
		return Location{}, fmt.Errorf("failed to mark %d clusters as bad: %w", count, err)
	}

	sector, err := v.ClusterToSector(first)
	if err != nil {
		return Location{}, err
	}
	off := int64(sector) * int64(v.BPB().BytsPerSec)
	limit := off + int64(count)*int64(cs)
	if err := v.WriteRaw(sector, bytes.NewReader(data), int64(len(data)), limit); err != nil {
		return Location{}, fmt.Errorf("failed to write into bad clusters: %w", err)
	}
	return logged(Location{Place: BadClusters, Offset: off, Bytes: len(data), Cluster: first, Clusters: count}), nil
}

func logged(l Location) Location {
	logger.Logger().Infof("hid %s", l)
	return l
}
