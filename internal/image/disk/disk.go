// Package disk opens a raw disk image, parses its MBR partition table and
// exposes one FAT volume per FAT32 partition.
package disk

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/multierr"

	"github.com/jack695/FATForensics/internal/image/fat"
	"github.com/jack695/FATForensics/internal/image/mbr"
	"github.com/jack695/FATForensics/internal/image/sectorio"
	"github.com/jack695/FATForensics/internal/utils/logger"
)

// Partition is one non-empty MBR entry together with the volume found in
// it. Index is the zero-based slot in the partition table. Volume is nil when the partition type is not FAT32 or when its boot
// sector could not be parsed; Err then holds the parse failure, if any.
type Partition struct {
	Index  int
	Entry  mbr.Entry
	Volume *fat.Volume
	Err    error
}

// Supported reports whether a FAT32 volume was opened in the partition.
func (p Partition) Supported() bool { return p.Volume != nil }

// Disk is an opened disk image.
type Disk struct {
	path       string
	sectorSize int
	mbr        *mbr.MasterBootRecord
	partitions []Partition
	errs       error
}

// Open parses the MBR of the image at path and opens every FAT32
// partition. A partition whose boot sector fails to parse is logged,
// recorded in PartitionErrors and left without a volume; only MBR and I/O
// failures make Open fail.
func Open(path string, sectorSize int, validate bool) (*Disk, error) {
	log := logger.Logger()

	if sectorSize <= 0 {
		return nil, fmt.Errorf("invalid sector size %d", sectorSize)
	}
	total, err := sectorio.SectorCount(path, sectorSize)
	if err != nil {
		return nil, fmt.Errorf("failed to size disk image: %w", err)
	}

	var table *mbr.MasterBootRecord
	err = sectorio.OpenRead(path, func(f *os.File) error {
		var rerr error
		table, rerr = mbr.Read(f, sectorSize, total)
		return rerr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read partition table of %s: %w", path, err)
	}

	d := &Disk{path: path, sectorSize: sectorSize, mbr: table}
	for i, entry := range table.RawEntries() {
		if entry.IsEmpty() {
			continue
		}
		p := Partition{Index: i, Entry: entry}
		if !entry.Type.IsFat32() {
			log.Debugf("partition #%d has unsupported type %s", i+1, entry.Type)
			d.partitions = append(d.partitions, p)
			continue
		}

		vol, err := fat.Open(path, entry.LBAStart, entry.SectorCount, sectorSize, validate)
		if err != nil {
			p.Err = fmt.Errorf("partition #%d: %w", i+1, err)
			log.Warnf("skipping partition #%d at sector %d: %v", i+1, entry.LBAStart, err)
			d.errs = multierr.Append(d.errs, p.Err)
		} else {
			p.Volume = vol
		}
		d.partitions = append(d.partitions, p)
	}

	log.Debugf("opened %s: %d sectors, %d partitions, %d FAT volumes",
		path, total, len(d.partitions), len(d.Volumes()))
	return d, nil
}

// Path returns the image path.
func (d *Disk) Path() string { return d.path }

// SectorSize returns the sector size the disk was opened with.
func (d *Disk) SectorSize() int { return d.sectorSize }

// MBR returns the parsed partition table.
func (d *Disk) MBR() *mbr.MasterBootRecord { return d.mbr }

// Partitions returns every non-empty partition in table order.
func (d *Disk) Partitions() []Partition { return d.partitions }

// Volumes returns the opened FAT volumes in partition order.
func (d *Disk) Volumes() []*fat.Volume {
	var vols []*fat.Volume
	for _, p := range d.partitions {
		if p.Volume != nil {
			vols = append(vols, p.Volume)
		}
	}
	return vols
}

// Volume returns the i-th opened volume.
func (d *Disk) Volume(i int) (*fat.Volume, error) {
	vols := d.Volumes()
	if i < 0 || i >= len(vols) {
		return nil, fmt.Errorf("volume %d does not exist (disk has %d volumes)", i, len(vols))
	}
	return vols[i], nil
}

// PartitionErrors returns the combined parse failures of FAT32 partitions,
// or nil when every one of them opened.
func (d *Disk) PartitionErrors() error { return d.errs }

// Layout renders the partition table followed by the layout of every
// partition, three spaces deeper than the table.
func (d *Disk) Layout(indent int) string {
	var sb strings.Builder
	sb.WriteString(d.mbr.Layout(indent))
	pad := strings.Repeat(" ", indent+3)
	for _, p := range d.partitions {
		sb.WriteByte('\n')
		if p.Volume != nil {
			sb.WriteString(p.Volume.Layout(indent + 3))
			continue
		}
		fmt.Fprintf(&sb, "%sUnsupported volume in partition #%d (%s)\n", pad, p.Index+1, p.Entry.Type)
	}
	return sb.String()
}

// Tree writes the directory tree of every volume.
func (d *Disk) Tree(w io.Writer) error {
	for i, v := range d.Volumes() {
		if _, err := fmt.Fprintf(w, "Volume #%d (partition at sector %d):\n", i, v.Start()); err != nil {
			return err
		}
		if err := v.Tree(w); err != nil {
			return fmt.Errorf("volume #%d: %w", i, err)
		}
	}
	return nil
}

// WriteRaw copies length bytes from src to the given disk sector. A
// non-zero limit is a byte offset the write must not cross.
func (d *Disk) WriteRaw(sector uint64, src io.Reader, length int64, limit int64) error {
	bps := int64(d.sectorSize)
	return sectorio.OpenWrite(d.path, func(f *os.File) error {
		return sectorio.WriteFrom(f, int64(sector)*bps, src, length, d.sectorSize, limit)
	})
}
