package imageinspect

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	diskmbr "github.com/diskfs/go-diskfs/partition/mbr"
	"go.uber.org/zap"

	"github.com/jack695/FATForensics/internal/image/disk"
	"github.com/jack695/FATForensics/internal/image/fat"
	"github.com/jack695/FATForensics/internal/image/mbr"
	"github.com/jack695/FATForensics/internal/utils/logger"
)

// ImageSummary holds the summary information about an inspected disk image.
type ImageSummary struct {
	File           string                `json:"file,omitempty" yaml:"file,omitempty"`
	SHA256         string                `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	SizeBytes      int64                 `json:"sizeBytes,omitempty" yaml:"sizeBytes,omitempty"`
	PartitionTable PartitionTableSummary `json:"partitionTable" yaml:"partitionTable"`
}

// PartitionTableSummary holds information about the MBR of the disk image.
type PartitionTableSummary struct {
	Type        string             `json:"type" yaml:"type"`
	SectorSize  int                `json:"sectorSize" yaml:"sectorSize"`
	DiskSectors uint64             `json:"diskSectors" yaml:"diskSectors"`
	Signature   string             `json:"signature" yaml:"signature"`
	Partitions  []PartitionSummary `json:"partitions,omitempty" yaml:"partitions,omitempty"`

	FreeSpans       []FreeSpanSummary `json:"freeSpans,omitempty" yaml:"freeSpans,omitempty"`
	LargestFreeSpan *FreeSpanSummary  `json:"largestFreeSpan,omitempty" yaml:"largestFreeSpan,omitempty"`
	// Notes lists disagreements with an independent partition table reader.
	Notes []string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// FreeSpanSummary captures an unallocated extent on disk (by LBA, inclusive).
type FreeSpanSummary struct {
	StartLBA  uint64 `json:"startLba" yaml:"startLba"`
	EndLBA    uint64 `json:"endLba" yaml:"endLba"`
	SizeBytes uint64 `json:"sizeBytes" yaml:"sizeBytes"`
}

// PartitionSummary holds information about a single MBR partition.
type PartitionSummary struct {
	Index     int            `json:"index" yaml:"index"`
	Type      string         `json:"type" yaml:"type"`
	TypeName  string         `json:"typeName,omitempty" yaml:"typeName,omitempty"`
	StartLBA  uint64         `json:"startLba" yaml:"startLba"`
	EndLBA    uint64         `json:"endLba" yaml:"endLba"`
	SizeBytes uint64         `json:"sizeBytes" yaml:"sizeBytes"`
	Volume    *VolumeSummary `json:"volume,omitempty" yaml:"volume,omitempty"` // nil if not FAT32
	Error     string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// VolumeSummary holds the geometry of a FAT volume.
type VolumeSummary struct {
	FATType           string          `json:"fatType" yaml:"fatType"`
	OEMName           string          `json:"oemName,omitempty" yaml:"oemName,omitempty"`
	Label             string          `json:"label,omitempty" yaml:"label,omitempty"`
	VolumeID          string          `json:"volumeId,omitempty" yaml:"volumeId,omitempty"`
	BytesPerSector    uint16          `json:"bytesPerSector" yaml:"bytesPerSector"`
	SectorsPerCluster uint8           `json:"sectorsPerCluster" yaml:"sectorsPerCluster"`
	ClusterSize       uint32          `json:"clusterSize" yaml:"clusterSize"`
	ReservedSectors   uint16          `json:"reservedSectors" yaml:"reservedSectors"`
	NumFATs           uint8           `json:"numFats" yaml:"numFats"`
	FATSectors        uint32          `json:"fatSectors" yaml:"fatSectors"`
	ClusterCount      uint32          `json:"clusterCount" yaml:"clusterCount"`
	RootCluster       uint32          `json:"rootCluster" yaml:"rootCluster"`
	Regions           []RegionSummary `json:"regions" yaml:"regions"`
	VolumeSlackBytes  uint64          `json:"volumeSlackBytes" yaml:"volumeSlackBytes"`
}

// RegionSummary is one region of a volume (by LBA, inclusive).
type RegionSummary struct {
	Name     string `json:"name" yaml:"name"`
	StartLBA uint64 `json:"startLba" yaml:"startLba"`
	EndLBA   uint64 `json:"endLba" yaml:"endLba"`
}

// Inspector opens images and summarizes them.
type Inspector struct {
	HashImages bool
	SectorSize int
	Validate   bool
	logger     *zap.SugaredLogger
}

// NewInspector returns an inspector for 512-byte sectors with boot sector
// validation enabled.
func NewInspector(hash bool) *Inspector {
	return &Inspector{HashImages: hash, SectorSize: 512, Validate: true, logger: logger.Logger()}
}

// Inspect opens the image at imagePath and summarizes it.
func (i *Inspector) Inspect(imagePath string) (*ImageSummary, error) {
	i.logger.Infof("Inspecting image: %s, hashImages=%v", imagePath, i.HashImages)

	d, err := disk.Open(imagePath, i.SectorSize, i.Validate)
	if err != nil {
		return nil, fmt.Errorf("open disk image: %w", err)
	}
	summary, err := Summarize(d)
	if err != nil {
		return nil, err
	}

	if i.HashImages {
		i.logger.Infof("Computing SHA256 for image: %s", imagePath)
		img, err := os.Open(imagePath)
		if err != nil {
			return nil, fmt.Errorf("open image: %w", err)
		}
		defer img.Close()
		if summary.SHA256, err = computeFileSHA256(img); err != nil {
			return nil, fmt.Errorf("sha256 image: %w", err)
		}
	}
	return summary, nil
}

// DisplaySummary renders summary as text.
func (i *Inspector) DisplaySummary(w io.Writer, summary *ImageSummary) {
	PrintSummary(w, summary)
}

// Summarize collects the partition table, the free extents and the volume
// geometry of an opened disk.
func Summarize(d *disk.Disk) (*ImageSummary, error) {
	fi, err := os.Stat(d.Path())
	if err != nil {
		return nil, fmt.Errorf("stat image: %w", err)
	}

	table := d.MBR()
	ss := d.SectorSize()
	pt := PartitionTableSummary{
		Type:        "mbr",
		SectorSize:  ss,
		DiskSectors: table.DiskSectorCount(),
		Signature:   fmt.Sprintf("0x%04X", table.Signature()),
	}

	for _, p := range d.Partitions() {
		ps := PartitionSummary{
			Index:     p.Index + 1,
			Type:      fmt.Sprintf("0x%02x", uint8(p.Entry.Type)),
			TypeName:  mbrTypeName(uint8(p.Entry.Type)),
			StartLBA:  uint64(p.Entry.LBAStart),
			EndLBA:    p.Entry.End() - 1,
			SizeBytes: uint64(p.Entry.SectorCount) * uint64(ss),
		}
		if p.Volume != nil {
			ps.Volume = summarizeVolume(p.Volume)
		}
		if p.Err != nil {
			ps.Error = p.Err.Error()
		}
		pt.Partitions = append(pt.Partitions, ps)
	}

	pt.FreeSpans = computeFreeSpans(pt.Partitions, int64(ss), table.DiskSectorCount())
	for idx := range pt.FreeSpans {
		pt.LargestFreeSpan = pickLarger(pt.LargestFreeSpan, &pt.FreeSpans[idx])
	}
	pt.Notes = crossCheck(d.Path(), ss, table)

	return &ImageSummary{
		File:           d.Path(),
		SizeBytes:      fi.Size(),
		PartitionTable: pt,
	}, nil
}

func summarizeVolume(v *fat.Volume) *VolumeSummary {
	b := v.BPB()
	vs := &VolumeSummary{
		FATType:           v.Type().String(),
		OEMName:           strings.TrimSpace(string(b.OEMName[:])),
		Label:             strings.TrimSpace(string(b.VolLab[:])),
		BytesPerSector:    b.BytsPerSec,
		SectorsPerCluster: b.SecPerClus,
		ClusterSize:       b.ClusterSize(),
		ReservedSectors:   b.RsvdSecCnt,
		NumFATs:           b.NumFATs,
		FATSectors:        b.FATSize(),
		ClusterCount:      b.ClusterCount(),
		RootCluster:       b.RootClus,
		VolumeSlackBytes:  v.VolumeSlackSize(),
	}
	if b.BootSig == 0x29 {
		vs.VolumeID = fmt.Sprintf("%04X-%04X", b.VolID>>16, b.VolID&0xFFFF)
	}

	add := func(name string, start, end uint64) {
		if end > start {
			vs.Regions = append(vs.Regions, RegionSummary{Name: name, StartLBA: start, EndLBA: end - 1})
		}
	}
	add("reserved", v.ReservedStart(), v.FATStart())
	fatSz := uint64(b.FATSize())
	for n := uint64(0); n < uint64(b.NumFATs); n++ {
		start := v.FATStart() + n*fatSz
		add(fmt.Sprintf("fat%d", n), start, start+fatSz)
	}
	add("root", v.RootStart(), v.DataStart())
	add("data", v.DataStart(), v.DataEnd())
	add("volume-slack", v.DataEnd(), v.End())
	return vs
}

// computeFreeSpans returns every unallocated extent, using LBAs. Sector 0
// holds the MBR and is never free.
func computeFreeSpans(parts []PartitionSummary, logicalBlockSize int64, totalSectors uint64) []FreeSpanSummary {
	if logicalBlockSize <= 0 || totalSectors <= 1 {
		return nil
	}

	// Parts are sorted by StartLBA, the MBR parser rejects anything else.
	var spans []FreeSpanSummary
	prevEnd := uint64(0)
	for _, p := range parts {
		if p.StartLBA > prevEnd+1 {
			if gap := buildSpan(prevEnd+1, p.StartLBA-1, logicalBlockSize); gap != nil {
				spans = append(spans, *gap)
			}
		}
		if p.EndLBA > prevEnd {
			prevEnd = p.EndLBA
		}
	}

	// Tail gap to end of disk
	if prevEnd+1 < totalSectors {
		if gap := buildSpan(prevEnd+1, totalSectors-1, logicalBlockSize); gap != nil {
			spans = append(spans, *gap)
		}
	}
	return spans
}

func buildSpan(start, end uint64, logicalBlockSize int64) *FreeSpanSummary {
	if end < start {
		return nil
	}
	size := (end - start + 1) * uint64(logicalBlockSize)
	return &FreeSpanSummary{StartLBA: start, EndLBA: end, SizeBytes: size}
}

func pickLarger(cur, cand *FreeSpanSummary) *FreeSpanSummary {
	if cand == nil {
		return cur
	}
	if cur == nil || cand.SizeBytes > cur.SizeBytes {
		return cand
	}
	return cur
}

// crossCheck reads the partition table again with go-diskfs and reports
// every entry the two readers disagree on.
func crossCheck(path string, sectorSize int, table *mbr.MasterBootRecord) []string {
	f, err := os.Open(path)
	if err != nil {
		return []string{fmt.Sprintf("cross-check skipped: %v", err)}
	}
	defer f.Close()

	other, err := diskmbr.Read(f, sectorSize, sectorSize)
	if err != nil {
		return []string{fmt.Sprintf("go-diskfs could not read the partition table: %v", err)}
	}

	var notes []string
	raw := table.RawEntries()
	for i, e := range raw {
		if i >= len(other.Partitions) || other.Partitions[i] == nil {
			if !e.IsEmpty() {
				notes = append(notes, fmt.Sprintf("partition %d missing from go-diskfs table", i+1))
			}
			continue
		}
		p := other.Partitions[i]
		if uint8(p.Type) != uint8(e.Type) || p.Start != e.LBAStart || p.Size != e.SectorCount {
			notes = append(notes, fmt.Sprintf("partition %d differs: type 0x%02x/0x%02x start %d/%d size %d/%d",
				i+1, uint8(e.Type), uint8(p.Type), e.LBAStart, p.Start, e.SectorCount, p.Size))
		}
	}
	return notes
}

func computeFileSHA256(f *os.File) (string, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
