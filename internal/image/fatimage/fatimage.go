// Package fatimage creates raw disk images holding an MBR partition table
// and one freshly formatted FAT32 volume populated with 8.3 files.
package fatimage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	diskmbr "github.com/diskfs/go-diskfs/partition/mbr"
	"github.com/google/uuid"

	"github.com/jack695/FATForensics/internal/image/fat"
	"github.com/jack695/FATForensics/internal/image/sectorio"
	"github.com/jack695/FATForensics/internal/utils/logger"
)

// Defaults applied to zero Spec fields.
const (
	DefaultSectorSize        = 512
	DefaultSectorsPerCluster = 1
	DefaultNumFATs           = 2
	DefaultReservedSectors   = 32
	DefaultPartitionStart    = 2048

	minFAT32Clusters = 65525
	rootCluster      = 2
	mediaFixed       = 0xF8
	fsInfoSector     = 1
	backupBootSector = 6
	fat32EOC         = 0x0FFFFFFF
)

// File is one entry to place in the volume. Path uses "/" separators and
// 8.3 components; missing parent directories are created.
type File struct {
	Path string
	Data []byte
	Dir  bool
	// ExtraClusters allocates clusters beyond those needed by Data.
	ExtraClusters uint32
	// Deleted writes the entry with the deletion marker and leaves its
	// clusters free in the FAT while keeping their content.
	Deleted bool
	// LongName, when set, is stored in a long-name slot before the entry.
	LongName string
}

// Spec describes the image to build.
type Spec struct {
	SectorSize        int
	SectorsPerCluster uint8
	NumFATs           uint8
	ReservedSectors   uint16
	PartitionStart    uint32
	// PartitionSectors defaults to the smallest FAT32 volume for the
	// geometry plus VolumeSlackSectors.
	PartitionSectors uint32
	// VolumeSlackSectors are left at the end of the partition, outside the
	// filesystem.
	VolumeSlackSectors uint32
	// TrailingSectors are added after the partition.
	TrailingSectors uint32
	Label           string
	Files           []File
	// StrayClusters holds raw content written into clusters that stay free
	// in the FAT.
	StrayClusters map[uint32][]byte
}

// Placement records where an entry ended up.
type Placement struct {
	FirstCluster uint32
	Clusters     []uint32
	Size         uint32
	Dir          bool
}

// Layout describes the built image.
type Layout struct {
	DiskSectors      uint64
	SectorSize       int
	PartitionStart   uint32
	PartitionSectors uint32
	TotalSectors     uint32
	FATSectors       uint32
	FATStart         uint64
	DataStart        uint64
	ClusterCount     uint32
	ClusterSize      uint32
	NextFreeCluster  uint32
	VolumeID         uint32
	Entries          map[string]Placement
}

type node struct {
	name     [11]byte
	path     string
	file     File
	dir      bool
	parent   *node
	children []*node
	clusters []uint32
}

func (s *Spec) applyDefaults() error {
	if s.SectorSize == 0 {
		s.SectorSize = DefaultSectorSize
	}
	if s.SectorsPerCluster == 0 {
		s.SectorsPerCluster = DefaultSectorsPerCluster
	}
	if s.NumFATs == 0 {
		s.NumFATs = DefaultNumFATs
	}
	if s.ReservedSectors == 0 {
		s.ReservedSectors = DefaultReservedSectors
	}
	if s.PartitionStart == 0 {
		s.PartitionStart = DefaultPartitionStart
	}
	switch s.SectorSize {
	case 512, 1024, 2048, 4096:
	default:
		return fmt.Errorf("unsupported sector size %d", s.SectorSize)
	}
	if s.SectorsPerCluster&(s.SectorsPerCluster-1) != 0 {
		return fmt.Errorf("sectors per cluster %d is not a power of two", s.SectorsPerCluster)
	}
	if s.SectorSize*int(s.SectorsPerCluster) > 32*1024 {
		return fmt.Errorf("cluster size %d exceeds 32 KiB", s.SectorSize*int(s.SectorsPerCluster))
	}
	if s.ReservedSectors <= backupBootSector+1 {
		return fmt.Errorf("need more than %d reserved sectors", backupBootSector+1)
	}
	if s.PartitionSectors == 0 {
		s.PartitionSectors = MinimumSectors(s.SectorSize, s.SectorsPerCluster, s.NumFATs, s.ReservedSectors) + s.VolumeSlackSectors
	}
	if s.VolumeSlackSectors >= s.PartitionSectors {
		return fmt.Errorf("volume slack of %d sectors leaves no room in a %d-sector partition", s.VolumeSlackSectors, s.PartitionSectors)
	}
	return nil
}

// Geometry returns the FAT size in sectors and the resulting cluster count
// for a volume of totalSectors.
func Geometry(totalSectors uint32, sectorSize int, spc, numFATs uint8, reserved uint16) (fatSectors, clusters uint32) {
	if uint32(reserved) >= totalSectors || spc == 0 || numFATs == 0 {
		return 0, 0
	}
	avail := uint64(totalSectors) - uint64(reserved)
	div := (uint64(sectorSize)/2*uint64(spc) + uint64(numFATs)) / 2
	fatSz := (avail + div - 1) / div

	for {
		used := uint64(numFATs) * fatSz
		if used >= avail {
			return uint32(fatSz), 0
		}
		cc := (avail - used) / uint64(spc)
		if (cc+2)*4 <= fatSz*uint64(sectorSize) {
			return uint32(fatSz), uint32(cc)
		}
		fatSz++
	}
}

// MinimumSectors returns the smallest volume size, in sectors, that
// classifies as FAT32 for the geometry.
func MinimumSectors(sectorSize int, spc, numFATs uint8, reserved uint16) uint32 {
	perCluster := uint32(spc)
	fatEst := uint32((uint64(minFAT32Clusters)+2)*4/uint64(sectorSize)) + 1
	tot := uint32(reserved) + uint32(numFATs)*fatEst + minFAT32Clusters*perCluster
	for {
		if _, cc := Geometry(tot, sectorSize, spc, numFATs, reserved); cc >= minFAT32Clusters {
			return tot
		}
		tot += perCluster
	}
}

// Build writes the image described by spec to imagePath, replacing any
// existing file, and returns where everything was placed.
func Build(imagePath string, spec Spec) (*Layout, error) {
	log := logger.Logger()

	if err := spec.applyDefaults(); err != nil {
		return nil, err
	}
	root, err := buildTree(spec.Files)
	if err != nil {
		return nil, err
	}

	bps := spec.SectorSize
	tot := spec.PartitionSectors - spec.VolumeSlackSectors
	fatSz, cc := Geometry(tot, bps, spec.SectorsPerCluster, spec.NumFATs, spec.ReservedSectors)
	if cc < minFAT32Clusters {
		return nil, fmt.Errorf("a %d-sector volume holds %d clusters, FAT32 needs at least %d", tot, cc, minFAT32Clusters)
	}

	l := &Layout{
		DiskSectors:      uint64(spec.PartitionStart) + uint64(spec.PartitionSectors) + uint64(spec.TrailingSectors),
		SectorSize:       bps,
		PartitionStart:   spec.PartitionStart,
		PartitionSectors: spec.PartitionSectors,
		TotalSectors:     tot,
		FATSectors:       fatSz,
		FATStart:         uint64(spec.PartitionStart) + uint64(spec.ReservedSectors),
		ClusterCount:     cc,
		ClusterSize:      uint32(bps) * uint32(spec.SectorsPerCluster),
		Entries:          map[string]Placement{},
	}
	l.DataStart = l.FATStart + uint64(spec.NumFATs)*uint64(fatSz)

	fatTable := make([]uint32, cc+2)
	fatTable[0] = 0x0FFFFF00 | mediaFixed
	fatTable[1] = fat32EOC
	next, err := allocate(root, l, fatTable)
	if err != nil {
		return nil, err
	}
	l.NextFreeCluster = next
	for c := range spec.StrayClusters {
		if c < 2 || c >= cc+2 {
			return nil, fmt.Errorf("stray cluster %d is outside the data region", c)
		}
		if fatTable[c] != 0 {
			return nil, fmt.Errorf("stray cluster %d is already allocated", c)
		}
	}

	id := uuid.New()
	l.VolumeID = binary.LittleEndian.Uint32(id[:4])

	f, err := os.OpenFile(imagePath, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create image: %w", err)
	}
	defer f.Close()

	if err := f.Truncate(int64(l.DiskSectors) * int64(bps)); err != nil {
		return nil, fmt.Errorf("size image: %w", err)
	}

	table := &diskmbr.Table{
		LogicalSectorSize:  bps,
		PhysicalSectorSize: bps,
		Partitions: []*diskmbr.Partition{
			{Type: diskmbr.Fat32LBA, Start: spec.PartitionStart, Size: spec.PartitionSectors},
		},
	}
	if err := table.Write(f, int64(l.DiskSectors)*int64(bps)); err != nil {
		return nil, fmt.Errorf("write partition table: %w", err)
	}

	w := &writer{f: f, spec: &spec, layout: l}
	if err := w.bootSectors(fatSz, tot); err != nil {
		return nil, err
	}
	if err := w.fats(fatTable); err != nil {
		return nil, err
	}
	if err := w.tree(root); err != nil {
		return nil, err
	}
	for c, data := range spec.StrayClusters {
		if err := w.cluster(c, data); err != nil {
			return nil, err
		}
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("sync image: %w", err)
	}

	log.Debugf("built FAT32 image %s: %d sectors, %d clusters of %d bytes, %d entries",
		imagePath, l.DiskSectors, cc, l.ClusterSize, len(l.Entries))
	return l, nil
}

func buildTree(files []File) (*node, error) {
	root := &node{dir: true}
	dirs := map[string]*node{"": root}

	ensureDir := func(p string) (*node, error) {
		if n, ok := dirs[p]; ok {
			if !n.dir {
				return nil, fmt.Errorf("%s is a file and a directory", p)
			}
			return n, nil
		}
		parent := root
		cur := ""
		for _, part := range strings.Split(p, "/") {
			cur = path.Join(cur, part)
			if n, ok := dirs[cur]; ok {
				if !n.dir {
					return nil, fmt.Errorf("%s is a file and a directory", cur)
				}
				parent = n
				continue
			}
			name, err := fat.ShortName(part)
			if err != nil {
				return nil, err
			}
			n := &node{name: name, path: cur, dir: true, parent: parent, file: File{Path: cur, Dir: true}}
			parent.children = append(parent.children, n)
			dirs[cur] = n
			parent = n
		}
		return parent, nil
	}

	for _, file := range files {
		p := strings.ToUpper(strings.Trim(file.Path, "/"))
		if p == "" {
			return nil, errors.New("file with empty path")
		}
		if n, ok := dirs[p]; ok {
			if file.Dir && n.dir {
				n.file = file
				continue
			}
			return nil, fmt.Errorf("duplicate entry %s", p)
		}
		if file.Dir {
			n, err := ensureDir(p)
			if err != nil {
				return nil, err
			}
			n.file = file
			continue
		}

		parentPath, base := path.Split(p)
		parent, err := ensureDir(strings.TrimSuffix(parentPath, "/"))
		if err != nil {
			return nil, err
		}
		name, err := fat.ShortName(base)
		if err != nil {
			return nil, err
		}
		n := &node{name: name, path: p, file: file, parent: parent}
		parent.children = append(parent.children, n)
		dirs[p] = n
	}
	return root, nil
}

// dirSlots counts the directory entries of n: dot entries or the volume
// label, one entry per child and one slot per long name.
func dirSlots(n *node) int {
	slots := len(n.children)
	if n.parent != nil {
		slots += 2
	} else {
		slots++
	}
	for _, c := range n.children {
		if c.file.LongName != "" {
			slots++
		}
	}
	return slots
}

// allocate hands out contiguous clusters breadth first, starting with the
// root directory at cluster 2, and links them in fatTable.
func allocate(root *node, l *Layout, fatTable []uint32) (uint32, error) {
	next := uint32(rootCluster)
	cs := int(l.ClusterSize)
	queue := []*node{root}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		var count uint32
		if n.dir {
			count = uint32(max(1, (dirSlots(n)*fat.DirEntrySize+cs-1)/cs))
		} else {
			count = uint32((len(n.file.Data)+cs-1)/cs) + n.file.ExtraClusters
		}
		if uint64(next)+uint64(count) > uint64(len(fatTable)) {
			return 0, fmt.Errorf("volume is too small for %s", n.path)
		}

		for i := uint32(0); i < count; i++ {
			c := next + i
			n.clusters = append(n.clusters, c)
			if n.file.Deleted {
				continue
			}
			if i == count-1 {
				fatTable[c] = fat32EOC
			} else {
				fatTable[c] = c + 1
			}
		}
		next += count

		if n.parent != nil {
			l.Entries[n.path] = Placement{
				FirstCluster: n.firstCluster(),
				Clusters:     n.clusters,
				Size:         uint32(len(n.file.Data)),
				Dir:          n.dir,
			}
		}
		sort.SliceStable(n.children, func(i, j int) bool { return n.children[i].path < n.children[j].path })
		queue = append(queue, n.children...)
	}
	return next, nil
}

func (n *node) firstCluster() uint32 {
	if len(n.clusters) == 0 {
		return 0
	}
	return n.clusters[0]
}

type writer struct {
	f      *os.File
	spec   *Spec
	layout *Layout
}

func (w *writer) sectorOffset(sector uint64) int64 {
	return int64(sector) * int64(w.spec.SectorSize)
}

func (w *writer) bootSectors(fatSz, tot uint32) error {
	s := w.spec
	b := fat.BPB{
		Jmp:        [3]byte{0xEB, 0x58, 0x90},
		BytsPerSec: uint16(s.SectorSize),
		SecPerClus: s.SectorsPerCluster,
		RsvdSecCnt: s.ReservedSectors,
		NumFATs:    s.NumFATs,
		Media:      mediaFixed,
		SecPerTrk:  63,
		NumHeads:   255,
		HiddSec:    s.PartitionStart,
		TotSec32:   tot,
		FATSz32:    fatSz,
		RootClus:   rootCluster,
		FSInfo:     fsInfoSector,
		BkBootSec:  backupBootSector,
		DrvNum:     0x80,
		BootSig:    0x29,
		VolID:      w.layout.VolumeID,
		Signature:  [2]byte{0x55, 0xAA},
	}
	copy(b.OEMName[:], "MSWIN4.1")
	copy(b.VolLab[:], padLabel(s.Label))
	copy(b.FilSysType[:], "FAT32   ")
	boot := b.Encode()

	fsInfo := make([]byte, 512)
	binary.LittleEndian.PutUint32(fsInfo[0:], 0x41615252)
	binary.LittleEndian.PutUint32(fsInfo[484:], 0x61417272)
	binary.LittleEndian.PutUint32(fsInfo[488:], w.layout.ClusterCount+2-w.layout.NextFreeCluster)
	binary.LittleEndian.PutUint32(fsInfo[492:], w.layout.NextFreeCluster)
	binary.LittleEndian.PutUint32(fsInfo[508:], 0xAA550000)

	start := uint64(s.PartitionStart)
	for _, base := range []uint64{0, backupBootSector} {
		if err := sectorio.WriteAt(w.f, w.sectorOffset(start+base), boot); err != nil {
			return fmt.Errorf("write boot sector: %w", err)
		}
		if err := sectorio.WriteAt(w.f, w.sectorOffset(start+base+fsInfoSector), fsInfo); err != nil {
			return fmt.Errorf("write FSInfo: %w", err)
		}
	}
	return nil
}

func (w *writer) fats(table []uint32) error {
	buf := make([]byte, int(w.layout.FATSectors)*w.spec.SectorSize)
	for i, v := range table {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	for n := uint64(0); n < uint64(w.spec.NumFATs); n++ {
		off := w.sectorOffset(w.layout.FATStart + n*uint64(w.layout.FATSectors))
		if err := sectorio.WriteAt(w.f, off, buf); err != nil {
			return fmt.Errorf("write FAT #%d: %w", n, err)
		}
	}
	return nil
}

func (w *writer) cluster(c uint32, data []byte) error {
	if len(data) > int(w.layout.ClusterSize) {
		return fmt.Errorf("%d bytes do not fit in cluster %d", len(data), c)
	}
	sector := w.layout.DataStart + uint64(c-2)*uint64(w.spec.SectorsPerCluster)
	if err := sectorio.WriteAt(w.f, w.sectorOffset(sector), data); err != nil {
		return fmt.Errorf("write cluster %d: %w", c, err)
	}
	return nil
}

func (w *writer) chain(clusters []uint32, data []byte) error {
	cs := int(w.layout.ClusterSize)
	for i, c := range clusters {
		lo := i * cs
		if lo >= len(data) {
			break
		}
		hi := min(lo+cs, len(data))
		if err := w.cluster(c, data[lo:hi]); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) tree(root *node) error {
	stack := []*node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !n.dir {
			if err := w.chain(n.clusters, n.file.Data); err != nil {
				return err
			}
			continue
		}

		var dir []byte
		if n.parent == nil && w.spec.Label != "" {
			label := fat.DirEntry{Attr: fat.AttrVolumeID}
			copy(label.Name[:], padLabel(w.spec.Label))
			raw := label.Encode()
			dir = append(dir, raw[:]...)
		}
		if n.parent != nil {
			dot := fat.DirEntry{Attr: fat.AttrDirectory}
			copy(dot.Name[:], ".          ")
			dot.SetClusterNumber(n.firstCluster())
			dotdot := fat.DirEntry{Attr: fat.AttrDirectory}
			copy(dotdot.Name[:], "..         ")
			if n.parent.parent != nil {
				dotdot.SetClusterNumber(n.parent.firstCluster())
			}
			for _, e := range []fat.DirEntry{dot, dotdot} {
				raw := e.Encode()
				dir = append(dir, raw[:]...)
			}
		}
		for _, c := range n.children {
			if c.file.LongName != "" {
				raw := longNameSlot(c.file.LongName, c.name)
				dir = append(dir, raw[:]...)
			}
			e := fat.DirEntry{Name: c.name, Attr: fat.AttrArchive, FileSize: uint32(len(c.file.Data))}
			if c.dir {
				e.Attr = fat.AttrDirectory
				e.FileSize = 0
			}
			e.SetClusterNumber(c.firstCluster())
			if c.file.Deleted {
				e.Name[0] = 0xE5
			}
			raw := e.Encode()
			dir = append(dir, raw[:]...)
			stack = append(stack, c)
		}
		if err := w.chain(n.clusters, dir); err != nil {
			return err
		}
	}
	return nil
}

// longNameSlot builds the single VFAT slot holding up to 13 characters.
func longNameSlot(name string, short [11]byte) [fat.DirEntrySize]byte {
	var b [fat.DirEntrySize]byte
	b[0] = 0x41
	b[11] = fat.AttrLongName

	var sum byte
	for _, c := range short {
		sum = (sum>>1 | sum<<7) + c
	}
	b[13] = sum

	units := make([]uint16, 13)
	for i := range units {
		units[i] = 0xFFFF
	}
	r := []rune(name)
	for i := 0; i < len(units) && i < len(r); i++ {
		units[i] = uint16(r[i])
	}
	if len(r) < len(units) {
		units[len(r)] = 0
	}
	offsets := []int{1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 28, 30}
	for i, off := range offsets {
		binary.LittleEndian.PutUint16(b[off:], units[i])
	}
	return b
}

func padLabel(label string) string {
	if label == "" {
		label = "NO NAME"
	}
	label = strings.ToUpper(label)
	if len(label) > 11 {
		label = label[:11]
	}
	return fmt.Sprintf("%-11s", label)
}
