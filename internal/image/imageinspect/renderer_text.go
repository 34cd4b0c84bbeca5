package imageinspect

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/jack695/FATForensics/internal/utils/display"
	"github.com/jack695/FATForensics/internal/utils/logger"
)

// PrintSummary prints a human-readable summary of the image inspection to the given writer.
func PrintSummary(w io.Writer, summary *ImageSummary) {
	if summary == nil {
		logger.Logger().Errorf("PrintSummary: summary is nil")
		return
	}

	// Header
	fmt.Fprintln(w, "FAT Image Summary")
	fmt.Fprintln(w, "=================")
	fmt.Fprintf(w, "Image:\t%s\n", summary.File)
	fmt.Fprintf(w, "Size:\t%s (%d bytes)\n", display.HumanBytes(summary.SizeBytes), summary.SizeBytes)
	if summary.SHA256 != "" {
		fmt.Fprintf(w, "SHA256:\t%s\n", summary.SHA256)
	}

	pt := summary.PartitionTable
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Partition Table")
	fmt.Fprintln(w, "---------------")
	fmt.Fprintf(w, "Type:\t%s\n", strings.ToUpper(emptyIfWhitespace(pt.Type)))
	fmt.Fprintf(w, "Sector size:\t%d bytes\n", pt.SectorSize)
	fmt.Fprintf(w, "Disk sectors:\t%d\n", pt.DiskSectors)
	fmt.Fprintf(w, "Boot signature:\t%s\n", pt.Signature)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Partitions")
	fmt.Fprintln(w, "----------")
	if len(pt.Partitions) == 0 {
		fmt.Fprintln(w, "(none)")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "IDX\tPTYPE\tPTYPE_NAME\tSTART(LBA)\tEND(LBA)\tSIZE\tFS")
		for _, p := range pt.Partitions {
			fsType := "-"
			switch {
			case p.Volume != nil:
				fsType = p.Volume.FATType
			case p.Error != "":
				fsType = "error"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\t%s\n",
				p.Index,
				emptyIfWhitespace(p.Type),
				emptyIfWhitespace(p.TypeName),
				p.StartLBA,
				p.EndLBA,
				display.HumanBytes(int64(p.SizeBytes)),
				fsType,
			)
		}
		_ = tw.Flush()
	}

	if len(pt.FreeSpans) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Unallocated")
		fmt.Fprintln(w, "-----------")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "START(LBA)\tEND(LBA)\tSIZE")
		for _, s := range pt.FreeSpans {
			fmt.Fprintf(tw, "%d\t%d\t%s\n", s.StartLBA, s.EndLBA, display.HumanBytes(int64(s.SizeBytes)))
		}
		_ = tw.Flush()
	}

	for _, p := range pt.Partitions {
		if p.Volume == nil && p.Error == "" {
			continue
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Partition %d filesystem details\n", p.Index)
		fmt.Fprintln(w, "------------------------------")
		if p.Volume == nil {
			fmt.Fprintf(w, "Error: %s\n", p.Error)
			continue
		}
		printVolume(w, p.Volume)
	}

	if len(pt.Notes) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Notes:")
		for _, note := range pt.Notes {
			fmt.Fprintf(w, "  - %s\n", note)
		}
	}
	fmt.Fprintln(w)
}

func printVolume(w io.Writer, v *VolumeSummary) {
	kv := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(kv, "FAT type:\t%s\n", v.FATType)
	if v.OEMName != "" {
		fmt.Fprintf(kv, "OEM name:\t%s\n", v.OEMName)
	}
	if v.Label != "" {
		fmt.Fprintf(kv, "Label:\t%s\n", v.Label)
	}
	if v.VolumeID != "" {
		fmt.Fprintf(kv, "Volume ID:\t%s\n", v.VolumeID)
	}
	fmt.Fprintf(kv, "Bytes/sector:\t%d\n", v.BytesPerSector)
	fmt.Fprintf(kv, "Sectors/cluster:\t%d\n", v.SectorsPerCluster)
	fmt.Fprintf(kv, "Cluster size:\t%s (%d bytes)\n", display.HumanBytes(int64(v.ClusterSize)), v.ClusterSize)
	fmt.Fprintf(kv, "Reserved sectors:\t%d\n", v.ReservedSectors)
	fmt.Fprintf(kv, "FATs:\t%d x %d sectors\n", v.NumFATs, v.FATSectors)
	fmt.Fprintf(kv, "Clusters:\t%d\n", v.ClusterCount)
	fmt.Fprintf(kv, "Root cluster:\t%d\n", v.RootCluster)
	fmt.Fprintf(kv, "Volume slack:\t%s (%d bytes)\n", display.HumanBytes(int64(v.VolumeSlackBytes)), v.VolumeSlackBytes)
	_ = kv.Flush()

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REGION\tSTART(LBA)\tEND(LBA)")
	for _, r := range v.Regions {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", r.Name, r.StartLBA, r.EndLBA)
	}
	_ = tw.Flush()
}

func mbrTypeName(t uint8) string {
	switch t {
	case 0x01:
		return "FAT12"
	case 0x04, 0x06:
		return "FAT16"
	case 0x07:
		return "HPFS/NTFS/exFAT"
	case 0x0b:
		return "W95 FAT32"
	case 0x0c:
		return "W95 FAT32 (LBA)"
	case 0x0e:
		return "W95 FAT16 (LBA)"
	case 0x82:
		return "Linux swap"
	case 0x83:
		return "Linux filesystem"
	case 0x8e:
		return "Linux LVM"
	case 0xee:
		return "GPT protective"
	case 0xef:
		return "EFI System"
	default:
		return ""
	}
}

func emptyIfWhitespace(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return strings.TrimSpace(s)
}
