package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jack695/FATForensics/internal/image/lab"
	"github.com/jack695/FATForensics/internal/utils/logger"
	"github.com/spf13/cobra"
)

// Write command flags
var (
	limitSector uint64 // Sector the raw write must not reach (0 = no limit)
	badDataFile string // File to store in the clusters marked as bad
)

// createWriteCommand creates the write subcommand
func createWriteCommand() *cobra.Command {
	writeCmd := &cobra.Command{
		Use:   "write [flags] IMAGE_FILE FILE SECTOR",
		Short: "writes a file at a raw disk sector",
		Long: `Write copies FILE verbatim into the disk image starting at SECTOR.
With --limit the whole write must end before the given sector, otherwise
nothing is written.`,
		Args: cobra.ExactArgs(3),
		RunE: executeWrite,
	}
	writeCmd.Flags().Uint64Var(&limitSector, "limit", 0,
		"First sector the write must not reach (0 disables the check)")
	return writeCmd
}

func executeWrite(cmd *cobra.Command, args []string) error {
	sector, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid sector %q: expected an unsigned integer", args[2])
	}
	d, err := openDisk(args[0])
	if err != nil {
		return err
	}

	src, err := os.Open(args[1])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[1], err)
	}
	defer src.Close()
	fi, err := src.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", args[1], err)
	}

	limit := int64(limitSector) * int64(d.SectorSize())
	if err := d.WriteRaw(sector, src, fi.Size(), limit); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	logger.Logger().Infof("wrote %d bytes of %s at sector %d", fi.Size(), args[1], sector)
	fmt.Fprintln(cmd.OutOrStdout(), "Write succeeded!")
	return nil
}

// createSlackCommand creates the slack subcommand and its children
func createSlackCommand() *cobra.Command {
	slackCmd := &cobra.Command{
		Use:   "slack",
		Short: "hides data in volume or file slack",
	}

	volumeCmd := &cobra.Command{
		Use:   "volume [flags] IMAGE_FILE FILE",
		Short: "writes FILE into the volume slack",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, v, err := openVolume(args[0], volumeIndex)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[1], err)
			}
			loc, err := lab.HideInVolumeSlack(v, data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", loc)
			return nil
		},
	}
	addVolumeFlag(volumeCmd)

	fileCmd := &cobra.Command{
		Use:   "file [flags] IMAGE_FILE PATH FILE",
		Short: "writes FILE into the slack of the file at PATH",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, v, err := openVolume(args[0], volumeIndex)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[2])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[2], err)
			}
			loc, err := lab.HideInFileSlack(v, args[1], data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", loc)
			return nil
		},
	}
	addVolumeFlag(fileCmd)

	slackCmd.AddCommand(volumeCmd, fileCmd)
	return slackCmd
}

// createMarkBadCommand creates the markbad subcommand
func createMarkBadCommand() *cobra.Command {
	markBadCmd := &cobra.Command{
		Use:   "markbad [flags] IMAGE_FILE [COUNT]",
		Short: "marks a run of free clusters as bad",
		Long: `Markbad finds the first run of COUNT free, zero-filled clusters and
marks each of them as bad in every FAT copy. With --data the run is sized
to hold the file, which is then written into the marked clusters.`,
		Args: cobra.RangeArgs(1, 2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 2) == (badDataFile != "") {
				return fmt.Errorf("specify either COUNT or --data")
			}
			return nil
		},
		RunE: executeMarkBad,
	}
	addVolumeFlag(markBadCmd)
	markBadCmd.Flags().StringVar(&badDataFile, "data", "",
		"File to write into the clusters marked as bad")
	return markBadCmd
}

func executeMarkBad(cmd *cobra.Command, args []string) error {
	_, v, err := openVolume(args[0], volumeIndex)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if badDataFile != "" {
		data, err := os.ReadFile(badDataFile)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", badDataFile, err)
		}
		loc, err := lab.HideInBadClusters(v, data)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", loc)
		return nil
	}

	count, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid cluster count %q: expected an unsigned integer", args[1])
	}
	first, err := v.MarkAsBad(uint32(count))
	if err != nil {
		return err
	}
	sector, err := v.ClusterToSector(first)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "marked clusters %d..%d as bad (first sector %d)\n", first, first+uint32(count)-1, sector)
	return nil
}
