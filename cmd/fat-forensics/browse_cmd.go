package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/jack695/FATForensics/internal/image/fat"
	"github.com/jack695/FATForensics/internal/utils/logger"
	"github.com/spf13/cobra"
)

// Browse command flags
var (
	volumeIndex  int    // Zero-based index of the FAT volume to operate on
	listCluster  uint32 // First cluster of the directory to list (0 = root)
	listAll      bool   // Include long-name slots in listings
	layoutIndent int    // Indentation of the layout tables
)

func addVolumeFlag(cmd *cobra.Command) {
	cmd.Flags().IntVar(&volumeIndex, "volume", 0,
		"Zero-based index of the FAT volume on the disk")
}

// createLayoutCommand creates the layout subcommand
func createLayoutCommand() *cobra.Command {
	layoutCmd := &cobra.Command{
		Use:   "layout [flags] IMAGE_FILE",
		Short: "prints the partition table and volume layouts",
		Long: `Layout renders the MBR partition table of a disk image and, for every
partition, the regions of its FAT volume: reserved sectors, the FAT copies,
the data region and any volume slack.`,
		Args:              cobra.ExactArgs(1),
		RunE:              executeLayout,
		ValidArgsFunction: imageFileCompletion,
	}
	layoutCmd.Flags().IntVar(&layoutIndent, "indent", 0, "Indentation of the partition table")
	return layoutCmd
}

func executeLayout(cmd *cobra.Command, args []string) error {
	d, err := openDisk(args[0])
	if err != nil {
		return err
	}
	_, err = io.WriteString(cmd.OutOrStdout(), d.Layout(layoutIndent))
	return err
}

// createTreeCommand creates the tree subcommand
func createTreeCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "tree IMAGE_FILE",
		Short:             "prints the directory tree of every FAT32 volume",
		Args:              cobra.ExactArgs(1),
		RunE:              executeTree,
		ValidArgsFunction: imageFileCompletion,
	}
}

func executeTree(cmd *cobra.Command, args []string) error {
	d, err := openDisk(args[0])
	if err != nil {
		return err
	}
	if len(d.Volumes()) == 0 {
		return fmt.Errorf("no FAT volume found on %s", args[0])
	}
	return d.Tree(cmd.OutOrStdout())
}

// createListCommand creates the ls subcommand
func createListCommand() *cobra.Command {
	lsCmd := &cobra.Command{
		Use:   "ls [flags] IMAGE_FILE",
		Short: "lists the entries of a directory cluster",
		Long: `Ls decodes every 32-byte slot of the directory starting at the given
cluster (the root directory by default), including deleted entries and the
volume label.`,
		Args:              cobra.ExactArgs(1),
		RunE:              executeList,
		ValidArgsFunction: imageFileCompletion,
	}
	addVolumeFlag(lsCmd)
	lsCmd.Flags().Uint32Var(&listCluster, "cluster", 0,
		"First cluster of the directory (default: root cluster)")
	lsCmd.Flags().BoolVar(&listAll, "all", false, "Also list long-name slots")
	return lsCmd
}

func executeList(cmd *cobra.Command, args []string) error {
	_, v, err := openVolume(args[0], volumeIndex)
	if err != nil {
		return err
	}
	cluster := listCluster
	if cluster == 0 {
		cluster = v.BPB().RootClus
	}
	entries, err := v.ListDir(cluster)
	if err != nil {
		return fmt.Errorf("failed to list directory at cluster %d: %w", cluster, err)
	}
	logger.Logger().Debugf("directory at cluster %d holds %d entries", cluster, len(entries))

	out := cmd.OutOrStdout()
	for _, e := range entries {
		if e.IsLongNameFragment() && !listAll {
			continue
		}
		fmt.Fprintf(out, "%-16s %-6s %10d  %d\n", e.ShortName(), entryFlags(e), e.FileSize, e.ClusterNumber())
	}
	return nil
}

// entryFlags summarises the kind of a directory slot.
func entryFlags(e fat.DirEntry) string {
	var sb strings.Builder
	switch {
	case e.IsLongNameFragment():
		sb.WriteString("lfn")
	case e.IsVolumeLabel():
		sb.WriteString("label")
	case e.IsDir():
		sb.WriteString("dir")
	default:
		sb.WriteString("file")
	}
	if e.IsDeleted() {
		sb.WriteString("-")
	}
	return sb.String()
}

// createFindCommand creates the find subcommand
func createFindCommand() *cobra.Command {
	findCmd := &cobra.Command{
		Use:   "find [flags] IMAGE_FILE PATH",
		Short: "resolves an 8.3 path and prints its cluster chain",
		Args:  cobra.ExactArgs(2),
		RunE:  executeFind,
	}
	addVolumeFlag(findCmd)
	return findCmd
}

func executeFind(cmd *cobra.Command, args []string) error {
	_, v, err := openVolume(args[0], volumeIndex)
	if err != nil {
		return err
	}
	e, err := v.FindFile(args[1])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s, first cluster %d\n", args[1], e, e.ClusterNumber())
	if e.ClusterNumber() == 0 {
		return nil
	}
	chain, err := v.ListClusters(e.ClusterNumber())
	if err != nil {
		return fmt.Errorf("failed to walk the cluster chain of %s: %w", args[1], err)
	}
	fmt.Fprintf(out, "chain: %v\n", chain)
	return nil
}

// createBPBCommand creates the bpb subcommand
func createBPBCommand() *cobra.Command {
	bpbCmd := &cobra.Command{
		Use:               "bpb [flags] IMAGE_FILE",
		Short:             "dumps the BIOS Parameter Block of a volume",
		Args:              cobra.ExactArgs(1),
		RunE:              executeBPB,
		ValidArgsFunction: imageFileCompletion,
	}
	addVolumeFlag(bpbCmd)
	return bpbCmd
}

func executeBPB(cmd *cobra.Command, args []string) error {
	_, v, err := openVolume(args[0], volumeIndex)
	if err != nil {
		return err
	}
	return v.BPB().Dump(cmd.OutOrStdout())
}
