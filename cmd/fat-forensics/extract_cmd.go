package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jack695/FATForensics/internal/image/fat"
	"github.com/jack695/FATForensics/internal/utils/compression"
	"github.com/jack695/FATForensics/internal/utils/logger"
	"github.com/spf13/cobra"
)

// Extract command flags
var (
	extractClusters    string // START:N cluster range
	extractVolumeSlack bool   // Extract the volume slack
	extractFileSlack   bool   // Extract the slack of PATH instead of its content
	extractCompress    string // Compression of the output
	extractOutput      string // Output file, stdout when empty
)

// createExtractCommand creates the extract subcommand
func createExtractCommand() *cobra.Command {
	extractCmd := &cobra.Command{
		Use:   "extract [flags] IMAGE_FILE [PATH]",
		Short: "extracts file content, slack or raw clusters",
		Long: `Extract copies evidence out of a FAT32 volume: the content of the file
at PATH, its slack with --file-slack, the volume slack with --volume-slack,
or a raw run of clusters with --clusters START:N regardless of what the FAT
says about them. The output can be compressed with gzip, zstd or xz.`,
		Args:    cobra.RangeArgs(1, 2),
		PreRunE: validateExtractArgs,
		RunE:    executeExtract,
	}
	addVolumeFlag(extractCmd)
	extractCmd.Flags().StringVar(&extractClusters, "clusters", "",
		"Extract N raw clusters starting at START (START:N)")
	extractCmd.Flags().BoolVar(&extractVolumeSlack, "volume-slack", false,
		"Extract the volume slack")
	extractCmd.Flags().BoolVar(&extractFileSlack, "file-slack", false,
		"Extract the slack of PATH instead of its content")
	extractCmd.Flags().StringVar(&extractCompress, "compress", "",
		"Output compression: none, gzip, zstd or xz (default from configuration)")
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "",
		"Output file (default: stdout)")
	return extractCmd
}

func validateExtractArgs(cmd *cobra.Command, args []string) error {
	sources := 0
	if len(args) == 2 {
		sources++
	}
	if extractClusters != "" {
		sources++
	}
	if extractVolumeSlack {
		sources++
	}
	if sources != 1 {
		return fmt.Errorf("specify exactly one of PATH, --clusters or --volume-slack")
	}
	if extractFileSlack && len(args) != 2 {
		return fmt.Errorf("--file-slack requires PATH")
	}
	return nil
}

// parseClusterRange parses "START:N".
func parseClusterRange(s string) (uint32, uint32, error) {
	startStr, countStr, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid cluster range %q: expected START:N", s)
	}
	start, err := strconv.ParseUint(startStr, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid start cluster %q: %w", startStr, err)
	}
	count, err := strconv.ParseUint(countStr, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid cluster count %q: %w", countStr, err)
	}
	return uint32(start), uint32(count), nil
}

func executeExtract(cmd *cobra.Command, args []string) error {
	name := extractCompress
	if name == "" {
		name = cfg.Extract.Compression
	}
	ctype, err := compression.Parse(name)
	if err != nil {
		return err
	}

	_, v, err := openVolume(args[0], volumeIndex)
	if err != nil {
		return err
	}
	data, what, err := readEvidence(v, args)
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if extractOutput != "" {
		if ext := ctype.Extension(); ext != "" && !strings.HasSuffix(extractOutput, ext) {
			logger.Logger().Warnf("%s output written to %s, which lacks the %s suffix", ctype, extractOutput, ext)
		}
		f, err := os.Create(extractOutput)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", extractOutput, err)
		}
		defer f.Close()
		out = f
	}

	w, err := compression.NewWriter(out, ctype)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write %s: %w", what, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish %s output: %w", ctype, err)
	}
	logger.Logger().Infof("extracted %d bytes of %s (%s)", len(data), what, ctype)
	return nil
}

func readEvidence(v *fat.Volume, args []string) ([]byte, string, error) {
	switch {
	case extractVolumeSlack:
		data, err := v.ReadVolumeSlack()
		return data, "volume slack", err
	case extractClusters != "":
		start, count, err := parseClusterRange(extractClusters)
		if err != nil {
			return nil, "", err
		}
		data, err := v.ReadClusters(start, count)
		return data, fmt.Sprintf("clusters %s", extractClusters), err
	case extractFileSlack:
		data, err := v.ReadFileSlack(args[1])
		return data, "file slack of " + args[1], err
	default:
		data, err := v.ReadFile(args[1])
		return data, args[1], err
	}
}
