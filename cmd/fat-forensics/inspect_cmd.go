package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/jack695/FATForensics/internal/image/imageinspect"
	"github.com/jack695/FATForensics/internal/utils/logger"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type inspector interface {
	Inspect(imagePath string) (*imageinspect.ImageSummary, error)
	DisplaySummary(w io.Writer, summary *imageinspect.ImageSummary)
}

// newInspector is replaced in tests.
var newInspector = func(hash bool) inspector {
	i := imageinspect.NewInspector(hash)
	i.SectorSize = cfg.SectorSize
	i.Validate = cfg.ValidateBPB
	return i
}

// Inspect command flags
var (
	outputFormat     string = "text" // text, json or yaml
	prettyJSON       bool   = false  // Indent JSON output
	hashImages       bool   = false  // Compute the SHA256 of the image
	inspectPartition int    = 0      // Restrict the report to one MBR slot, 1-based
)

// summaryEncoders serialize a report for the machine-readable formats.
var summaryEncoders = map[string]func(s *imageinspect.ImageSummary, pretty bool) ([]byte, error){
	"json": func(s *imageinspect.ImageSummary, pretty bool) ([]byte, error) {
		if pretty {
			return json.MarshalIndent(s, "", "  ")
		}
		return json.Marshal(s)
	},
	"yaml": func(s *imageinspect.ImageSummary, _ bool) ([]byte, error) {
		return yaml.Marshal(s)
	},
}

func createInspectCommand() *cobra.Command {
	inspectCmd := &cobra.Command{
		Use:   "inspect [flags] IMAGE_FILE",
		Short: "reports the partition table and FAT geometry of a disk image",
		Long: `Inspect reads the MBR of a disk image and reports every partition entry,
the unallocated sectors around them (where data can hide after the MBR or
past the last partition) and, for each FAT volume, its boot sector fields,
region boundaries and volume slack.

Disagreements with an independent partition table reader are listed as
notes. Use --partition to report a single MBR slot.`,
		Example: `  fat-forensics inspect evidence.img
  fat-forensics inspect --format json --pretty --partition 1 evidence.img`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := summaryEncoders[outputFormat]; !ok && outputFormat != "text" {
				return fmt.Errorf("unsupported --format %q (supported: text, json, yaml)", outputFormat)
			}
			if inspectPartition < 0 || inspectPartition > 4 {
				return fmt.Errorf("--partition must be between 1 and 4, got %d", inspectPartition)
			}
			return nil
		},
		RunE:              executeInspect,
		ValidArgsFunction: imageFileCompletion,
	}

	inspectCmd.Flags().StringVar(&outputFormat, "format", "text",
		"Report format: text, json or yaml")
	inspectCmd.Flags().BoolVar(&prettyJSON, "pretty", false,
		"Indent JSON output (only for --format json)")
	inspectCmd.Flags().BoolVar(&hashImages, "hash-images", false,
		"Compute the SHA256 of the image (reads the whole file)")
	inspectCmd.Flags().IntVar(&inspectPartition, "partition", 0,
		"Report only this MBR slot (1-4); 0 reports every partition")

	return inspectCmd
}

func executeInspect(cmd *cobra.Command, args []string) error {
	imageFile := args[0]
	logger.Logger().Infof("inspecting %s", imageFile)

	ins := newInspector(hashImages)
	summary, err := ins.Inspect(imageFile)
	if err != nil {
		return fmt.Errorf("image inspection failed: %v", err)
	}
	for _, note := range summary.PartitionTable.Notes {
		logger.Logger().Warnf("%s: %s", imageFile, note)
	}

	if inspectPartition != 0 {
		if err := keepPartition(summary, inspectPartition); err != nil {
			return err
		}
	}
	return writeInspectionResult(cmd.OutOrStdout(), ins, summary, outputFormat, prettyJSON)
}

// keepPartition drops every partition of summary except the given MBR slot.
// Free spans are left intact: they describe the whole disk.
func keepPartition(summary *imageinspect.ImageSummary, slot int) error {
	parts := summary.PartitionTable.Partitions
	i := slices.IndexFunc(parts, func(p imageinspect.PartitionSummary) bool { return p.Index == slot })
	if i < 0 {
		return fmt.Errorf("partition %d is empty in %s", slot, summary.File)
	}
	summary.PartitionTable.Partitions = parts[i : i+1]
	return nil
}

func writeInspectionResult(out io.Writer, ins inspector, summary *imageinspect.ImageSummary, format string, pretty bool) error {
	if format == "text" {
		ins.DisplaySummary(out, summary)
		return nil
	}
	encode, ok := summaryEncoders[format]
	if !ok {
		return fmt.Errorf("unsupported output format: %s", format)
	}
	b, err := encode(summary, pretty)
	if err != nil {
		return fmt.Errorf("failed to encode %s report: %w", format, err)
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}
