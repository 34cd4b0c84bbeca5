package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jack695/FATForensics/internal/config"
	"github.com/jack695/FATForensics/internal/image/disk"
	"github.com/jack695/FATForensics/internal/image/fat"
	"github.com/jack695/FATForensics/internal/utils/logger"
	"github.com/spf13/cobra"
)

// Global command flags
var (
	configFile     string // Path to the YAML configuration file
	logLevel       string // Overrides log_level from the configuration
	sectorSize     int    // Overrides sector_size from the configuration
	skipValidation bool   // Opens volumes without checking their boot sector
)

// cfg is the configuration in effect for the running command.
var cfg = config.Default()

func main() {
	rootCmd := createRootCommand()
	if err := rootCmd.Execute(); err != nil {
		logger.Logger().Errorf("%v", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

// createRootCommand builds the command tree
func createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fat-forensics",
		Short: "Inspect and manipulate FAT32 disk images",
		Long: `fat-forensics reads MBR-partitioned disk images, renders their
partition and FAT32 volume layout, walks directory trees and cluster chains,
and hides or recovers data in the places a forensic examiner looks for it:
the gap after the MBR, volume slack, file slack and bad-marked clusters.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().IntVar(&sectorSize, "sector-size", 0,
		"Logical sector size of the image in bytes (default from configuration: 512)")
	rootCmd.PersistentFlags().BoolVar(&skipValidation, "skip-validation", false,
		"Open volumes without validating their boot sector")

	rootCmd.AddCommand(
		createLayoutCommand(),
		createTreeCommand(),
		createListCommand(),
		createFindCommand(),
		createBPBCommand(),
		createInspectCommand(),
		createWriteCommand(),
		createSlackCommand(),
		createMarkBadCommand(),
		createExtractCommand(),
		createMkImageCommand(),
		createShellCommand(),
	)
	return rootCmd
}

// initConfig loads the configuration and applies the global flag overrides.
func initConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		loaded.LogLevel = logLevel
	}
	if cmd.Flags().Changed("sector-size") {
		if !validSectorSize(sectorSize) {
			return fmt.Errorf("unsupported --sector-size %d (supported: 512, 1024, 2048, 4096)", sectorSize)
		}
		loaded.SectorSize = sectorSize
	}
	if skipValidation {
		loaded.ValidateBPB = false
	}
	if err := logger.Init(loaded.LogLevel); err != nil {
		return err
	}
	cfg = loaded
	return nil
}

func validSectorSize(n int) bool {
	switch n {
	case 512, 1024, 2048, 4096:
		return true
	}
	return false
}

// openDisk opens an image with the sector size and validation mode of the
// active configuration.
func openDisk(path string) (*disk.Disk, error) {
	d, err := disk.Open(path, cfg.SectorSize, cfg.ValidateBPB)
	if err != nil {
		return nil, fmt.Errorf("failed to open disk image %s: %w", path, err)
	}
	return d, nil
}

// openVolume opens an image and returns its index-th FAT volume.
func openVolume(path string, index int) (*disk.Disk, *fat.Volume, error) {
	d, err := openDisk(path)
	if err != nil {
		return nil, nil, err
	}
	v, err := d.Volume(index)
	if err != nil {
		if perr := d.PartitionErrors(); perr != nil {
			return nil, nil, fmt.Errorf("%v: %w", err, perr)
		}
		return nil, nil, err
	}
	return d, v, nil
}

// imageFileCompletion completes disk image paths.
func imageFileCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveDefault
	}
	return []string{"img", "raw", "dd"}, cobra.ShellCompDirectiveFilterFileExt
}

// describeError turns a core error into a one-line message naming its kind.
func describeError(err error) string {
	var fe *fat.Error
	if errors.As(err, &fe) {
		return fmt.Sprintf("%s error: %v", fe.Kind(), err)
	}
	return err.Error()
}
