package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/jack695/FATForensics/internal/config"
	"github.com/jack695/FATForensics/internal/image/disk"
	"github.com/jack695/FATForensics/internal/image/lab"
	"github.com/jack695/FATForensics/internal/utils/logger"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	configFile string // Path to the YAML configuration file
	logLevel   string // Overrides log_level from the configuration
)

func main() {
	if err := createRootCommand().Execute(); err != nil {
		logger.Logger().Errorf("%v", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

// createRootCommand creates the prepare-lab command
func createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "prepare-lab [flags] IMAGE_FILE FLAG_DIR",
		Short: "hides flag files in a FAT32 disk image",
		Long: `Prepare-lab hides the files of FLAG_DIR, taken in name order, in a disk
image holding exactly one FAT32 volume:

  1st flag  in the gap between the MBR and the partition
  2nd flag  in the volume slack
  3rd flag  in the slack of lab.file_slack_target
  4th flag  in free clusters marked as bad

Boot sectors are not validated so that damaged lab images can be prepared.`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE:         executePrepareLab,
	}
	rootCmd.Flags().StringVar(&configFile, "config", "", "Path to a YAML configuration file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	return rootCmd
}

func executePrepareLab(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := logger.Init(cfg.LogLevel); err != nil {
		return err
	}

	locations, err := prepareLab(cmd.ErrOrStderr(), args[0], args[1], cfg)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, loc := range locations {
		fmt.Fprintf(out, "%s: %s\n", loc.name, loc.Location)
	}
	return nil
}

type hiddenFlag struct {
	name string
	lab.Location
}

// flagFiles returns the regular files of dir sorted by name. Empty files
// are rejected since there is nothing to hide.
func flagFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read flag directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat flag file: %w", err)
		}
		if info.Size() == 0 {
			return nil, fmt.Errorf("%s: %w", e.Name(), lab.ErrNoData)
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func prepareLab(progress io.Writer, imagePath, flagDir string, cfg *config.Config) ([]hiddenFlag, error) {
	log := logger.Logger()

	names, err := flagFiles(flagDir)
	if err != nil {
		return nil, err
	}
	if len(names) > lab.PlaceCount {
		return nil, fmt.Errorf("unsupported flag count to hide: %d (at most %d)", len(names), lab.PlaceCount)
	}

	d, err := disk.Open(imagePath, cfg.SectorSize, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open disk image: %w", err)
	}
	l, err := lab.New(d, cfg.Lab)
	if err != nil {
		return nil, err
	}
	log.Infof("hiding %d flags in %s", len(names), imagePath)

	bar := progressbar.NewOptions(len(names),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	hidden := make([]hiddenFlag, 0, len(names))
	for i, name := range names {
		bar.Describe(name)
		data, err := os.ReadFile(filepath.Join(flagDir, name))
		if err != nil {
			return hidden, fmt.Errorf("failed to read flag file: %w", err)
		}
		loc, err := l.Hide(i, data)
		if err != nil {
			return hidden, fmt.Errorf("%s: %w", name, err)
		}
		hidden = append(hidden, hiddenFlag{name: name, Location: loc})
		if err := bar.Add(1); err != nil {
			log.Errorf("failed to add to progress bar: %v", err)
		}
	}
	return hidden, nil
}
