package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jack695/FATForensics/internal/image/disk"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const shellHelp = `commands:
  open PATH                  open a disk image
  print                      print the disk layout
  part N                     select volume N (1-based) for tree
  skip                       do not validate boot sectors on the next open
  write FILE SECTOR [--limit S]
                             copy FILE to SECTOR, never reaching sector S
  tree                       print the directory tree
  help                       print this help
  quit                       leave the shell`

// createShellCommand creates the shell subcommand
func createShellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "starts an interactive session",
		Long: `Shell reads commands line by line. A failing command prints its error
and the session continues; quit or end of input leaves it.

` + shellHelp,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// shellCommand is one parsed input line.
type shellCommand struct {
	name   string
	path   string
	part   int
	sector uint64
	limit  uint64
}

// parseShellLine parses a line into a command. An empty line yields a
// command with an empty name.
func parseShellLine(line string) (shellCommand, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return shellCommand{}, nil
	}
	c := shellCommand{name: fields[0]}

	fs := pflag.NewFlagSet(c.name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if c.name == "write" {
		fs.Uint64Var(&c.limit, "limit", 0, "first sector the write must not reach")
	}
	if err := fs.Parse(fields[1:]); err != nil {
		return c, fmt.Errorf("'%s': %v", c.name, err)
	}
	args := fs.Args()

	switch c.name {
	case "quit", "exit", "print", "skip", "tree", "help":
	case "open":
		if len(args) < 1 {
			return c, fmt.Errorf("missing arg: 'open' expects the path to a disk image")
		}
		c.path = args[0]
	case "part":
		if len(args) < 1 {
			return c, fmt.Errorf("missing arg: 'part' expects the volume number")
		}
		n, err := strconv.ParseUint(args[0], 10, 8)
		if err != nil {
			return c, fmt.Errorf("arg parsing error: 'part' expects the volume number as an unsigned integer")
		}
		c.part = int(n)
	case "write":
		if len(args) < 2 {
			return c, fmt.Errorf("missing arg: 'write' expects the file and the starting sector to write it")
		}
		c.path = args[0]
		sector, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return c, fmt.Errorf("arg parsing error: 'write' expects the starting sector as an unsigned integer")
		}
		c.sector = sector
	default:
		return c, fmt.Errorf("unknown command: %q", c.name)
	}
	return c, nil
}

// shellState is the state carried between commands.
type shellState struct {
	out        io.Writer
	disk       *disk.Disk
	volume     int // 1-based, 0 when no volume is selected
	validate   bool
	skipOnce   bool
	sectorSize int
}

func runShell(in io.Reader, out io.Writer) error {
	st := &shellState{out: out, validate: cfg.ValidateBPB, sectorSize: cfg.SectorSize}
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		c, err := parseShellLine(scanner.Text())
		if err == nil {
			var quit bool
			quit, err = st.run(c)
			if quit {
				return nil
			}
		}
		if err != nil {
			fmt.Fprintf(out, "error: %s\n", describeError(err))
		}
	}
}

func (st *shellState) run(c shellCommand) (bool, error) {
	switch c.name {
	case "":
		return false, nil
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintln(st.out, shellHelp)
		return false, nil
	case "skip":
		st.skipOnce = true
		fmt.Fprintln(st.out, "boot sector validation disabled for the next open")
		return false, nil
	case "open":
		return false, st.open(c.path)
	}

	if st.disk == nil {
		return false, fmt.Errorf("open a disk image first")
	}
	switch c.name {
	case "print":
		_, err := io.WriteString(st.out, st.disk.Layout(3))
		return false, err
	case "part":
		n := len(st.disk.Volumes())
		if c.part < 1 || c.part > n {
			return false, fmt.Errorf("invalid volume number %d: there are %d valid volumes on disk", c.part, n)
		}
		st.volume = c.part
		return false, nil
	case "tree":
		if st.volume == 0 {
			return false, st.disk.Tree(st.out)
		}
		v, err := st.disk.Volume(st.volume - 1)
		if err != nil {
			return false, err
		}
		return false, v.Tree(st.out)
	case "write":
		return false, st.write(c)
	}
	return false, fmt.Errorf("unknown command: %q", c.name)
}

func (st *shellState) open(path string) error {
	validate := st.validate && !st.skipOnce
	st.skipOnce = false
	d, err := disk.Open(path, st.sectorSize, validate)
	if err != nil {
		return err
	}
	st.disk, st.volume = d, 0
	fmt.Fprintf(st.out, "opened %s: %d partitions, %d volumes\n", path, len(d.Partitions()), len(d.Volumes()))
	if perr := d.PartitionErrors(); perr != nil {
		fmt.Fprintf(st.out, "warning: %v\n", perr)
	}
	return nil
}

func (st *shellState) write(c shellCommand) error {
	src, err := os.Open(c.path)
	if err != nil {
		return err
	}
	defer src.Close()
	fi, err := src.Stat()
	if err != nil {
		return err
	}
	limit := int64(c.limit) * int64(st.disk.SectorSize())
	if err := st.disk.WriteRaw(c.sector, src, fi.Size(), limit); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	fmt.Fprintln(st.out, "Write succeeded!")
	return nil
}
