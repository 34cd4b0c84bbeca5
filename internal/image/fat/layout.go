package fat

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jack695/FATForensics/internal/utils/display"
)

// Layout renders the regions of the volume as a box-drawing table
// indented by indent spaces.
func (v *Volume) Layout(indent int) string {
	b := display.NewBox(indent,
		display.Column{Title: "Region", Width: 12},
		display.Column{Title: "Start", Width: 12},
		display.Column{Title: "End", Width: 12},
		display.Column{Title: "Description", Width: 16},
	)
	u := func(n uint64) string { return strconv.FormatUint(n, 10) }

	b.Title(fmt.Sprintf(" %s Partition Layout ", v.Type()))
	b.Header()
	b.Row("Reserved", u(v.ReservedStart()), u(v.FATStart()), "Boot + Reserved")
	fatSz := uint64(v.bpb.FATSize())
	for i := uint64(0); i < uint64(v.bpb.NumFATs); i++ {
		start := v.FATStart() + i*fatSz
		b.Row(fmt.Sprintf("FAT #%d", i), u(start), u(start+fatSz), "FAT Tables")
	}
	if v.Type() != FAT32 {
		b.Row("Root Dir", u(v.RootStart()), u(v.DataStart()), "Root Directory")
	}
	b.Row("Data", u(v.DataStart()), u(v.DataEnd()), "Cluster Data")
	if v.DataEnd() < v.end {
		b.Row("", u(v.DataEnd()), u(v.end), "Volume Slack")
	}
	b.Close()
	return b.String()
}

// Tree writes the directory tree rooted at the root cluster, one entry per
// line, each level indented by three more spaces. Long-name slots are
// skipped.
func (v *Volume) Tree(w io.Writer) error {
	if err := v.requireFAT32("directory tree display"); err != nil {
		return err
	}
	return v.withReader(func(r io.ReaderAt) error {
		visited := map[uint32]struct{}{}
		return v.printTree(r, w, v.bpb.RootClus, 0, visited)
	})
}

func (v *Volume) printTree(r io.ReaderAt, w io.Writer, cluster uint32, depth int, visited map[uint32]struct{}) error {
	if _, ok := visited[cluster]; ok {
		return corruptChain(cluster, "directory at cluster %d is its own ancestor", cluster)
	}
	visited[cluster] = struct{}{}
	defer delete(visited, cluster)

	entries, err := v.listDir(r, cluster)
	if err != nil {
		return err
	}
	pad := strings.Repeat(" ", depth*3)
	for _, e := range entries {
		if e.IsLongNameFragment() {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s %s\n", pad, e); err != nil {
			return ioError(err)
		}
		if e.IsRegularDir() && !e.IsDeleted() {
			if err := v.printTree(r, w, e.ClusterNumber(), depth+1, visited); err != nil {
				return err
			}
		}
	}
	return nil
}
