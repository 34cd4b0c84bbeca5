package mbr

import (
	"fmt"
	"strconv"

	"github.com/jack695/FATForensics/internal/utils/display"
)

// Layout renders the partition table as a box-drawing table indented by
// indent spaces. Gaps between partitions are listed as unallocated.
func (m *MasterBootRecord) Layout(indent int) string {
	b := display.NewBox(indent,
		display.Column{Title: "Region", Width: 12, Align: display.AlignCenter},
		display.Column{Title: "Start", Width: 12, Align: display.AlignRight},
		display.Column{Title: "End", Width: 12, Align: display.AlignRight},
		display.Column{Title: "Description", Width: 16, Align: display.AlignCenter},
	)

	b.Title(" Master Boot Record Layout ")
	b.KeyValue("Disk Size", fmt.Sprintf("%10d", m.diskSectorCount))
	b.KeyValue("Boot Signature", fmt.Sprintf("%10s", fmt.Sprintf("0x%04X", m.signature)))
	b.Rule()
	b.Header()

	var lastEnd uint64
	for i, e := range m.Entries() {
		start := uint64(e.LBAStart)
		if start > lastEnd {
			b.Row("", strconv.FormatUint(lastEnd, 10), strconv.FormatUint(start, 10), "Unallocated")
		}
		b.Row(fmt.Sprintf("Part #%d", i+1), strconv.FormatUint(start, 10),
			strconv.FormatUint(e.End(), 10), e.Type.String())
		lastEnd = e.End()
	}
	if lastEnd < m.diskSectorCount {
		b.Row("", strconv.FormatUint(lastEnd, 10), strconv.FormatUint(m.diskSectorCount, 10), "Unallocated")
	}

	b.Close()
	return b.String()
}
