package imageinspect

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/jack695/FATForensics/internal/image/disk"
	"github.com/jack695/FATForensics/internal/image/fatimage"
)

func TestComputeFreeSpans(t *testing.T) {
	tests := []struct {
		name  string
		parts []PartitionSummary
		total uint64
		want  []FreeSpanSummary
	}{
		{
			name:  "empty disk",
			total: 100,
			want:  []FreeSpanSummary{{StartLBA: 1, EndLBA: 99, SizeBytes: 99 * 512}},
		},
		{
			name:  "gap before and after",
			parts: []PartitionSummary{{StartLBA: 2048, EndLBA: 4095}},
			total: 5000,
			want: []FreeSpanSummary{
				{StartLBA: 1, EndLBA: 2047, SizeBytes: 2047 * 512},
				{StartLBA: 4096, EndLBA: 4999, SizeBytes: 904 * 512},
			},
		},
		{
			name:  "adjacent partitions",
			parts: []PartitionSummary{{StartLBA: 1, EndLBA: 9}, {StartLBA: 10, EndLBA: 19}},
			total: 20,
		},
		{
			name:  "gap between partitions",
			parts: []PartitionSummary{{StartLBA: 1, EndLBA: 9}, {StartLBA: 15, EndLBA: 19}},
			total: 20,
			want:  []FreeSpanSummary{{StartLBA: 10, EndLBA: 14, SizeBytes: 5 * 512}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeFreeSpans(tt.parts, 512, tt.total)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("span %d: got %+v want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}

	if got := computeFreeSpans(nil, 0, 100); got != nil {
		t.Errorf("zero block size must yield nil, got %v", got)
	}
	if pickLarger(nil, nil) != nil {
		t.Errorf("pickLarger(nil, nil) must be nil")
	}
}

func buildSummary(t *testing.T) *ImageSummary {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	_, err := fatimage.Build(path, fatimage.Spec{
		VolumeSlackSectors: 8,
		TrailingSectors:    100,
		Label:              "case7",
		Files:              []fatimage.File{{Path: "a.txt", Data: []byte("a")}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	d, err := disk.Open(path, 512, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s, err := Summarize(d)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	return s
}

func TestSummarize(t *testing.T) {
	s := buildSummary(t)
	pt := s.PartitionTable

	if pt.Type != "mbr" || pt.Signature != "0xAA55" {
		t.Errorf("table %s %s", pt.Type, pt.Signature)
	}
	if int64(pt.DiskSectors)*512 != s.SizeBytes {
		t.Errorf("disk sectors %d vs size %d", pt.DiskSectors, s.SizeBytes)
	}
	if len(pt.Notes) != 0 {
		t.Errorf("unexpected notes: %v", pt.Notes)
	}
	if len(pt.Partitions) != 1 {
		t.Fatalf("partitions=%d", len(pt.Partitions))
	}

	p := pt.Partitions[0]
	if p.Index != 1 || p.Type != "0x0c" || p.TypeName != "W95 FAT32 (LBA)" {
		t.Errorf("partition %+v", p)
	}
	if p.StartLBA != 2048 || p.EndLBA != pt.DiskSectors-101 {
		t.Errorf("partition span %d-%d", p.StartLBA, p.EndLBA)
	}

	if len(pt.FreeSpans) != 2 {
		t.Fatalf("free spans %v", pt.FreeSpans)
	}
	if pt.FreeSpans[0].StartLBA != 1 || pt.FreeSpans[0].EndLBA != 2047 {
		t.Errorf("head gap %+v", pt.FreeSpans[0])
	}
	if pt.FreeSpans[1].SizeBytes != 100*512 {
		t.Errorf("tail gap %+v", pt.FreeSpans[1])
	}
	if pt.LargestFreeSpan == nil || pt.LargestFreeSpan.StartLBA != 1 {
		t.Errorf("largest %+v", pt.LargestFreeSpan)
	}

	v := p.Volume
	if v == nil {
		t.Fatalf("no volume summary")
	}
	if v.FATType != "FAT32" || v.Label != "CASE7" || v.OEMName != "MSWIN4.1" {
		t.Errorf("volume %+v", v)
	}
	if len(v.VolumeID) != 9 || v.VolumeID[4] != '-' {
		t.Errorf("volume id %q", v.VolumeID)
	}
	if v.VolumeSlackBytes != 8*512 {
		t.Errorf("slack %d", v.VolumeSlackBytes)
	}

	var names []string
	for _, r := range v.Regions {
		names = append(names, r.Name)
	}
	if want := []string{"reserved", "fat0", "fat1", "data", "volume-slack"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("regions %v want %v", names, want)
	}
	if v.Regions[0].StartLBA != 2048 || v.Regions[0].EndLBA != 2048+31 {
		t.Errorf("reserved %+v", v.Regions[0])
	}
	if v.Regions[4].EndLBA != p.EndLBA {
		t.Errorf("slack ends at %d", v.Regions[4].EndLBA)
	}
}

func TestPrintSummary(t *testing.T) {
	s := buildSummary(t)

	var buf bytes.Buffer
	PrintSummary(&buf, s)
	out := buf.String()
	for _, want := range []string{
		"FAT Image Summary",
		"Boot signature:\t0xAA55",
		"W95 FAT32 (LBA)",
		"Unallocated",
		"Partition 1 filesystem details",
		"CASE7",
		"volume-slack",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	PrintSummary(&buf, nil)
	if buf.Len() != 0 {
		t.Errorf("nil summary printed %q", buf.String())
	}
}

func TestSummary_Encodes(t *testing.T) {
	s := buildSummary(t)

	j, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if !bytes.Contains(j, []byte(`"partitionTable"`)) || !bytes.Contains(j, []byte(`"fatType":"FAT32"`)) {
		t.Errorf("json %s", j)
	}

	y, err := yaml.Marshal(s)
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if !bytes.Contains(y, []byte("volumeSlackBytes: 4096")) {
		t.Errorf("yaml %s", y)
	}
}

func TestInspector_Inspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	if _, err := fatimage.Build(path, fatimage.Spec{}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	s, err := NewInspector(true).Inspect(path)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(s.SHA256) != 64 {
		t.Errorf("sha256 %q", s.SHA256)
	}

	if _, err := NewInspector(false).Inspect(filepath.Join(t.TempDir(), "missing.img")); err == nil {
		t.Errorf("missing image must fail")
	}
}
