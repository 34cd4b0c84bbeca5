package lab

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jack695/FATForensics/internal/config"
	"github.com/jack695/FATForensics/internal/image/disk"
	"github.com/jack695/FATForensics/internal/image/fat"
	"github.com/jack695/FATForensics/internal/image/fatimage"
	"github.com/jack695/FATForensics/internal/image/sectorio"
)

func buildLab(t *testing.T, files ...fatimage.File) (string, *Lab) {
	t.Helper()
	if len(files) == 0 {
		files = []fatimage.File{
			{Path: "1/t.txt", Data: []byte("hi")},
			{Path: "notes.txt", Data: []byte("nothing to see")},
		}
	}
	path := filepath.Join(t.TempDir(), "lab.img")
	if _, err := fatimage.Build(path, fatimage.Spec{VolumeSlackSectors: 8, Files: files}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	d, err := disk.Open(path, 512, false)
	if err != nil {
		t.Fatalf("disk.Open: %v", err)
	}
	l, err := New(d, config.Default().Lab)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return path, l
}

func readAt(t *testing.T, path string, off int64, n int) []byte {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	buf := make([]byte, n)
	if _, err := f.ReadAt(buf, off); err != nil {
		t.Fatalf("read at %d: %v", off, err)
	}
	return buf
}

func TestLab_HideEveryPlace(t *testing.T) {
	path, l := buildLab(t)
	v := l.Volume()

	loc, err := l.Hide(0, []byte("flag{mbr}"))
	if err != nil {
		t.Fatalf("MBR gap: %v", err)
	}
	if loc.Place != MBRGap || loc.Offset != 512 {
		t.Errorf("location %+v", loc)
	}
	if got := string(readAt(t, path, 512, 9)); got != "flag{mbr}" {
		t.Errorf("MBR gap content %q", got)
	}

	loc, err = l.Hide(1, []byte("flag{volume}"))
	if err != nil {
		t.Fatalf("volume slack: %v", err)
	}
	slack, err := v.ReadVolumeSlack()
	if err != nil {
		t.Fatalf("ReadVolumeSlack: %v", err)
	}
	if !bytes.HasPrefix(slack, []byte("flag{volume}")) {
		t.Errorf("volume slack does not start with the flag")
	}
	if got := string(readAt(t, path, loc.Offset, 12)); got != "flag{volume}" {
		t.Errorf("volume slack offset %d holds %q", loc.Offset, got)
	}

	loc, err = l.Hide(2, []byte("flag{file}"))
	if err != nil {
		t.Fatalf("file slack: %v", err)
	}
	fslack, err := v.ReadFileSlack("1/T.TXT")
	if err != nil {
		t.Fatalf("ReadFileSlack: %v", err)
	}
	if len(fslack) != 510 {
		t.Errorf("file slack size %d", len(fslack))
	}
	if !bytes.HasPrefix(fslack, []byte("flag{file}")) {
		t.Errorf("file slack does not start with the flag")
	}
	if got := string(readAt(t, path, loc.Offset-2, 12)); got != "hiflag{file}" {
		t.Errorf("file slack offset %d: %q", loc.Offset, got)
	}
	if content, err := v.ReadFile("1/T.TXT"); err != nil || string(content) != "hi" {
		t.Errorf("file content changed: %q, %v", content, err)
	}

	secret := bytes.Repeat([]byte("S"), 600)
	loc, err = l.Hide(3, secret)
	if err != nil {
		t.Fatalf("bad clusters: %v", err)
	}
	if loc.Clusters != 2 || loc.Cluster < 2 {
		t.Fatalf("location %+v", loc)
	}
	got, err := v.ReadClusters(loc.Cluster, loc.Clusters)
	if err != nil {
		t.Fatalf("ReadClusters: %v", err)
	}
	if !bytes.Equal(got[:600], secret) {
		t.Errorf("bad cluster content mismatch")
	}
	if _, err := v.ListClusters(loc.Cluster); !errors.Is(err, fat.ErrCorruptChain) {
		t.Errorf("bad cluster should not start a chain, got %v", err)
	}

	if _, err := l.Hide(4, []byte("x")); err == nil || !strings.Contains(err.Error(), "unsupported flag count") {
		t.Errorf("Hide(4): got %v", err)
	}
}

func TestLab_HideRejectsEmptyData(t *testing.T) {
	// t.txt fills its only cluster, so its slack is empty
	path, l := buildLab(t, fatimage.File{Path: "1/t.txt", Data: bytes.Repeat([]byte{'t'}, 512)})
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}

	for _, p := range []Place{MBRGap, VolumeSlack, FileSlack, BadClusters} {
		t.Run(p.String(), func(t *testing.T) {
			for _, data := range [][]byte{nil, {}} {
				if _, err := l.Hide(int(p), data); !errors.Is(err, ErrNoData) {
					t.Errorf("Hide(%v, %v): err=%v want ErrNoData", p, data, err)
				}
			}
		})
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Errorf("hiding nothing modified the image")
	}

	_, err = l.Hide(int(FileSlack), []byte{1})
	var fe *fat.Error
	if !errors.As(err, &fe) || fe.Code != fat.CodeInsufficientSlackSpace {
		t.Fatalf("full cluster: got %v", err)
	}
	if fe.Free != 0 || fe.Needed != 1 {
		t.Errorf("free/needed %d/%d", fe.Free, fe.Needed)
	}
}

func TestHideInMBRGap_Limit(t *testing.T) {
	path, l := buildLab(t)
	start := int64(l.Volume().Start()) * 512
	before := readAt(t, path, start, 512)

	big := bytes.Repeat([]byte{0xAA}, int(start))
	if _, err := l.Hide(int(MBRGap), big); !errors.Is(err, sectorio.ErrLimitExceeded) {
		t.Fatalf("expected limit error, got %v", err)
	}

	if after := readAt(t, path, start, 512); !bytes.Equal(before, after) {
		t.Errorf("the boot sector was overwritten")
	}
	if !bytes.Equal(readAt(t, path, 512, 4), make([]byte, 4)) {
		t.Errorf("a rejected write left data behind")
	}
}

func TestHideInFileSlack_TooLarge(t *testing.T) {
	_, l := buildLab(t)
	_, err := HideInFileSlack(l.Volume(), "1/t.txt", bytes.Repeat([]byte{1}, 511))
	var fe *fat.Error
	if !errors.As(err, &fe) || fe.Code != fat.CodeInsufficientSlackSpace {
		t.Fatalf("got %v", err)
	}
	if fe.Free != 510 || fe.Needed != 511 {
		t.Errorf("free/needed %d/%d", fe.Free, fe.Needed)
	}
}

func TestNew_RequiresOneFAT32Volume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.img")
	layout, err := fatimage.Build(path, fatimage.Spec{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteAt(make([]byte, 512), int64(layout.PartitionStart)*512); err != nil {
		t.Fatalf("wipe boot sector: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	d, err := disk.Open(path, 512, true)
	if err != nil {
		t.Fatalf("disk.Open: %v", err)
	}
	if _, err := New(d, config.Default().Lab); err == nil || !strings.Contains(err.Error(), "exactly one volume") {
		t.Errorf("got %v", err)
	}
}

func TestPlace_String(t *testing.T) {
	names := map[Place]string{MBRGap: "MBR gap", VolumeSlack: "volume slack", FileSlack: "file slack", BadClusters: "bad clusters"}
	for p, want := range names {
		if p.String() != want {
			t.Errorf("%d: %q want %q", int(p), p.String(), want)
		}
	}
	loc := Location{Place: BadClusters, Offset: 1024, Bytes: 600, Cluster: 7, Clusters: 2}
	if got := loc.String(); got != "600 bytes in bad clusters 7..8 (offset 1024)" {
		t.Errorf("got %q", got)
	}
}
