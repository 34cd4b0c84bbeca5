package main

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestParseShellLine(t *testing.T) {
	tests := []struct {
		line    string
		want    shellCommand
		wantErr string
	}{
		{line: "   ", want: shellCommand{}},
		{line: "quit", want: shellCommand{name: "quit"}},
		{line: "open disk.img", want: shellCommand{name: "open", path: "disk.img"}},
		{line: "part 2", want: shellCommand{name: "part", part: 2}},
		{line: "write flag.txt 1 --limit 2048", want: shellCommand{name: "write", path: "flag.txt", sector: 1, limit: 2048}},
		{line: "open", wantErr: "missing arg: 'open'"},
		{line: "part x", wantErr: "'part' expects the volume number as an unsigned integer"},
		{line: "part 300", wantErr: "unsigned integer"},
		{line: "write flag.txt", wantErr: "missing arg: 'write'"},
		{line: "write flag.txt one", wantErr: "starting sector as an unsigned integer"},
		{line: "write a 1 --limit x", wantErr: "'write'"},
		{line: "print --verbose", wantErr: "'print'"},
		{line: "format c:", wantErr: `unknown command: "format"`},
	}
	for _, tt := range tests {
		got, err := parseShellLine(tt.line)
		if tt.wantErr != "" {
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("%q: expected error containing %q, got %v", tt.line, tt.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error %v", tt.line, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: got %+v want %+v", tt.line, got, tt.want)
		}
	}
}

func TestRunShell_Session(t *testing.T) {
	img, _ := buildImage(t)
	payload := writeTemp(t, "flag.txt", []byte("flag{shell}"))

	script := strings.Join([]string{
		"print",
		"bogus",
		"open " + img,
		"",
		"print",
		"part 2",
		"part 1",
		"tree",
		"write " + payload + " 1 --limit 2048",
		"write " + payload + " 2047 --limit 2048",
		"quit",
		"print",
	}, "\n")

	var out bytes.Buffer
	if err := runShell(strings.NewReader(script), &out); err != nil {
		t.Fatalf("runShell: %v", err)
	}
	s := out.String()

	for _, want := range []string{
		"error: open a disk image first",
		`error: unknown command: "bogus"`,
		"opened " + img + ": 1 partitions, 1 volumes",
		"   ┌",
		"invalid volume number 2: there are 1 valid volumes on disk",
		`"B.TXT" 6B`,
		"write failed",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("session output misses %q:\n%s", want, s)
		}
	}
	if n := strings.Count(s, "Write succeeded!"); n != 1 {
		t.Errorf("%d writes succeeded, want 1:\n%s", n, s)
	}
	if n := strings.Count(s, "Master Boot Record Layout"); n != 1 {
		t.Errorf("commands ran after quit:\n%s", s)
	}

	if got := string(readAt(t, img, 512, 11)); got != "flag{shell}" {
		t.Errorf("sector 1 holds %q", got)
	}
}

func TestRunShell_SkipAppliesToNextOpen(t *testing.T) {
	img, l := buildImage(t)

	f, err := os.OpenFile(img, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteAt([]byte{0x00}, int64(l.PartitionStart)*512); err != nil {
		t.Fatalf("corrupt jump: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	script := "open " + img + "\nskip\nopen " + img + "\nopen " + img + "\n"
	var out bytes.Buffer
	if err := runShell(strings.NewReader(script), &out); err != nil {
		t.Fatalf("runShell: %v", err)
	}
	s := out.String()

	if n := strings.Count(s, "1 partitions, 0 volumes"); n != 2 {
		t.Errorf("validated opens should drop the volume:\n%s", s)
	}
	if n := strings.Count(s, "1 partitions, 1 volumes"); n != 1 {
		t.Errorf("skip should keep the volume once:\n%s", s)
	}
	if !strings.Contains(s, "warning: partition #1") {
		t.Errorf("missing partition warning:\n%s", s)
	}
	if !strings.HasSuffix(s, "> \n") {
		t.Errorf("end of input should end the session:\n%q", s)
	}
}

func TestShellCommand(t *testing.T) {
	cmd := createShellCommand()
	cmd.SetIn(strings.NewReader("help\nexit\n"))
	out, err := execCmd(t, cmd, []string{}...)
	if err != nil {
		t.Fatalf("shell: %v", err)
	}
	if !strings.Contains(out, "open PATH") {
		t.Errorf("help output:\n%s", out)
	}
}
