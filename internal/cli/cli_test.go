package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"resono.click/internal/history"
)

func runCLI(t *testing.T, cli *CLI, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := cli.Run(append([]string{"resono"}, args...), strings.NewReader(""), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestNewCLI(t *testing.T) {
	cli := NewCLI()
	if cli == nil {
		t.Fatal("NewCLI returned nil")
	}
	if cli.rootCmd == nil {
		t.Fatal("root command not created")
	}
}

func TestRunVersionFlag(t *testing.T) {
	for _, flag := range []string{"--version", "-v"} {
		t.Run(flag, func(t *testing.T) {
			code, stdout, _ := runCLI(t, NewCLI(), flag)
			if code != 0 {
				t.Errorf("expected exit code 0, got %d", code)
			}
			if !strings.Contains(stdout, "resono version "+Version) {
				t.Errorf("version output missing, got: %s", stdout)
			}
		})
	}
}

func TestRunWithoutArgsShowsHelp(t *testing.T) {
	code, stdout, _ := runCLI(t, NewCLI())
	if code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(stdout, "Usage:") {
		t.Errorf("expected help output, got: %s", stdout)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	code, _, stderr := runCLI(t, NewCLI(), "frobnicate")
	if code != 1 {
		t.Errorf("expected exit code 1 for unknown command, got %d", code)
	}
	if stderr == "" {
		t.Error("expected an error message on stderr")
	}
}

func TestPlayRejectsInvalidVolume(t *testing.T) {
	testCases := []struct {
		name   string
		volume string
	}{
		{"not a number", "loud"},
		{"too high", "1.5"},
		{"negative", "-0.1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code, _, _ := runCLI(t, NewCLI(), "--volume", tc.volume, "/tmp/never-played.wav")
			if code != 1 {
				t.Errorf("expected exit code 1 for volume %q, got %d", tc.volume, code)
			}
		})
	}
}

func TestPlayMissingFile(t *testing.T) {
	code, _, _ := runCLI(t, NewCLI(), "/definitely/does/not/exist.wav")
	if code != 1 {
		t.Errorf("expected exit code 1 for missing file, got %d", code)
	}
}

func TestProbeMissingFile(t *testing.T) {
	code, _, _ := runCLI(t, NewCLI(), "probe", "/definitely/does/not/exist.wav")
	if code != 1 {
		t.Errorf("expected exit code 1 for missing file, got %d", code)
	}
}

func TestHistoryCommandEmptyStore(t *testing.T) {
	cli := NewCLI()
	store, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	cli.historyStore = store

	code, stdout, _ := runCLI(t, cli, "history")
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(stdout, "No plays recorded yet") {
		t.Errorf("expected empty-history message, got: %s", stdout)
	}
}

func TestHistoryCommandListsPlays(t *testing.T) {
	cli := NewCLI()
	store, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	cli.historyStore = store

	store.RecordPlay(history.Play{
		TrackID:    "/music/first.wav",
		Path:       "/music/first.wav",
		StartedAt:  time.Now().Add(-time.Minute),
		DurationMS: 61000,
		Completed:  true,
	})
	store.RecordPlay(history.Play{
		TrackID:   "/music/second.wav",
		Path:      "/music/second.wav",
		StartedAt: time.Now(),
	})

	code, stdout, _ := runCLI(t, cli, "history")
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}

	if !strings.Contains(stdout, "/music/first.wav") || !strings.Contains(stdout, "/music/second.wav") {
		t.Errorf("expected both tracks listed, got: %s", stdout)
	}
	if !strings.Contains(stdout, "finished") {
		t.Errorf("expected completed play marked finished, got: %s", stdout)
	}
	if !strings.Contains(stdout, "stopped") {
		t.Errorf("expected interrupted play marked stopped, got: %s", stdout)
	}

	// Newest first
	if strings.Index(stdout, "second.wav") > strings.Index(stdout, "first.wav") {
		t.Errorf("expected newest play first, got: %s", stdout)
	}
}

func TestHistoryCommandHonorsLimit(t *testing.T) {
	cli := NewCLI()
	store, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	cli.historyStore = store

	for i := 0; i < 10; i++ {
		store.RecordPlay(history.Play{TrackID: "t", Path: "/music/t.wav"})
	}

	code, stdout, _ := runCLI(t, cli, "history", "--limit", "3")
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}

	lines := strings.Count(strings.TrimSpace(stdout), "\n") + 1
	if lines != 3 {
		t.Errorf("expected 3 history lines, got %d: %s", lines, stdout)
	}
}
