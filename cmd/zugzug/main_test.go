package main

import (
	"os"
	"testing"
)

func TestRunHelpExitsZero(t *testing.T) {
	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open devnull: %v", err)
	}
	defer devNull.Close()

	if code := run([]string{"--help"}, devNull, devNull); code != 0 {
		t.Fatalf("expected exit code 0 for --help, got %d", code)
	}
}

func TestRunUnknownFlagExitsOne(t *testing.T) {
	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open devnull: %v", err)
	}
	defer devNull.Close()

	if code := run([]string{"--nonexistent"}, devNull, devNull); code != 1 {
		t.Fatalf("expected exit code 1 for an unknown flag, got %d", code)
	}
}

func TestRunWithDataPathExitsZero(t *testing.T) {
	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open devnull: %v", err)
	}
	defer devNull.Close()

	dir := t.TempDir()
	if code := run([]string{"--data", dir}, devNull, devNull); code != 0 {
		t.Fatalf("expected exit code 0 with a data path, got %d", code)
	}
}
