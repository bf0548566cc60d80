package lorearchive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"forgeboard/internal/store"
)

func TestArchiveLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	archive := New(tempDir)

	first := store.LoreVersion{LoreID: "lor_1", Version: 1, Title: "The Sunken Keep", Content: "Built by the tide kings.", Author: "Avery", CreatedAt: time.Now()}
	commit, err := archive.CommitVersion(first)
	if err != nil {
		t.Fatalf("CommitVersion() error = %v", err)
	}
	if len(commit.Hash) != 7 {
		t.Fatalf("expected short hash, got %q", commit.Hash)
	}
	if commit.Version != 1 {
		t.Fatalf("expected version 1, got %d", commit.Version)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "lor_1", contentFile)); err != nil {
		t.Fatalf("lore.md missing: %v", err)
	}

	second := first
	second.Version = 2
	second.Content = "Built by the tide kings.\nAbandoned after the flood."
	second.Note = "Add flood"
	if _, err := archive.CommitVersion(second); err != nil {
		t.Fatalf("CommitVersion(v2) error = %v", err)
	}

	history, err := archive.History("lor_1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(history))
	}
	if history[0].Version != 2 || history[0].Message != "v2: Add flood" {
		t.Fatalf("unexpected head commit: %+v", history[0])
	}
	if history[1].Message != "v1: Update The Sunken Keep" {
		t.Fatalf("unexpected first commit message: %q", history[1].Message)
	}
	if history[0].Author != "Avery" {
		t.Fatalf("expected author Avery, got %q", history[0].Author)
	}

	limited, err := archive.History("lor_1", 1)
	if err != nil {
		t.Fatalf("History(limit) error = %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 commit with limit, got %d", len(limited))
	}

	content, err := archive.ReadVersion("lor_1", 1)
	if err != nil {
		t.Fatalf("ReadVersion() error = %v", err)
	}
	if content != "# The Sunken Keep\n\nBuilt by the tide kings.\n" {
		t.Fatalf("unexpected archived content: %q", content)
	}
	if _, err := archive.ReadVersion("lor_1", 9); !errors.Is(err, ErrVersionNotFound) {
		t.Fatalf("expected ErrVersionNotFound, got %v", err)
	}

	if err := archive.Remove("lor_1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := archive.History("lor_1", 0); !errors.Is(err, ErrNoArchive) {
		t.Fatalf("expected ErrNoArchive after remove, got %v", err)
	}
}

func TestArchiveRejectsPathLikeIDs(t *testing.T) {
	archive := New(t.TempDir())
	_, err := archive.CommitVersion(store.LoreVersion{LoreID: "../escape", Version: 1, Title: "x"})
	if err == nil || !strings.Contains(err.Error(), "invalid lore id") {
		t.Fatalf("expected invalid lore id error, got %v", err)
	}
}

func TestHistoryWithoutArchive(t *testing.T) {
	archive := New(t.TempDir())
	if _, err := archive.History("lor_missing", 5); !errors.Is(err, ErrNoArchive) {
		t.Fatalf("expected ErrNoArchive, got %v", err)
	}
}

func TestConcurrentCommitsSameLore(t *testing.T) {
	archive := New(t.TempDir())

	const workers = 6
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 1; i <= workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := archive.CommitVersion(store.LoreVersion{
				LoreID:  "lor_busy",
				Version: n,
				Title:   "Busy",
				Content: fmt.Sprintf("revision %d", n),
				Author:  "Writer",
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("CommitVersion() error = %v", err)
		}
	}

	history, err := archive.History("lor_busy", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != workers {
		t.Fatalf("expected %d commits, got %d", workers, len(history))
	}
}

func TestSanitizeEmail(t *testing.T) {
	cases := map[string]string{
		"Avery Stone": "Avery.Stone",
		"dev_ops-1":   "dev.ops.1",
		"!!!":         "user",
	}
	for input, want := range cases {
		if got := sanitizeEmail(input); got != want {
			t.Fatalf("sanitizeEmail(%q) = %q, want %q", input, got, want)
		}
	}
}
