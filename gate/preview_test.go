// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/airlock-foundation/airlock/lib/testutil"
)

func TestBuildListingSortedAndSized(t *testing.T) {
	staging := t.TempDir()
	testutil.WriteTree(t, staging, map[string]string{
		"z/last.go":  "package last\n",
		"a/first.go": "package first\n",
		"middle.md":  "notes",
	})

	listing, err := BuildListing(staging, "")
	if err != nil {
		t.Fatalf("BuildListing: %v", err)
	}
	if len(listing.Entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(listing.Entries))
	}
	if !sort.SliceIsSorted(listing.Entries, func(i, j int) bool {
		return listing.Entries[i].Path < listing.Entries[j].Path
	}) {
		t.Errorf("entries not in lexicographic order: %+v", listing.Entries)
	}
	if listing.Entries[0].Path != "a/first.go" || listing.Entries[2].Path != "z/last.go" {
		t.Errorf("ordering = %q..%q", listing.Entries[0].Path, listing.Entries[2].Path)
	}

	var total int64
	for _, entry := range listing.Entries {
		total += entry.Size
		if entry.Digest == "" {
			t.Errorf("entry %s has no digest", entry.Path)
		}
		if entry.State != EntryNew {
			t.Errorf("entry %s state = %s, want new without a destination", entry.Path, entry.State)
		}
	}
	if listing.TotalBytes != total {
		t.Errorf("TotalBytes = %d, want %d", listing.TotalBytes, total)
	}
}

func TestBuildListingClassifiesCollisions(t *testing.T) {
	staging := t.TempDir()
	trusted := t.TempDir()
	testutil.WriteTree(t, staging, map[string]string{
		"same.txt":     "identical content",
		"conflict.txt": "staged version",
		"fresh.txt":    "brand new",
	})
	testutil.WriteTree(t, trusted, map[string]string{
		"same.txt":     "identical content",
		"conflict.txt": "host version",
	})

	listing, err := BuildListing(staging, trusted)
	if err != nil {
		t.Fatalf("BuildListing: %v", err)
	}

	states := make(map[string]EntryState)
	for _, entry := range listing.Entries {
		states[entry.Path] = entry.State
	}
	if states["same.txt"] != EntrySkipIdentical {
		t.Errorf("same.txt state = %s, want skip-identical", states["same.txt"])
	}
	if states["conflict.txt"] != EntrySkipDiffers {
		t.Errorf("conflict.txt state = %s, want skip-differs", states["conflict.txt"])
	}
	if states["fresh.txt"] != EntryNew {
		t.Errorf("fresh.txt state = %s, want new", states["fresh.txt"])
	}
	if listing.NewCount() != 1 {
		t.Errorf("NewCount = %d, want 1", listing.NewCount())
	}
}

func TestBuildListingSurfacesSymlinks(t *testing.T) {
	staging := t.TempDir()
	testutil.WriteTree(t, staging, map[string]string{
		"real.txt": "content",
	})
	if err := os.Symlink("/etc/passwd", filepath.Join(staging, "link")); err != nil {
		t.Fatalf("creating symlink: %v", err)
	}

	listing, err := BuildListing(staging, "")
	if err != nil {
		t.Fatalf("BuildListing: %v", err)
	}

	states := make(map[string]EntryState)
	for _, entry := range listing.Entries {
		states[entry.Path] = entry.State
	}
	if states["link"] != EntrySkipSymlink {
		t.Errorf("link state = %s, want skip-symlink", states["link"])
	}
	if states["real.txt"] != EntryNew {
		t.Errorf("real.txt state = %s, want new", states["real.txt"])
	}
	// The link is listed but never promoted.
	if listing.NewCount() != 1 {
		t.Errorf("NewCount = %d, want 1", listing.NewCount())
	}
}

func TestBuildListingIsDeterministic(t *testing.T) {
	staging := t.TempDir()
	testutil.WriteTree(t, staging, map[string]string{
		"b.go": "package b\n",
		"a.go": "package a\n",
	})

	first, err := BuildListing(staging, "")
	if err != nil {
		t.Fatalf("BuildListing: %v", err)
	}
	second, err := BuildListing(staging, "")
	if err != nil {
		t.Fatalf("BuildListing: %v", err)
	}
	for i := range first.Entries {
		if first.Entries[i] != second.Entries[i] {
			t.Errorf("entry %d differs across runs: %+v vs %+v", i, first.Entries[i], second.Entries[i])
		}
	}
}

func TestRenderListingNamesEveryFile(t *testing.T) {
	staging := t.TempDir()
	testutil.WriteTree(t, staging, map[string]string{
		"src/app.go": "package app\n",
		"README.md":  "readme",
	})

	listing, err := BuildListing(staging, "")
	if err != nil {
		t.Fatalf("BuildListing: %v", err)
	}

	var out strings.Builder
	RenderListing(&out, listing)
	rendered := out.String()
	for _, want := range []string{"src/app.go", "README.md", "2 file(s)"} {
		if !strings.Contains(rendered, want) {
			t.Errorf("rendered preview missing %q:\n%s", want, rendered)
		}
	}
}

func TestRenderFindingsNamesFileAndRule(t *testing.T) {
	verdict := &Verdict{Findings: []Finding{
		{
			Kind:     KindBlockedExtension,
			Severity: SeverityBlocking,
			File:     "deploy/creds.pem",
			Detail:   `credential-shaped extension ".pem" is blocked`,
		},
		{
			Kind:     KindScannerUnavailable,
			Severity: SeverityAdvisory,
			Detail:   "secret scanner unavailable; staged content was NOT scanned",
		},
	}}

	var out strings.Builder
	RenderFindings(&out, verdict)
	rendered := out.String()

	// Never a generic "validation failed": the file and rule appear.
	for _, want := range []string{"deploy/creds.pem", "blocked-extension", "scanner-unavailable"} {
		if !strings.Contains(rendered, want) {
			t.Errorf("rendered findings missing %q:\n%s", want, rendered)
		}
	}
}
