// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/zeebo/blake3"
)

// EntryState classifies a staged file against the trusted tree.
type EntryState string

const (
	// EntryNew means no file exists at the destination path; promotion
	// will write it.
	EntryNew EntryState = "new"

	// EntrySkipIdentical means the destination already has this exact
	// content; promotion skips it silently.
	EntrySkipIdentical EntryState = "skip-identical"

	// EntrySkipDiffers means the destination has different content at
	// this path; promotion skips it and the host copy wins.
	EntrySkipDiffers EntryState = "skip-differs"

	// EntrySkipSymlink means the staged path is a symbolic link.
	// Promotion copies regular files only, so the link never reaches
	// the trusted tree; listing it keeps the preview an honest
	// inventory of the snapshot.
	EntrySkipSymlink EntryState = "skip-symlink"
)

// Entry is one staged file in the preview listing.
type Entry struct {
	// Path is relative to the staging root, slash-separated.
	Path string

	Size int64

	// Digest is a short hex content digest, used to distinguish an
	// identical destination file from a conflicting one.
	Digest string

	State EntryState
}

// Listing is the deterministic, review-ready enumeration of a staging
// snapshot. Entries are in lexicographic path order.
type Listing struct {
	Entries    []Entry
	TotalBytes int64
}

// NewCount returns how many entries promotion would write.
func (l *Listing) NewCount() int {
	count := 0
	for _, entry := range l.Entries {
		if entry.State == EntryNew {
			count++
		}
	}
	return count
}

// BuildListing enumerates every regular file under stagingDir. When
// trustedTree is non-empty, each entry is classified against the
// destination by existence and content digest; otherwise every entry
// is EntryNew.
func BuildListing(stagingDir, trustedTree string) (*Listing, error) {
	files, err := enumerateFiles(stagingDir)
	if err != nil {
		return nil, fmt.Errorf("enumerating staging snapshot: %w", err)
	}

	listing := &Listing{}
	for _, file := range files {
		digest, err := fileDigest(file.absolute)
		if err != nil {
			return nil, fmt.Errorf("digesting %s: %w", file.relative, err)
		}
		entry := Entry{
			Path:   file.relative,
			Size:   file.size,
			Digest: digest,
			State:  EntryNew,
		}
		if trustedTree != "" {
			entry.State, err = classifyAgainstDestination(trustedTree, file.relative, digest)
			if err != nil {
				return nil, err
			}
		}
		listing.Entries = append(listing.Entries, entry)
		listing.TotalBytes += file.size
	}

	links, err := enumerateSymlinks(stagingDir)
	if err != nil {
		return nil, fmt.Errorf("enumerating staged symlinks: %w", err)
	}
	for _, link := range links {
		listing.Entries = append(listing.Entries, Entry{
			Path:  link,
			State: EntrySkipSymlink,
		})
	}

	sort.Slice(listing.Entries, func(i, j int) bool {
		return listing.Entries[i].Path < listing.Entries[j].Path
	})
	return listing, nil
}

// enumerateSymlinks returns the relative, slash-separated paths of
// symbolic links under root.
func enumerateSymlinks(root string) ([]string, error) {
	var links []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		relative, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		links = append(links, filepath.ToSlash(relative))
		return nil
	})
	return links, err
}

func classifyAgainstDestination(trustedTree, relative, stagedDigest string) (EntryState, error) {
	destination := filepath.Join(trustedTree, filepath.FromSlash(relative))
	if _, err := os.Lstat(destination); err != nil {
		if os.IsNotExist(err) {
			return EntryNew, nil
		}
		return "", fmt.Errorf("checking destination %s: %w", destination, err)
	}
	destinationDigest, err := fileDigest(destination)
	if err != nil {
		// Unreadable destination still means the path is taken.
		return EntrySkipDiffers, nil
	}
	if destinationDigest == stagedDigest {
		return EntrySkipIdentical, nil
	}
	return EntrySkipDiffers, nil
}

// fileDigest returns the first 8 bytes of the file's BLAKE3 hash as
// hex.
func fileDigest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)[:8]), nil
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	newStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	skipStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	blockingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	advisoryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

// RenderListing writes the human-reviewable preview: one line per
// staged file with size, digest, and destination state, then a
// summary.
func RenderListing(w io.Writer, listing *Listing) {
	fmt.Fprintln(w, headerStyle.Render("Pending changes"))
	for _, entry := range listing.Entries {
		line := fmt.Sprintf("  %-9s %8s  %s  %s",
			entry.State, humanize.IBytes(uint64(entry.Size)), entry.Digest, entry.Path)
		switch entry.State {
		case EntryNew:
			fmt.Fprintln(w, newStyle.Render(line))
		default:
			fmt.Fprintln(w, skipStyle.Render(line))
		}
	}
	fmt.Fprintf(w, "%d file(s), %s total; %d would be promoted\n",
		len(listing.Entries), humanize.IBytes(uint64(listing.TotalBytes)), listing.NewCount())
}

// RenderFindings writes the verdict's findings, blocking first.
func RenderFindings(w io.Writer, verdict *Verdict) {
	if blocking := verdict.Blocking(); len(blocking) > 0 {
		fmt.Fprintln(w, blockingStyle.Render("Blocking findings"))
		for _, finding := range blocking {
			fmt.Fprintln(w, blockingStyle.Render(formatFinding(finding)))
		}
	}
	if advisories := verdict.Advisories(); len(advisories) > 0 {
		fmt.Fprintln(w, advisoryStyle.Render("Advisories"))
		for _, finding := range advisories {
			fmt.Fprintln(w, advisoryStyle.Render(formatFinding(finding)))
		}
	}
}

func formatFinding(finding Finding) string {
	if finding.File == "" {
		return fmt.Sprintf("  [%s] %s", finding.Kind, finding.Detail)
	}
	return fmt.Sprintf("  [%s] %s: %s", finding.Kind, finding.File, finding.Detail)
}
