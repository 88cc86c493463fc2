// Package templates reads per-account message files and writes group
// snapshots. File naming follows the operator-facing convention
// "<handle>_<tag>.txt" in a single configured directory.
package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"groupcast/internal/dispatch"
)

// Tags the operator can choose between.
const (
	TagStandard     = "standard"
	TagPremium      = "premium"
	TagAnnouncement = "announcement"
)

// Tags lists the supported message tags in menu order.
func Tags() []string {
	return []string{TagStandard, TagPremium, TagAnnouncement}
}

// NotFoundError means the account has no message file for the chosen
// tag. The account sends nothing; the batch continues.
type NotFoundError struct {
	Handle string
	Tag    string
	Path   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s message file for %s (expected %s)", e.Tag, e.Handle, e.Path)
}

// Dir is a directory of message templates and snapshots.
type Dir struct {
	path string
}

func NewDir(path string) Dir {
	if strings.TrimSpace(path) == "" {
		path = "."
	}
	return Dir{path: path}
}

// MessagePath returns where the template for (handle, tag) must live.
func (d Dir) MessagePath(handle, tag string) string {
	return filepath.Join(d.path, handle+"_"+tag+".txt")
}

// Message reads the whole UTF-8 template for one account and tag.
func (d Dir) Message(handle, tag string) (string, error) {
	path := d.MessagePath(handle, tag)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &NotFoundError{Handle: handle, Tag: tag, Path: path}
		}
		return "", fmt.Errorf("read message file %s: %w", path, err)
	}
	return string(b), nil
}

// WriteGroupSnapshot writes "<handle>_groups.txt": one line per group,
// overwriting any previous snapshot.
func (d Dir) WriteGroupSnapshot(handle string, groups []dispatch.Group) (string, error) {
	path := filepath.Join(d.path, handle+"_groups.txt")
	var b strings.Builder
	for _, g := range groups {
		fmt.Fprintf(&b, "%s (ID: %d)\n", g.Title, g.ID)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write group snapshot %s: %w", path, err)
	}
	return path, nil
}
