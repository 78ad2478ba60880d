package spool

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Layout names the spool directories under Root:
//
//	inbox/<collector>/            inbound message files (.yaml, .yml, .json)
//	inbox/<collector>/processed/  files that were ingested
//	inbox/<collector>/failed/     files that could not be decoded
//	pending/                      plans awaiting review
//	approved/, rejected/          operator decisions
//	archive/                      decision files that were applied
//	failed/                       decision files that could not be applied
//	outbox/                       replies handed to the mailer
type Layout struct {
	Root string
}

// Inbox returns the drop directory for a collector.
func (l Layout) Inbox(collector string) string {
	return filepath.Join(l.Root, "inbox", collector)
}

func (l Layout) Pending() string  { return filepath.Join(l.Root, "pending") }
func (l Layout) Approved() string { return filepath.Join(l.Root, "approved") }
func (l Layout) Rejected() string { return filepath.Join(l.Root, "rejected") }
func (l Layout) Archive() string  { return filepath.Join(l.Root, "archive") }
func (l Layout) Failed() string   { return filepath.Join(l.Root, "failed") }
func (l Layout) Outbox() string   { return filepath.Join(l.Root, "outbox") }

// Ensure creates every directory of the layout, including one inbox per
// collector.
func (l Layout) Ensure(collectors ...string) error {
	if l.Root == "" {
		return fmt.Errorf("spool root is empty")
	}
	dirs := []string{l.Pending(), l.Approved(), l.Rejected(), l.Archive(), l.Failed(), l.Outbox()}
	for _, c := range collectors {
		dirs = append(dirs, l.Inbox(c))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create spool dir: %w", err)
		}
	}
	return nil
}

// moveFile renames src into dir, creating dir if needed.
func moveFile(src, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("move %s: %w", filepath.Base(src), err)
	}
	if err := os.Rename(src, filepath.Join(dir, filepath.Base(src))); err != nil {
		return fmt.Errorf("move %s: %w", filepath.Base(src), err)
	}
	return nil
}

// writeFileAtomic writes data next to path and renames it into place, so
// readers never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// listFiles returns the regular files in dir whose extension is in exts,
// sorted by name. Hidden files are skipped. A missing dir has no files.
func listFiles(dir string, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		for _, want := range exts {
			if ext == want {
				files = append(files, filepath.Join(dir, name))
				break
			}
		}
	}
	return files, nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
