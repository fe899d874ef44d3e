package sink

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	scraperrors "mkettler/groceryworker/pkg/errors"
)

const backupTimeLayout = "20060102_150405"

// BackupOutput copies the live output log into the timestamped backup
// location and prunes old backups past the retention limit. No live output
// means nothing to back up.
func (m *DataManager) BackupOutput() error {
	if _, err := os.Stat(m.outputPath); os.IsNotExist(err) {
		return nil
	}

	backupDir := filepath.Join(m.dataDir, "backups")
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return scraperrors.NewPersistence(m.siteSlug, "failed to create backup directory", err)
	}

	name := m.siteSlug + "_products_" + time.Now().Format(backupTimeLayout) + ".jsonl"
	if m.compress {
		name += ".gz"
	}
	target := filepath.Join(backupDir, name)

	if err := copyFile(m.siteSlug, m.outputPath, target, m.compress); err != nil {
		return err
	}
	m.log.Info().Str("backup", target).Msg("Output backed up")

	return m.pruneBackups(backupDir)
}

// pruneBackups deletes backups beyond the retention limit, keeping the most
// recent. The timestamped names sort chronologically.
func (m *DataManager) pruneBackups(backupDir string) error {
	if m.maxBackups <= 0 {
		return nil
	}

	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return scraperrors.NewPersistence(m.siteSlug, "failed to list backups", err)
	}

	var names []string
	prefix := m.siteSlug + "_products_"
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			names = append(names, entry.Name())
		}
	}
	if len(names) <= m.maxBackups {
		return nil
	}

	sort.Strings(names)
	for _, name := range names[:len(names)-m.maxBackups] {
		if err := os.Remove(filepath.Join(backupDir, name)); err != nil {
			m.log.Warn().Err(err).Str("backup", name).Msg("Failed to prune backup")
			continue
		}
		m.log.Debug().Str("backup", name).Msg("Pruned old backup")
	}
	return nil
}

// FreshStart backs up the current output, then deletes the live output and
// checkpoint so the run begins from empty state while history stays
// recoverable
func (m *DataManager) FreshStart() error {
	if err := m.BackupOutput(); err != nil {
		return err
	}
	if err := os.Remove(m.outputPath); err != nil && !os.IsNotExist(err) {
		return scraperrors.NewPersistence(m.siteSlug, "failed to remove output log", err)
	}
	if err := m.ClearCheckpoint(); err != nil {
		return err
	}
	m.log.Info().Msg("Fresh start: output and checkpoint cleared")
	return nil
}

// copyFile copies src to dst, optionally gzip-compressing the copy
func copyFile(site, src, dst string, compress bool) error {
	in, err := os.Open(src)
	if err != nil {
		return scraperrors.NewPersistence(site, "failed to open output for backup", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return scraperrors.NewPersistence(site, "failed to create backup file", err)
	}
	defer out.Close()

	var w io.Writer = out
	if compress {
		gz := gzip.NewWriter(out)
		defer gz.Close()
		w = gz
	}

	if _, err := io.Copy(w, in); err != nil {
		return scraperrors.NewPersistence(site, "failed to write backup", err)
	}
	return nil
}
