package library

import (
	"log/slog"
)

// Sync walks the documents directory and brings the catalog up to date:
//   - new/changed PDFs are inspected and upserted
//   - catalog rows whose file disappeared are deleted
func (l *Library) Sync() error {
	metas, err := l.store.List()
	if err != nil {
		return err
	}

	checksums, err := l.cat.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Name] = struct{}{}

		if cs, ok := checksums[m.Name]; ok && cs == m.Checksum {
			continue
		}
		if _, err := l.register(m.Name, OriginalName(m.Name), m.UpdatedAt); err != nil {
			l.logger.Warn("sync: import failed", slog.String("name", m.Name), slog.String("error", err.Error()))
		} else {
			l.logger.Debug("sync: imported", slog.String("name", m.Name))
		}
	}

	// Remove stale entries.
	for id := range checksums {
		if _, ok := disk[id]; !ok {
			if err := l.cat.Delete(id); err != nil {
				l.logger.Warn("sync: delete failed", slog.String("identifier", id), slog.String("error", err.Error()))
			} else {
				l.logger.Debug("sync: removed stale", slog.String("identifier", id))
			}
		}
	}

	return nil
}
