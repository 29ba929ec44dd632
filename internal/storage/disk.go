package storage

import "os"

// DiskUsageBytes returns the size of the database file at path, including
// the WAL sidecar when present. Returns 0 if the file does not exist.
func DiskUsageBytes(path string) int64 {
	var total int64
	for _, p := range []string{path, path + "-wal"} {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	return total
}
