package storage

import "github.com/google/renameio"

// writeFileAtomic writes data to path via a sibling temp file and rename,
// satisfying I-S4 (no half-written range file is ever observable).
func writeFileAtomic(path string, data []byte) error {
	return renameio.WriteFile(path, data, 0644)
}
