package persistence

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/itoxiq/triplit/internal/kvstore"
)

// PerformRestore replaces store's contents wholesale with the snapshot
// recorded under backupDir/name. Destructive: every key currently in
// store is discarded first.
func PerformRestore(name string, store *kvstore.Store) error {
	backupPath := filepath.Join(backupDir, name)
	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		return fmt.Errorf("triplit: backup %q not found", name)
	}

	data, err := readSnapshot(backupPath)
	if err != nil {
		return fmt.Errorf("triplit: reading backup %q: %w", name, err)
	}

	store.Load(data)
	slog.Info("triplit: restore completed", "backup", name, "keys", len(data))
	return nil
}

func readSnapshot(backupPath string) (map[string][]byte, error) {
	file := filepath.Join(backupPath, snapshotFileName)
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot file: %w", err)
	}
	defer f.Close()

	var count uint32
	if err := binary.Read(f, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("reading entry count: %w", err)
	}

	data := make(map[string][]byte, count)
	for i := 0; i < int(count); i++ {
		key, err := readLengthPrefixed(f)
		if err != nil {
			return nil, fmt.Errorf("reading key for entry %d: %w", i, err)
		}
		value, err := readLengthPrefixed(f)
		if err != nil {
			return nil, fmt.Errorf("reading value for key %q: %w", key, err)
		}
		data[string(key)] = value
	}
	return data, nil
}
