package repository

import "time"

// StorageEntry is one row of the local storage table.
type StorageEntry struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}
