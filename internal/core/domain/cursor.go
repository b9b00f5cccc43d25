package domain

import "time"

// Cursor represents the watcher position: the last block height whose
// execution events were handed to the dispatcher.
type Cursor struct {
	ChainID   string    `db:"chain_id"`
	Height    uint64    `db:"height"`
	UpdatedAt time.Time `db:"updated_at"`
}
