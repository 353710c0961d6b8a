// Package storage persists the ledger journal and published result snapshots.
package storage

import "errors"

// ErrConflict is returned when a block does not extend the stored chain.
var ErrConflict = errors.New("journal conflict")
