// Package storage holds errors shared by the party store implementations.
package storage

import "errors"

var (
	ErrPartyNotFound = errors.New("party is not found")
)
