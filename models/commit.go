package models

import "github.com/ethereum/go-ethereum/common"

// Commit is a participant record. The zero value is what an identity that
// never committed reads as.
type Commit struct {
	Hash     common.Hash `json:"hash"`
	Revealed bool        `json:"revealed"`
}

func (c Commit) Exists() bool {
	return c.Hash != (common.Hash{})
}
