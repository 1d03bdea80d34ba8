package models

import (
	"time"
)

type Chain struct {
	ID          int64
	ChainID     uint64
	Name        string
	Type        string
	TxType      uint64
	WaitNBlocks uint64
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
