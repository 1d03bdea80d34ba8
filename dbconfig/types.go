package dbconfig

import "github.com/pkg/errors"

// Errors returned while turning chain rows into chain configurations.
var (
	ErrInvalidChainID  = errors.New("invalid chain id")
	ErrDatabaseConnect = errors.New("failed to connect to database")
	ErrNoActiveRPC     = errors.New("chain has no active rpc")
	ErrUnknownType     = errors.New("chain type has no backend")
)
