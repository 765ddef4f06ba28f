package coordinator

import (
	"errors"

	"github.com/danmuck/dps_saves/src/storage"
)

var (
	ErrNoActiveSlot          = errors.New("no save slot is active")
	ErrDuplicateRegistration = errors.New("save identifier already registered")
	ErrInvalidSlot           = storage.ErrInvalidSlot
	ErrClosed                = errors.New("coordinator is closed")
)
