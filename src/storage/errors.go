package storage

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("no save files for slot")
	ErrCorrupt       = errors.New("save files are corrupted")
	ErrTemporarySlot = errors.New("temporary slot is never persisted")
	ErrInvalidSlot   = errors.New("invalid slot")
)

// CorruptionError describes a file that could not be decoded.
type CorruptionError struct {
	Slot int
	Path string
	Err  error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("slot %d: %s is corrupt: %v", e.Slot, e.Path, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

func (e *CorruptionError) Is(target error) bool { return target == ErrCorrupt }
