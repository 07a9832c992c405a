package directory

import (
	"errors"

	"g10.app/identity/internal/index"
)

var (
	ErrInvalidArgument     = errors.New("directory: invalid argument")
	ErrSchema              = errors.New("directory: schema violation")
	ErrDuplicateID         = errors.New("directory: duplicate id")
	ErrDuplicateCredential = errors.New("directory: duplicate credential")
	ErrUnknownKind         = errors.New("directory: unknown kind")
)

// duplicateID maps an index conflict onto the directory error.
func duplicateID(err error) error {
	if errors.Is(err, index.ErrDuplicateKey) {
		return ErrDuplicateID
	}
	return err
}
