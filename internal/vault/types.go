// internal/vault/types.go
package vault

import "errors"

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidHash    = errors.New("invalid content hash")
	ErrNotATree       = errors.New("object is not a tree manifest")
)
