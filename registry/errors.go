package registry

import "errors"

var (
	ErrNotFound            = errors.New("instance not found")
	ErrNoActiveInstance    = errors.New("no active instance")
	ErrDuplicateAlias      = errors.New("alias already exists")
	ErrDuplicateInstanceID = errors.New("provider instance already registered")
	ErrInvalidAlias        = errors.New("invalid alias")
)
