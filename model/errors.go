package model

import "errors"

// ErrNotFound means the requested item does not exist in the table.
var ErrNotFound = errors.New("vogels: item not found")
