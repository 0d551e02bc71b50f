package repository

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateReference = errors.New("reference id already exists")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrStateConflict      = errors.New("transaction already terminal")
)
