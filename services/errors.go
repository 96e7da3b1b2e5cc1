package services

import "errors"

var (
	ErrNotFound   = errors.New("resource not found")
	ErrBadRequest = errors.New("invalid input")
	ErrConflict   = errors.New("resource conflict")
)
