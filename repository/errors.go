package repository

import "errors"

// ErrAlreadyExists is returned by CreateRecord when a record for the same
// (appointment, type) is already in the ledger. Callers treat it as a skip.
var ErrAlreadyExists = errors.New("reminder already scheduled")

var ErrNotFound = errors.New("reminder not found")

// ErrTerminal is returned when a status update targets a record that is
// already sent or permanently failed.
var ErrTerminal = errors.New("reminder already in a terminal state")

var ErrAppointmentNotFound = errors.New("appointment not found")

var ErrLocationNotFound = errors.New("location not found")
