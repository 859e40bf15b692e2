package domain

import "errors"

var (
	// ErrConfiguration marks a malformed weight map, bin set, or schema
	// mismatch. It is fatal and reported before any scoring happens.
	ErrConfiguration = errors.New("configuration error")

	// ErrDataSource marks a record, or a whole source, that could not be
	// produced. Individual failures exclude the record from the batch.
	ErrDataSource = errors.New("data source error")

	// ErrEmptyBatch is returned when a refresh yields no usable records.
	ErrEmptyBatch = errors.New("empty batch")
)
