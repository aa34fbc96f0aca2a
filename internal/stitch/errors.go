package stitch

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyFootprint is returned when the bounds cover no tiles.
	ErrEmptyFootprint = errors.New("bounds cover no tiles")

	// ErrBusy is returned by Session.Run while another run is in flight.
	ErrBusy = errors.New("a stitch run is already in progress")

	// ErrNoTiles is returned when there is nothing to composite.
	ErrNoTiles = errors.New("no tile images to composite")
)

// FetchError reports the tile that aborted a run.
type FetchError struct {
	Err   error
	URL   string
	Index int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch tile %d (%s): %v", e.Index, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
