package cmd

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/mapfactory/internal/geo"
)

var errNeedsConfirmation = errors.New("refusing a large request without --yes")

// parseArea reads the area from either a "south,west,north,east" box or a
// "lat1,lon1,lat2,lon2" pair of opposite corners. Exactly one must be set.
func parseArea(bounds, corners string) (geo.Bounds, error) {
	var (
		b   geo.Bounds
		err error
	)
	switch {
	case bounds != "" && corners != "":
		return geo.Bounds{}, fmt.Errorf("use either --bounds or --corners, not both")
	case bounds != "":
		b, err = geo.ParseQueryString(bounds)
	case corners != "":
		b, err = geo.ParseCornerList(corners)
	default:
		return geo.Bounds{}, fmt.Errorf("--bounds (south,west,north,east) or --corners (lat1,lon1,lat2,lon2) is required")
	}
	if err != nil {
		return geo.Bounds{}, fmt.Errorf("invalid area: %w", err)
	}
	if err := b.Validate(); err != nil {
		return geo.Bounds{}, err
	}
	return b, nil
}

// confirmLarge fails a request flagged as large unless the user passed --yes.
func confirmLarge(large, yes bool, what string) error {
	if !large {
		return nil
	}
	if yes {
		logger.Warn("Proceeding with a large request", "request", what)
		return nil
	}
	return fmt.Errorf("%w: %s", errNeedsConfirmation, what)
}
