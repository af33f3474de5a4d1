package normalize

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/TobiSchelling/pulso/internal/store"
)

// Scale is the normalized value given to a group's peak row.
const Scale = 100

// ErrInvalidVolume is returned when a raw volume is negative or not finite.
var ErrInvalidVolume = errors.New("invalid raw volume")

// Group is the outcome of normalizing one (source, bucket) set of rows.
type Group struct {
	MaxVolume float64
	Updates   []store.Update
}

// Normalize rescales raw volumes to [0, 100] relative to the group maximum.
// A maximum of zero is treated as one so that all-zero groups normalize to 0.
func Normalize(rows []store.Metric) (Group, error) {
	maxVolume := 0.0
	for _, r := range rows {
		if r.VolumeRaw < 0 || math.IsNaN(r.VolumeRaw) || math.IsInf(r.VolumeRaw, 0) {
			return Group{}, fmt.Errorf("%w: row %s has %v", ErrInvalidVolume, r.ID, r.VolumeRaw)
		}
		if r.VolumeRaw > maxVolume {
			maxVolume = r.VolumeRaw
		}
	}
	if maxVolume == 0 {
		maxVolume = 1
	}

	updates := make([]store.Update, len(rows))
	for i, r := range rows {
		updates[i] = store.Update{
			ID:               r.ID,
			VolumeNormalized: round2(r.VolumeRaw / maxVolume * Scale),
		}
	}
	return Group{MaxVolume: maxVolume, Updates: updates}, nil
}

// round2 rounds v to two decimals, ties to even. strconv rounds the exact
// binary value, so 3.125 becomes 3.12 and 0.285 (stored just below) 0.28.
func round2(v float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return r
}
