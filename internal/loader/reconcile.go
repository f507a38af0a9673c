package loader

import (
	"math"

	"github.com/bosqueabierto/mtbmap/pkg/core"
)

// Tolerance is the relative difference above which declared and computed
// stats are considered to disagree.
const Tolerance = 0.1

// Reconciliation compares a trail's declared stats with the stats computed
// from its archive.
type Reconciliation struct {
	Declared  core.Metrics `json:"declared"`
	Computed  core.Metrics `json:"computed"`
	Effective core.Metrics `json:"effective"`
}

// Reconcile builds the reconciliation of a trail. A declared value of zero is
// replaced by the computed one in Effective; anything else is kept as declared.
func Reconcile(trail core.TrailRecord, computed core.Metrics) Reconciliation {
	declared := core.Metrics{
		DistanceKm: trail.DistanceKm,
		Ascent:     trail.Ascent,
		Descent:    trail.Descent,
	}
	eff := declared
	if eff.DistanceKm == 0 {
		eff.DistanceKm = computed.DistanceKm
	}
	if eff.Ascent == 0 {
		eff.Ascent = computed.Ascent
	}
	if eff.Descent == 0 {
		eff.Descent = computed.Descent
	}
	return Reconciliation{Declared: declared, Computed: computed, Effective: eff}
}

// Disagrees reports whether any declared value differs from the computed one
// by more than Tolerance.
func (r Reconciliation) Disagrees() bool {
	return differs(r.Declared.DistanceKm, r.Computed.DistanceKm) ||
		differs(float64(r.Declared.Ascent), float64(r.Computed.Ascent)) ||
		differs(float64(r.Declared.Descent), float64(r.Computed.Descent))
}

func differs(declared, computed float64) bool {
	if declared == computed {
		return false
	}
	ref := math.Max(math.Abs(declared), math.Abs(computed))
	return math.Abs(declared-computed)/ref > Tolerance
}
