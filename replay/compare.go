package replay

import (
	"sort"

	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
	"github.com/montanaflynn/stats"
	"github.com/paulmach/orb/geo"
)

// Comparison summarizes how far the FUSED track strays from a reference track.
// Distances are in meters.
type Comparison struct {
	N      int     `json:"n"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	Max    float64 `json:"max"`
}

// Compare pairs each fused estimate with the newest reference estimate at or
// before it. Fused estimates older than every reference are not compared.
func Compare(fused, reference []fix.Estimate) *Comparison {
	ref := make([]fix.Estimate, len(reference))
	copy(ref, reference)
	sort.SliceStable(ref, func(i, j int) bool {
		return ref[i].T < ref[j].T
	})

	var distances []float64
	for _, e := range fused {
		i := sort.Search(len(ref), func(i int) bool {
			return ref[i].T > e.T
		})
		if i == 0 {
			continue
		}
		distances = append(distances, geo.Distance(e.Point(), ref[i-1].Point()))
	}

	c := &Comparison{N: len(distances)}
	if c.N == 0 {
		return c
	}
	data := stats.Float64Data(distances)
	c.Mean, _ = data.Mean()
	c.Median, _ = data.Median()
	c.P95, _ = data.Percentile(95)
	c.Max, _ = data.Max()
	return c
}
