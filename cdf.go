package shadow

//
// Jitter CDF sampling (spec.md §4.2: "Jitter distributions are sampled
// from a CDF (piecewise-linear interpolation between tabulated points)")
//

import "sort"

// CDFPoint is one tabulated (value, cumulative-probability) pair.
type CDFPoint struct {
	Value       SimTime
	Probability float64 // in [0, 1], non-decreasing across a CDF's Points
}

// CDF is a piecewise-linear cumulative distribution function used to
// sample jitter delays. The zero value (no points) always samples 0.
type CDF struct {
	Points []CDFPoint
}

// NewCDF builds a [CDF] from unsorted points, sorting them by probability.
func NewCDF(points []CDFPoint) *CDF {
	pts := append([]CDFPoint(nil), points...)
	sort.Slice(pts, func(i, j int) bool { return pts[i].Probability < pts[j].Probability })
	return &CDF{Points: pts}
}

// Sample draws a jitter value given a uniform random draw u in [0, 1),
// typically u = rng.Float64(). Interpolates linearly between the two
// tabulated points bracketing u. Returns 0 if the CDF has no points.
func (c *CDF) Sample(u float64) SimTime {
	n := len(c.Points)
	if n == 0 {
		return 0
	}
	if n == 1 || u <= c.Points[0].Probability {
		return c.Points[0].Value
	}
	if u >= c.Points[n-1].Probability {
		return c.Points[n-1].Value
	}
	// binary search for the first point whose probability is >= u
	idx := sort.Search(n, func(i int) bool { return c.Points[i].Probability >= u })
	lo, hi := c.Points[idx-1], c.Points[idx]
	if hi.Probability == lo.Probability {
		return lo.Value
	}
	frac := (u - lo.Probability) / (hi.Probability - lo.Probability)
	span := float64(hi.Value) - float64(lo.Value)
	return lo.Value + SimTime(frac*span)
}
