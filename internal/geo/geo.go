package geo

import (
	"fmt"
	"math"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/model"
)

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(a, b model.LatLng) float64 {
	const r = 6371.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return r * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// NavigationURL builds a link for external turn-by-turn navigation to a stop.
// Pure function; no network involved.
func NavigationURL(loc model.LatLng) string {
	return fmt.Sprintf("https://www.google.com/maps/dir/?api=1&destination=%f,%f", loc.Lat, loc.Lng)
}

// ImproveOrder2Opt applies a 2-opt pass to reduce total path distance over the
// heuristic ordering. order holds indexes into nodes.
func ImproveOrder2Opt(nodes []model.LatLng, order []int, iterations int) []int {
	if iterations <= 0 {
		iterations = 1
	}
	best := append([]int(nil), order...)
	bestDist := pathDistance(nodes, best)
	n := len(order)
	for it := 0; it < iterations; it++ {
		improved := false
		for i := 1; i < n-2; i++ {
			for k := i + 1; k < n-1; k++ {
				cand := twoOptSwap(best, i, k)
				d := pathDistance(nodes, cand)
				if d+1e-6 < bestDist {
					best = cand
					bestDist = d
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best
}

func twoOptSwap(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}

func pathDistance(nodes []model.LatLng, order []int) float64 {
	total := 0.0
	for i := 0; i < len(order)-1; i++ {
		total += HaversineKm(nodes[order[i]], nodes[order[i+1]])
	}
	return total
}
