package geo

import (
	"math"
	"strings"
	"testing"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/model"
)

func TestHaversineKm(t *testing.T) {
	berlin := model.LatLng{Lat: 52.5200, Lng: 13.4050}
	munich := model.LatLng{Lat: 48.1372, Lng: 11.5756}
	got := HaversineKm(berlin, munich)
	if math.Abs(got-504) > 5 {
		t.Fatalf("Berlin-Munich = %.1f km, want ~504", got)
	}
	if HaversineKm(berlin, berlin) != 0 {
		t.Fatal("distance to self must be zero")
	}
}

func TestNavigationURL(t *testing.T) {
	url := NavigationURL(model.LatLng{Lat: 52.52, Lng: 13.405})
	if !strings.Contains(url, "destination=52.52") || !strings.Contains(url, "13.405") {
		t.Fatalf("url = %s", url)
	}
}

func TestImproveOrder2OptUncrossesPath(t *testing.T) {
	// Four corners of a square visited in a crossing order.
	nodes := []model.LatLng{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: 1},
		{Lat: 1, Lng: 0},
		{Lat: 1, Lng: 1},
	}
	crossed := []int{0, 3, 1, 2}
	improved := ImproveOrder2Opt(nodes, crossed, 5)
	if pathDistance(nodes, improved) >= pathDistance(nodes, crossed) {
		t.Fatalf("no improvement: %v -> %v", crossed, improved)
	}
}

func TestImproveOrder2OptKeepsEndpoints(t *testing.T) {
	nodes := []model.LatLng{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: 2},
		{Lat: 0, Lng: 1},
		{Lat: 0, Lng: 3},
	}
	improved := ImproveOrder2Opt(nodes, []int{0, 1, 2, 3}, 5)
	if improved[0] != 0 || improved[len(improved)-1] != 3 {
		t.Fatalf("endpoints moved: %v", improved)
	}
}
