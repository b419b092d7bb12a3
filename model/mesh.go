package model

import (
	"math"

	"github.com/pkg/errors"
)

// DefaultReferenceYear is subtracted from times so the trend coefficient does
// not have to absorb a huge offset.
const DefaultReferenceYear = 2009.0

// Mesh is the fixed, ordered set of locations the field lives on. Lon and Lat
// are in radians; T is nil for a purely spatial mesh.
type Mesh struct {
	Lon []float64
	Lat []float64
	T   []float64
}

// NewSpatialMesh builds a mesh from longitude/latitude in degrees.
func NewSpatialMesh(lon []float64, lat []float64) (*Mesh, error) {
	if len(lon) < 1 {
		return nil, errors.Errorf("Mesh needs at least one location")
	}
	if len(lon) != len(lat) {
		return nil, errors.Errorf("Mesh lon/lat length mismatch %d != %d", len(lon), len(lat))
	}

	m := &Mesh{
		Lon: make([]float64, len(lon)),
		Lat: make([]float64, len(lat)),
	}
	for i := range lon {
		m.Lon[i] = lon[i] * math.Pi / 180.0
		m.Lat[i] = lat[i] * math.Pi / 180.0
	}

	return m, nil
}

// NewSpatioTemporalMesh builds a mesh from longitude/latitude in degrees and
// a time coordinate, which is shifted by refYear.
func NewSpatioTemporalMesh(lon []float64, lat []float64, t []float64, refYear float64) (*Mesh, error) {
	m, err := NewSpatialMesh(lon, lat)
	if err != nil {
		return nil, err
	}
	if len(t) != len(lon) {
		return nil, errors.Errorf("Mesh time length %d != location count %d", len(t), len(lon))
	}

	m.T = make([]float64, len(t))
	for i, v := range t {
		m.T[i] = v - refYear
	}

	return m, nil
}

// Len is the number of locations.
func (m *Mesh) Len() int {
	return len(m.Lon)
}

// Temporal is true when the mesh carries a time coordinate.
func (m *Mesh) Temporal() bool {
	return m.T != nil
}

// Distance returns the great-circle distance (radians on the unit sphere)
// between locations i and j.
func (m *Mesh) Distance(i, j int) float64 {
	if i == j {
		return 0
	}
	dLat := m.Lat[j] - m.Lat[i]
	dLon := m.Lon[j] - m.Lon[i]
	sLat := math.Sin(dLat / 2)
	sLon := math.Sin(dLon / 2)
	h := sLat*sLat + math.Cos(m.Lat[i])*math.Cos(m.Lat[j])*sLon*sLon
	if h > 1 {
		h = 1
	}
	return 2 * math.Asin(math.Sqrt(h))
}
