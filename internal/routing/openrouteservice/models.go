package openrouteservice

// Request and response bodies of the ORS v2 JSON API. Only the fields the
// client reads are decoded.

type matrixRequest struct {
	Locations [][]float64 `json:"locations"` // [lon, lat]
	Metrics   []string    `json:"metrics"`
	Units     string      `json:"units"`
}

// matrixResponse cells are null where ORS found no route between the pair.
type matrixResponse struct {
	Distances [][]*float64 `json:"distances"`
	Durations [][]*float64 `json:"durations"`
}

type directionsRequest struct {
	Coordinates  [][]float64 `json:"coordinates"` // [lon, lat]
	Instructions bool        `json:"instructions"`
	Geometry     bool        `json:"geometry"`
	Units        string      `json:"units"`
}

type directionsResponse struct {
	Routes []orsRoute `json:"routes"`
}

type orsRoute struct {
	Summary  *leg      `json:"summary"`
	Segments []leg     `json:"segments,omitempty"`
	BBox     []float64 `json:"bbox,omitempty"` // minLon, minLat, maxLon, maxLat
	Geometry string    `json:"geometry"`       // encoded polyline
}

// leg is a whole route summary or the part between two waypoints. ORS
// omits zero values.
type leg struct {
	Distance float64 `json:"distance"` // meters
	Duration float64 `json:"duration"` // seconds
}

type orsErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ORS error codes meaning no route exists between the points.
const (
	orsCodeRouteNotFound  = 2009
	orsCodeMatrixNotFound = 6099
)

func unroutable(code int) bool {
	return code == orsCodeRouteNotFound || code == orsCodeMatrixNotFound
}
