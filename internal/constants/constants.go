// Package constants provides named constants used throughout the unaflow codebase.
// This centralizes magic numbers and sentinel strings for better maintainability.
package constants

// Version information reported at the start of every run.
const (
	Version     = "0.4.0-dev"
	ReleaseDate = "2026-09-30"
)

// Pairing table sentinels. Only the pairing parser compares against these;
// everything downstream works with the tagged specs it produces.
const (
	// GeometricCost in Network_Cost means edges are weighted by geometric length.
	GeometricCost = "Geometric"

	// CountWeight in Origin_Weight/Destination_Weight means every feature weighs 1.
	CountWeight = "Count"
)

// Network construction constants
const (
	// DefaultSnappingTolerance is the distance under which two line endpoints
	// are merged into the same network node.
	DefaultSnappingTolerance = 0.00001

	// StreetLayerName is the registry name of the layer the network is built from.
	StreetLayerName = "streets"
)

// Demand node roles.
const (
	RoleOrigin      = "origin"
	RoleDestination = "destination"
)

// Flow map rendering constants
const (
	// FlowWidthScale is the rendered width of the maximum-flow feature, in pixels.
	FlowWidthScale = 40.0

	// FlowWidthFloor keeps zero-flow features visible.
	FlowWidthFloor = 0.5

	// ViewZoomAdjust is added to the fitted zoom level.
	ViewZoomAdjust = 2.0

	// GeographicCRS is the reference frame maps are rendered in.
	GeographicCRS = "EPSG:4326"
)

// Colors used by the flow map templates.
var (
	DarkFlowColor  = [3]int{249, 245, 10}
	LightFlowColor = [3]int{255, 105, 180}
)

// Default worker count requested from the computation service.
const DefaultCores = 8
