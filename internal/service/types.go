// Package service contains the stateful services behind the tablemap API:
// the view settings lifecycle and the small local stores it relies on.
package service

// Viewport is a cached map position.
type Viewport struct {
	Lat  float64 `json:"lat" minimum:"-90" maximum:"90" doc:"Center latitude" example:"35.6895"`
	Lng  float64 `json:"lng" minimum:"-180" maximum:"180" doc:"Center longitude" example:"139.6917"`
	Zoom int     `json:"zoom" minimum:"0" maximum:"22" doc:"Zoom level" example:"10"`
}
