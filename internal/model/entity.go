package model

import "github.com/pjbroadbent/layouts-service/internal/geometry"

// Entity is a snap-resolver participant: either a standalone window or a
// tab group presenting its strip and active body as one rectangle.
type Entity interface {
	EntityID() string
	Rect() geometry.Rect
	Contains(p geometry.Point) bool
}

var (
	_ Entity = (*Window)(nil)
	_ Entity = (*TabGroup)(nil)
)
