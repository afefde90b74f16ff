package types

const (
	DefaultPlacementPosition = "front"
	DefaultPlacementX        = 0.5
	DefaultPlacementY        = 0.5
	DefaultPlacementScale    = 1.0
	DefaultPlacementAngle    = 0
)

// PrintPlacement positions a design's artwork on the product. Nil fields fall
// back to the centered front placement.
type PrintPlacement struct {
	Position *string  `json:"position,omitempty"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Scale    *float64 `json:"scale,omitempty"`
	Angle    *int     `json:"angle,omitempty"`
}

// ResolvedPlacement is a fully populated placement.
type ResolvedPlacement struct {
	Position string
	X        float64
	Y        float64
	Scale    float64
	Angle    int
}

// Resolve fills unset fields with the default placement.
func (p *PrintPlacement) Resolve() ResolvedPlacement {
	out := ResolvedPlacement{
		Position: DefaultPlacementPosition,
		X:        DefaultPlacementX,
		Y:        DefaultPlacementY,
		Scale:    DefaultPlacementScale,
		Angle:    DefaultPlacementAngle,
	}
	if p == nil {
		return out
	}
	if p.Position != nil && *p.Position != "" {
		out.Position = *p.Position
	}
	if p.X != nil {
		out.X = *p.X
	}
	if p.Y != nil {
		out.Y = *p.Y
	}
	if p.Scale != nil && *p.Scale > 0 {
		out.Scale = *p.Scale
	}
	if p.Angle != nil {
		out.Angle = *p.Angle
	}
	return out
}
