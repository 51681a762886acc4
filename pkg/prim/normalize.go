package prim

import (
	gomath "math"

	"github.com/Faultbox/daeprim/pkg/collada"
	"github.com/Faultbox/daeprim/pkg/math"
)

// GlobalTransform returns the unit scale and up-axis correction applied to
// every geometry before its node transform. X_UP rotates 90° about Y, Y_UP
// rotates 90° about X, Z_UP is left alone. A zero Meter counts as 1.
func GlobalTransform(asset collada.Asset) math.Mat4 {
	meter := asset.Meter
	if meter == 0 {
		meter = 1
	}
	scale := math.Scale(meter, meter, meter)

	rotation := math.Identity()
	switch asset.UpAxis {
	case collada.UpAxisX:
		rotation = math.RotateY(gomath.Pi / 2)
	case collada.UpAxisZ:
	default:
		rotation = math.RotateX(gomath.Pi / 2)
	}

	return rotation.Mul(scale)
}
