package kinematic

import (
	"math"
)

// Vector is a point or direction in world units. The simulation moves
// entities on the X/Y plane; Z is carried for custom fields.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vector) Add(o Vector) Vector {
	return Vector{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vector) Sub(o Vector) Vector {
	return Vector{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

func (v Vector) Scale(s float64) Vector {
	return Vector{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

func (v Vector) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalized returns a unit-length copy of v, or the zero vector.
func (v Vector) Normalized() Vector {
	l := v.Length()
	if l == 0 {
		return Vector{}
	}
	return v.Scale(1 / l)
}

func (v Vector) DistanceTo(o Vector) float64 {
	return v.Sub(o).Length()
}

// Orientation is a set of Euler angles in degrees.
type Orientation struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// Lerp linearly interpolates between a and b by factor f.
func Lerp(a, b, f float64) float64 {
	return a + (b-a)*f
}

// LerpVector linearly interpolates each component of a and b by factor f.
func LerpVector(a, b Vector, f float64) Vector {
	return Vector{
		X: Lerp(a.X, b.X, f),
		Y: Lerp(a.Y, b.Y, f),
		Z: Lerp(a.Z, b.Z, f),
	}
}

// LerpAngle interpolates between two angles in degrees along the shortest
// arc, so 350 -> 10 passes through 0, not 180.
func LerpAngle(a, b, f float64) float64 {
	delta := math.Mod(b-a, 360)
	if delta > 180 {
		delta -= 360
	} else if delta < -180 {
		delta += 360
	}
	return a + delta*f
}

// LerpOrientation interpolates each axis of two orientations along the
// shortest arc.
func LerpOrientation(a, b Orientation, f float64) Orientation {
	return Orientation{
		Yaw:   LerpAngle(a.Yaw, b.Yaw, f),
		Pitch: LerpAngle(a.Pitch, b.Pitch, f),
		Roll:  LerpAngle(a.Roll, b.Roll, f),
	}
}

// Displacement returns the displacement of an object given its initial
// velocity, time, and acceleration.
func Displacement(initialVelocity float64, time float64, acceleration float64) float64 {
	return initialVelocity*time + 0.5*acceleration*math.Pow(time, 2)
}

// FinalVelocity returns the final velocity of an object given its initial
// velocity, time, and acceleration.
func FinalVelocity(initialVelocity float64, time float64, acceleration float64) float64 {
	return initialVelocity + acceleration*time
}
