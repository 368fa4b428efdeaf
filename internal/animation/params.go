// Package animation computes the per-tick PoseFrame. Parameters pass through
// a fixed layer order: motion, physics, pose switch, procedural, manual
// override. Each layer reads the output of the one before it.
package animation

import "strings"

// ParamSpec declares one pose parameter.
type ParamSpec struct {
	Name    string  `json:"name"`
	Default float64 `json:"default"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`

	// Physics marks parameters smoothed by the spring layer
	Physics bool `json:"physics,omitempty"`
}

func (s ParamSpec) clamp(v float64) float64 {
	if s.Min >= s.Max {
		return v
	}
	return clamp(v, s.Min, s.Max)
}

// Parameter names.
const (
	ParamBodyActive    = "body.active"
	ParamHandLeftDown  = "hand.left.down"
	ParamHandRightDown = "hand.right.down"
	ParamHairSway      = "hair.sway"
	ParamAccessorySway = "accessory.sway"
	ParamEyeOpen       = "eye.open"
	ParamBodyBreath    = "body.breath"
	ParamHeadAngleX    = "head.angle.x"
	ParamHeadAngleY    = "head.angle.y"
	ParamArmAngle      = "arm.right.angle"
	ParamEyeBallX      = "eye.ball.x"
	ParamEyeBallY      = "eye.ball.y"
	ParamMouseX        = "mouse.x"
	ParamMouseY        = "mouse.y"
	ParamMouseLeft     = "mouse.left"
	ParamMouseRight    = "mouse.right"
	ParamMouseMiddle   = "mouse.middle"

	// PartPrefix starts every part-opacity parameter
	PartPrefix = "part."
)

// DefaultParams returns the built-in parameter set. Part parameters are added
// per mode with Driver.SetParts.
func DefaultParams() []ParamSpec {
	return []ParamSpec{
		{Name: ParamBodyActive, Default: 0, Min: 0, Max: 1},
		{Name: ParamHandLeftDown, Default: 0, Min: 0, Max: 1},
		{Name: ParamHandRightDown, Default: 0, Min: 0, Max: 1},
		{Name: ParamHairSway, Default: 0, Min: -1, Max: 1, Physics: true},
		{Name: ParamAccessorySway, Default: 0, Min: -1, Max: 1, Physics: true},
		{Name: ParamEyeOpen, Default: 1, Min: 0, Max: 1},
		{Name: ParamBodyBreath, Default: 0, Min: -1, Max: 1},
		{Name: ParamHeadAngleX, Default: 0, Min: -180, Max: 180},
		{Name: ParamHeadAngleY, Default: 0, Min: -180, Max: 180},
		{Name: ParamArmAngle, Default: 0, Min: -180, Max: 180},
		{Name: ParamEyeBallX, Default: 0, Min: -1, Max: 1},
		{Name: ParamEyeBallY, Default: 0, Min: -1, Max: 1},
		{Name: ParamMouseX, Default: 0.5, Min: 0, Max: 1},
		{Name: ParamMouseY, Default: 0.5, Min: 0, Max: 1},
		{Name: ParamMouseLeft, Default: 0, Min: 0, Max: 1},
		{Name: ParamMouseRight, Default: 0, Min: 0, Max: 1},
		{Name: ParamMouseMiddle, Default: 0, Min: 0, Max: 1},
	}
}

// PartSpec declares a part-opacity parameter.
func PartSpec(name string) ParamSpec {
	if !strings.HasPrefix(name, PartPrefix) {
		name = PartPrefix + name
	}
	return ParamSpec{Name: name, Default: 0, Min: 0, Max: 1}
}

// IsPart reports whether name is a part-opacity parameter.
func IsPart(name string) bool {
	return strings.HasPrefix(name, PartPrefix)
}
