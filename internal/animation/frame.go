package animation

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// layout is the shared, immutable parameter order of a set of frames.
type layout struct {
	specs []ParamSpec
	index map[string]int
}

func newLayout(specs []ParamSpec) (*layout, error) {
	l := &layout{specs: specs, index: make(map[string]int, len(specs))}
	for i, s := range specs {
		if _, dup := l.index[s.Name]; dup {
			return nil, &AnimationError{Param: s.Name, Err: ErrDuplicateParameter}
		}
		l.index[s.Name] = i
	}
	return l, nil
}

// PoseFrame is the ordered parameter set produced by one tick. Frames handed
// out by the Driver are never written again.
type PoseFrame struct {
	layout *layout
	values []float64
	set    []bool
}

func newFrame(l *layout) PoseFrame {
	return PoseFrame{layout: l, values: make([]float64, len(l.specs)), set: make([]bool, len(l.specs))}
}

func defaultFrame(l *layout) PoseFrame {
	f := newFrame(l)
	for i, s := range l.specs {
		f.values[i] = s.Default
		f.set[i] = true
	}
	return f
}

// IsZero reports whether f is the empty frame.
func (f PoseFrame) IsZero() bool {
	return f.layout == nil
}

// Len returns the number of parameters.
func (f PoseFrame) Len() int {
	return len(f.values)
}

// Get returns a parameter value.
func (f PoseFrame) Get(name string) (float64, bool) {
	if f.layout == nil {
		return 0, false
	}
	i, ok := f.layout.index[name]
	if !ok || !f.set[i] {
		return 0, false
	}
	return f.values[i], true
}

// Value returns a parameter value or 0.
func (f PoseFrame) Value(name string) float64 {
	v, _ := f.Get(name)
	return v
}

func (f *PoseFrame) put(name string, v float64) {
	if i, ok := f.layout.index[name]; ok {
		f.values[i] = v
		f.set[i] = true
	}
}

func (f *PoseFrame) add(name string, dv float64) {
	if i, ok := f.layout.index[name]; ok {
		f.values[i] += dv
	}
}

// Names returns the parameter names in output order.
func (f PoseFrame) Names() []string {
	if f.layout == nil {
		return nil
	}
	out := make([]string, len(f.layout.specs))
	for i, s := range f.layout.specs {
		out[i] = s.Name
	}
	return out
}

// Each calls fn for every parameter in output order.
func (f PoseFrame) Each(fn func(name string, value float64)) {
	if f.layout == nil {
		return
	}
	for i, s := range f.layout.specs {
		fn(s.Name, f.values[i])
	}
}

// Map returns the values keyed by name.
func (f PoseFrame) Map() map[string]float64 {
	out := make(map[string]float64, len(f.values))
	f.Each(func(name string, v float64) { out[name] = v })
	return out
}

// Clone returns an independent copy.
func (f PoseFrame) Clone() PoseFrame {
	if f.layout == nil {
		return f
	}
	out := PoseFrame{layout: f.layout, values: make([]float64, len(f.values)), set: make([]bool, len(f.set))}
	copy(out.values, f.values)
	copy(out.set, f.set)
	return out
}

// MarshalJSON encodes the frame as an object whose keys keep output order.
func (f PoseFrame) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	var err error
	f.Each(func(name string, v float64) {
		if err != nil {
			return
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, kerr := json.Marshal(name)
		if kerr != nil {
			err = kerr
			return
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(strconv.AppendFloat(nil, v, 'f', -1, 64))
	})
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
