package gudalt

import (
	"math"
)

// Float16 represents a 16-bit floating point number
type Float16 uint16

// Float16 conversion constants
const (
	float16SignMask     = 0x8000
	float16ExponentMask = 0x7C00
	float16MantissaMask = 0x03FF
	float16ExponentBias = 15
	float16MantissaBits = 10
)

// ToFloat32 converts Float16 to float32
func (f Float16) ToFloat32() float32 {
	sign := uint32(f&float16SignMask) << 16
	exponent := uint32(f&float16ExponentMask) >> float16MantissaBits
	mantissa := uint32(f & float16MantissaMask)

	switch exponent {
	case 0:
		// Zero or subnormal: mantissa * 2^-24 is exact in float32
		v := float32(mantissa) * 0x1p-24
		if sign != 0 {
			return -v
		}
		return v
	case 0x1F:
		if mantissa == 0 {
			return math.Float32frombits(sign | 0x7F800000)
		}
		return math.Float32frombits(sign | 0x7FC00000 | (mantissa << 13))
	}

	return math.Float32frombits(sign | ((exponent + 127 - float16ExponentBias) << 23) | (mantissa << 13))
}

// FromFloat32 converts float32 to Float16, rounding to nearest even
func FromFloat32(f float32) Float16 {
	bits := math.Float32bits(f)
	sign := (bits >> 16) & float16SignMask
	exponent := int((bits >> 23) & 0xFF)
	mantissa := bits & 0x7FFFFF

	if exponent == 0xFF {
		if mantissa == 0 {
			return Float16(sign | float16ExponentMask)
		}
		return Float16(sign | float16ExponentMask | 0x200 | (mantissa >> 13))
	}

	exp := exponent - 127 + float16ExponentBias
	if exp >= 0x1F {
		return Float16(sign | float16ExponentMask)
	}

	if exp <= 0 {
		if exp < -10 {
			return Float16(sign)
		}
		// Subnormal result
		mantissa |= 0x800000
		shift := uint32(14 - exp)
		half := uint32(1) << (shift - 1)
		rem := mantissa & (1<<shift - 1)
		m := mantissa >> shift
		if rem > half || (rem == half && m&1 == 1) {
			m++
		}
		return Float16(sign | m)
	}

	m := mantissa >> 13
	rem := mantissa & 0x1FFF
	h := uint32(exp)<<float16MantissaBits | m
	// A carry out of the mantissa bumps the exponent, up to infinity
	if rem > 0x1000 || (rem == 0x1000 && m&1 == 1) {
		h++
	}
	return Float16(sign | h)
}

// Float16Slice wraps a byte slice as Float16 values
type Float16Slice struct {
	data []byte
}

// NewFloat16Slice creates a Float16 slice from a byte slice
func NewFloat16Slice(data []byte) Float16Slice {
	return Float16Slice{data: data}
}

// Len returns the number of Float16 elements
func (s Float16Slice) Len() int {
	return len(s.data) / 2
}

// Get returns the Float16 at index i
func (s Float16Slice) Get(i int) Float16 {
	return Float16(uint16(s.data[i*2]) | (uint16(s.data[i*2+1]) << 8))
}

// Set sets the Float16 at index i
func (s Float16Slice) Set(i int, val Float16) {
	s.data[i*2] = byte(val)
	s.data[i*2+1] = byte(val >> 8)
}

// GetFloat32 returns the value at index i as float32
func (s Float16Slice) GetFloat32(i int) float32 {
	return s.Get(i).ToFloat32()
}

// SetFloat32 sets the value at index i from float32
func (s Float16Slice) SetFloat32(i int, val float32) {
	s.Set(i, FromFloat32(val))
}

// Float16 returns a Float16 slice view of the memory
func (d DevicePtr) Float16() Float16Slice {
	if d.ptr == nil {
		return Float16Slice{}
	}
	return NewFloat16Slice(d.Byte())
}

// Float16sFromFloat32 rounds a host slice to half precision.
func Float16sFromFloat32(src []float32) []Float16 {
	dst := make([]Float16, len(src))
	for i, v := range src {
		dst[i] = FromFloat32(v)
	}
	return dst
}
