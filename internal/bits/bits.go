// Package bits provides typed bitfield accessors for packed 32-bit registers.
package bits

// Field describes a contiguous bitfield inside a 32-bit register word.
type Field struct {
	Shift uint32
	Width uint32
}

// Mask returns the field mask in register position.
func (f Field) Mask() uint32 {
	return ((uint32(1) << f.Width) - 1) << f.Shift
}

// Max returns the largest value the field can hold.
func (f Field) Max() uint32 {
	return (uint32(1) << f.Width) - 1
}

// Pack places value into the field position, truncated to the field width.
func (f Field) Pack(value uint32) uint32 {
	return (value << f.Shift) & f.Mask()
}

// Unpack extracts the field value from a register word.
func (f Field) Unpack(reg uint32) uint32 {
	return (reg & f.Mask()) >> f.Shift
}

// Fits reports whether value can be stored without truncation.
func (f Field) Fits(value uint32) bool {
	return value <= f.Max()
}

// Bit returns a mask with bit n set.
func Bit(n uint32) uint32 {
	return uint32(1) << n
}
