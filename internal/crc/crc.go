// Package crc implements the CRC-16 used by the controller's
// CRC-protected instruction variants (polynomial 0x8005, init 0xFFFF, MSB first).
package crc

type CRC16 uint16

const polynomial uint16 = 0x8005

// New returns a CRC accumulator with the link-protocol seed.
func New() CRC16 {
	return 0xFFFF
}

// Single feeds one byte into the accumulator.
func (crc *CRC16) Single(b byte) {
	acc := uint16(*crc) ^ (uint16(b) << 8)
	for i := 0; i < 8; i++ {
		if acc&0x8000 != 0 {
			acc = (acc << 1) ^ polynomial
		} else {
			acc <<= 1
		}
	}
	*crc = CRC16(acc)
}

// Block feeds a byte slice into the accumulator.
func (crc *CRC16) Block(data []byte) {
	for _, b := range data {
		crc.Single(b)
	}
}

// Checksum returns the CRC of data in one call.
func Checksum(data []byte) uint16 {
	crc := New()
	crc.Block(data)
	return uint16(crc)
}
