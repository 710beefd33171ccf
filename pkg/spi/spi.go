// Package spi implements the command protocol spoken over the byte-serial
// link to the controller: a 16-bit big-endian header carrying an instruction
// opcode and a 12-bit address, followed by the data bytes of the accessed
// span. Register contents travel little-endian inside the span.
//
// The transport itself is out of scope and abstracted by the Bus interface;
// it is assumed synchronous, full duplex and ordered.
package spi

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/tsambor/gocanfd/internal/crc"
	"github.com/tsambor/gocanfd/pkg/reg"
)

// Instruction opcodes, occupying the top nibble of the command header.
const (
	instrReset     uint16 = 0x0000
	instrRead      uint16 = 0x3000
	instrWrite     uint16 = 0x2000
	instrReadCRC   uint16 = 0xB000
	instrWriteCRC  uint16 = 0xA000
	instrWriteSafe uint16 = 0xC000

	addressMask uint16 = 0x0FFF
)

var (
	ErrZeroMask = errors.New("spi: register mask must have at least one bit set")
	ErrCRC      = errors.New("spi: crc mismatch on protected transfer")
)

// Bus is the byte-serial command link. Exchange clocks out tx, then fills
// rx with the bytes the peer clocks back. Implementations must be
// synchronous and preserve ordering; they need not be safe for concurrent
// use, serialization is the caller's job.
type Bus interface {
	Exchange(tx []byte, rx []byte) error
}

// Client encodes register and RAM accesses for a Bus.
type Client struct {
	bus Bus
}

func NewClient(bus Bus) *Client {
	return &Client{bus: bus}
}

func header(instruction uint16, addr reg.Address) []byte {
	cmd := instruction | (uint16(addr) & addressMask)
	return []byte{byte(cmd >> 8), byte(cmd)}
}

// maskSpan returns the first and last byte index (0..3) touched by mask.
func maskSpan(mask uint32) (int, int, error) {
	if mask == 0 {
		return 0, 0, ErrZeroMask
	}
	first := bits.TrailingZeros32(mask) / 8
	last := (31 - bits.LeadingZeros32(mask)) / 8
	return first, last, nil
}

// Reset issues the reset instruction. The caller must treat all previously
// read device state, the operating mode in particular, as unknown afterwards.
func (c *Client) Reset() error {
	if err := c.bus.Exchange(header(instrReset, 0), nil); err != nil {
		return fmt.Errorf("spi: reset: %w", err)
	}
	return nil
}

// ReadRegister reads the minimal byte span of a 32-bit register covered by
// mask and returns the register value masked to it.
func (c *Client) ReadRegister(addr reg.Address, mask uint32) (uint32, error) {
	first, last, err := maskSpan(mask)
	if err != nil {
		return 0, err
	}
	span := make([]byte, last-first+1)
	if err := c.bus.Exchange(header(instrRead, addr+reg.Address(first)), span); err != nil {
		return 0, fmt.Errorf("spi: read 0x%03X: %w", addr, err)
	}
	var value uint32
	for i, b := range span {
		value |= uint32(b) << (8 * (first + i))
	}
	return value & mask, nil
}

// WriteRegister writes the bits of value selected by mask, touching only the
// minimal byte span that covers the mask.
func (c *Client) WriteRegister(addr reg.Address, value uint32, mask uint32) error {
	first, last, err := maskSpan(mask)
	if err != nil {
		return err
	}
	tx := header(instrWrite, addr+reg.Address(first))
	for i := first; i <= last; i++ {
		tx = append(tx, byte(value>>(8*i)))
	}
	if err := c.bus.Exchange(tx, nil); err != nil {
		return fmt.Errorf("spi: write 0x%03X: %w", addr, err)
	}
	return nil
}

// ReadBytes fills buf from consecutive addresses, used for RAM-backed
// message objects.
func (c *Client) ReadBytes(addr reg.Address, buf []byte) error {
	if err := c.bus.Exchange(header(instrRead, addr), buf); err != nil {
		return fmt.Errorf("spi: read %d bytes at 0x%03X: %w", len(buf), addr, err)
	}
	return nil
}

// WriteBytes writes data to consecutive addresses.
func (c *Client) WriteBytes(addr reg.Address, data []byte) error {
	tx := append(header(instrWrite, addr), data...)
	if err := c.bus.Exchange(tx, nil); err != nil {
		return fmt.Errorf("spi: write %d bytes at 0x%03X: %w", len(data), addr, err)
	}
	return nil
}

// ReadBytesCRC is the CRC-protected variant of ReadBytes. The peer appends a
// CRC-16 computed over the command bytes and the data; a mismatch is
// reported as ErrCRC without retry.
func (c *Client) ReadBytesCRC(addr reg.Address, buf []byte) error {
	tx := append(header(instrReadCRC, addr), byte(len(buf)))
	rx := make([]byte, len(buf)+2)
	if err := c.bus.Exchange(tx, rx); err != nil {
		return fmt.Errorf("spi: crc read at 0x%03X: %w", addr, err)
	}
	sum := crc.New()
	sum.Block(tx)
	sum.Block(rx[:len(buf)])
	received := uint16(rx[len(buf)])<<8 | uint16(rx[len(buf)+1])
	if uint16(sum) != received {
		return fmt.Errorf("%w: got 0x%04X want 0x%04X", ErrCRC, received, uint16(sum))
	}
	copy(buf, rx[:len(buf)])
	return nil
}

// WriteBytesCRC is the CRC-protected variant of WriteBytes.
func (c *Client) WriteBytesCRC(addr reg.Address, data []byte) error {
	tx := append(header(instrWriteCRC, addr), byte(len(data)))
	tx = append(tx, data...)
	sum := crc.Checksum(tx)
	tx = append(tx, byte(sum>>8), byte(sum))
	if err := c.bus.Exchange(tx, nil); err != nil {
		return fmt.Errorf("spi: crc write at 0x%03X: %w", addr, err)
	}
	return nil
}

// WriteBytesSafe uses the write-safe opcode: the peer only commits the data
// if the trailing CRC matches.
func (c *Client) WriteBytesSafe(addr reg.Address, data []byte) error {
	tx := append(header(instrWriteSafe, addr), data...)
	sum := crc.Checksum(tx)
	tx = append(tx, byte(sum>>8), byte(sum))
	if err := c.bus.Exchange(tx, nil); err != nil {
		return fmt.Errorf("spi: safe write at 0x%03X: %w", addr, err)
	}
	return nil
}
