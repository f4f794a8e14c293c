// Package battchip reads the identification EPROM of a TI BQ2022 battery chip
// over a HDQ/1-Wire bus and classifies the battery pack from its contents.
package battchip

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"periph.io/x/conn/v3/onewire"
)

type LogFunc func(format string, params ...interface{})

// CRCFunc computes the 8-bit CRC used by the chip.
type CRCFunc func(data []byte) byte

// Transport is a single-wire bus master. The caller of a Chip is responsible
// for exclusive access to the bus for the duration of a transaction.
type Transport interface {
	// Reset issues a reset pulse, a nil result means a device answered.
	Reset() error
	WriteBlock(data []byte) error
	ReadByte() (byte, error)
	// ReadBlock fills buf completely.
	ReadBlock(buf []byte) error
}

var (
	ErrBusReset         = errors.New("bus reset failed")
	ErrCommandCRC       = errors.New("command crc mismatch")
	ErrDataCRC          = errors.New("data crc mismatch")
	ErrRetriesExhausted = errors.New("read retries exhausted")
	ErrDeviceAbsent     = errors.New("no device attached")
)

const (
	hdqCmdSkipROM   byte = 0xCC
	hdqCmdReadField byte = 0xF0
)

// MaxAttempts bounds the number of bus transactions per read.
const MaxAttempts = 5

// TransactionReadLen is the number of bytes clocked in during one read
// transaction: the command CRC, the field and the data CRC.
const TransactionReadLen = 1 + ImageSize + 1

// State is the lifecycle state of a Chip.
type State int

const (
	StateUnattached State = iota
	StateReading
	StateValid
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateUnattached:
		return "Unattached"
	case StateReading:
		return "Reading"
	case StateValid:
		return "Valid"
	case StateInvalid:
		return "Invalid"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, m := range []State{StateUnattached, StateReading, StateValid, StateInvalid} {
		if m.String() == string(text) {
			*s = m
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

type Options struct {
	// CRC8 defaults to the Maxim 1-Wire CRC, as computed by the kernel w1 core.
	CRC8 CRCFunc

	LogFunc LogFunc
}

// Chip is the handle for one attached BQ2022.
type Chip struct {
	workMutex sync.Mutex

	transport Transport
	crc8      CRCFunc

	state    State
	image    Image
	identity Identity
	lastErr  error
	lastRead time.Time
	stats    Stats

	logFunc LogFunc
}

func (c *Chip) log(format string, params ...interface{}) {
	if c.logFunc != nil {
		c.logFunc(" * "+format, params...)
	}
}

// New returns an unattached handle.
func New(opts Options) *Chip {
	c := &Chip{
		crc8:    opts.CRC8,
		logFunc: opts.LogFunc,
	}

	if c.crc8 == nil {
		c.crc8 = onewire.CalcCRC
	}

	return c
}

// Attach binds the transport and reads the memory field. The handle stays
// attached when the read fails, Refresh can be used to try again. A transport
// attached earlier is closed when it is replaced.
func (c *Chip) Attach(t Transport) error {
	if t == nil {
		return ErrDeviceAbsent
	}

	c.workMutex.Lock()
	defer c.workMutex.Unlock()

	if old := c.transport; old != nil && old != t {
		if closer, ok := old.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				c.log("Closing previous transport failed: %v", err)
			}
		}
	}

	c.transport = t
	c.image = Image{}
	c.identity = Identity{}

	return c.read()
}

// Detach forgets the transport and everything read through it.
func (c *Chip) Detach() {
	c.workMutex.Lock()
	defer c.workMutex.Unlock()

	c.detach()
}

func (c *Chip) detach() {
	c.transport = nil
	c.state = StateUnattached
	c.image = Image{}
	c.identity = Identity{}
	c.lastErr = nil
	c.lastRead = time.Time{}
}

// Close detaches the chip and closes the transport if it supports it.
func (c *Chip) Close() error {
	c.workMutex.Lock()
	defer c.workMutex.Unlock()

	t := c.transport
	c.detach()

	if closer, ok := t.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Refresh forces a new read of the memory field.
func (c *Chip) Refresh() error {
	c.workMutex.Lock()
	defer c.workMutex.Unlock()

	if c.transport == nil {
		return ErrDeviceAbsent
	}

	return c.read()
}

func (c *Chip) read() error {
	var scratch Image

	c.state = StateReading
	c.stats.Transactions++

	err := c.readRetry(&scratch)
	if err != nil {
		c.stats.Exhausted++
		c.state = StateInvalid
		c.identity = Identity{}
		c.lastErr = err
		c.log("Read fatal error: %v", err)
		return err
	}

	c.stats.Successes++
	c.image = scratch
	c.identity = Decode(scratch)
	c.state = StateValid
	c.lastErr = nil
	c.lastRead = time.Now()

	if c.identity.Authentic {
		c.log("Pseudo info: 0x%08x", c.identity.PseudoID)
	} else {
		c.log("Cannot read battery id, header is 0x%08x", c.identity.Header)
	}

	return nil
}

func (c *Chip) readRetry(img *Image) error {
	var err error

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		c.stats.Attempts++

		err = c.readOnce(img)
		if err == nil {
			return nil
		}

		c.log("Attempt %d/%d failed: %v", attempt, MaxAttempts, err)
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, MaxAttempts, err)
}

// busFailed counts a transport error. Transports that only learn about the
// presence pulse later in the transaction report it wrapping ErrBusReset.
func (c *Chip) busFailed(err error) error {
	if errors.Is(err, ErrBusReset) {
		c.stats.ResetFailures++
	} else {
		c.stats.BusErrors++
	}
	return err
}

func (c *Chip) readOnce(img *Image) error {
	t := c.transport

	if err := t.Reset(); err != nil {
		c.stats.ResetFailures++
		return fmt.Errorf("%w: %v", ErrBusReset, err)
	}

	/* Skip ROM, read field, two address bytes */
	cmd := [4]byte{hdqCmdSkipROM, hdqCmdReadField, 0x00, 0x00}
	if err := t.WriteBlock(cmd[:]); err != nil {
		return c.busFailed(err)
	}

	/* The chip answers with the CRC of everything after the ROM command */
	crc, err := t.ReadByte()
	if err != nil {
		return c.busFailed(err)
	}
	if calc := c.crc8(cmd[1:]); calc != crc {
		c.stats.CommandCRCFailures++
		return fmt.Errorf("%w: got %02x, expected %02x", ErrCommandCRC, crc, calc)
	}

	if err := t.ReadBlock(img[:]); err != nil {
		return c.busFailed(err)
	}

	crc, err = t.ReadByte()
	if err != nil {
		return c.busFailed(err)
	}
	if calc := c.crc8(img[:]); calc != crc {
		c.stats.DataCRCFailures++
		return fmt.Errorf("%w: got %02x, expected %02x", ErrDataCRC, crc, calc)
	}

	return nil
}

// State returns the lifecycle state of the handle.
func (c *Chip) State() State {
	c.workMutex.Lock()
	defer c.workMutex.Unlock()

	return c.state
}

// ResistanceClass returns the resistance class code of the attached battery.
// Any failure to determine it yields 0.
func (c *Chip) ResistanceClass() Resistance {
	c.workMutex.Lock()
	defer c.workMutex.Unlock()

	if c.state != StateValid {
		return ResistanceUnknown
	}

	return c.identity.Resistance()
}

// Identify returns the identity decoded from the last successful read.
func (c *Chip) Identify() (Identity, error) {
	c.workMutex.Lock()
	defer c.workMutex.Unlock()

	switch c.state {
	case StateValid:
		return c.identity, nil
	case StateInvalid:
		return Identity{}, c.lastErr
	default:
		return Identity{}, ErrDeviceAbsent
	}
}

// Image returns a copy of the committed image and whether it is valid.
func (c *Chip) Image() (Image, bool) {
	c.workMutex.Lock()
	defer c.workMutex.Unlock()

	return c.image, c.state == StateValid
}

// Stats returns a snapshot of the transaction counters.
func (c *Chip) Stats() Stats {
	c.workMutex.Lock()
	defer c.workMutex.Unlock()

	return c.stats
}

// Diagnostics is a point in time copy of the handle for debugging.
type Diagnostics struct {
	State    State
	Valid    bool
	Image    []byte
	Identity Identity
	LastRead time.Time
	Error    string `json:",omitempty" cbor:",omitempty"`
	Stats    Stats
}

func (c *Chip) Diagnostics() Diagnostics {
	c.workMutex.Lock()
	defer c.workMutex.Unlock()

	d := Diagnostics{
		State:    c.state,
		Valid:    c.state == StateValid,
		Image:    append([]byte{}, c.image[:]...),
		Identity: c.identity,
		LastRead: c.lastRead,
		Stats:    c.stats,
	}

	if c.lastErr != nil {
		d.Error = c.lastErr.Error()
	}

	return d
}
