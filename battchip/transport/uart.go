package transport

// A 115200 baud UART can generate 1-Wire time slots: every character sent is
// one slot, 0xFF starts a read or write-one slot and 0x00 a write-zero slot.
// A device answering zero pulls the line low during the read slot, corrupting
// the echoed character. The reset pulse is an 0xF0 character at 9600 baud, a
// presence pulse shows up as a changed echo.
//
// Maxim application note 214: "Using a UART to Implement a 1-Wire Bus Master".

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

const (
	uartResetBaud = 9600
	uartDataBaud  = 115200

	uartResetPulse byte = 0xF0
	uartSlotOne    byte = 0xFF
	uartSlotZero   byte = 0x00
)

var (
	ErrNoPresence = errors.New("no presence pulse")
	ErrBusShorted = errors.New("bus is shorted")
	ErrEcho       = errors.New("echo mismatch")
)

// SerialPort is the part of serial.Port used by the UART master.
type SerialPort interface {
	io.ReadWriteCloser
	SetMode(mode *serial.Mode) error
	ResetInputBuffer() error
}

// UART is a 1-Wire master built from a plain serial port and a diode or
// transistor between TX and RX.
type UART struct {
	name string
	port SerialPort
}

func uartMode(baud int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// OpenUART opens a serial device as 1-Wire master.
func OpenUART(name string) (*UART, error) {
	port, err := serial.Open(name, uartMode(uartDataBaud))
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", name, err)
	}

	if err := port.SetReadTimeout(time.Second); err != nil {
		port.Close()
		return nil, err
	}

	return NewUART(name, port), nil
}

func NewUART(name string, port SerialPort) *UART {
	return &UART{
		name: name,
		port: port,
	}
}

func (u *UART) String() string {
	return "uart:" + u.name
}

func (u *UART) exchange(tx []byte) ([]byte, error) {
	if _, err := u.port.Write(tx); err != nil {
		return nil, err
	}

	rx := make([]byte, len(tx))
	for got := 0; got < len(rx); {
		n, err := u.port.Read(rx[got:])
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, fmt.Errorf("timeout after %d of %d slots", got, len(rx))
		}
		got += n
	}

	return rx, nil
}

func (u *UART) Reset() error {
	if err := u.port.SetMode(uartMode(uartResetBaud)); err != nil {
		return err
	}

	if err := u.port.ResetInputBuffer(); err != nil {
		return err
	}

	rx, err := u.exchange([]byte{uartResetPulse})

	if errMode := u.port.SetMode(uartMode(uartDataBaud)); err == nil {
		err = errMode
	}
	if err != nil {
		return err
	}

	switch rx[0] {
	case uartResetPulse:
		return ErrNoPresence
	case 0x00:
		return ErrBusShorted
	}
	return nil
}

func (u *UART) WriteBlock(data []byte) error {
	slots := make([]byte, 0, 8*len(data))
	for _, b := range data {
		for i := 0; i < 8; i++ {
			if b&(1<<i) != 0 {
				slots = append(slots, uartSlotOne)
			} else {
				slots = append(slots, uartSlotZero)
			}
		}
	}

	rx, err := u.exchange(slots)
	if err != nil {
		return err
	}

	for i := range slots {
		if rx[i] != slots[i] {
			return fmt.Errorf("%w in bit %d of byte %d", ErrEcho, i%8, i/8)
		}
	}

	return nil
}

func (u *UART) ReadByte() (byte, error) {
	var b [1]byte
	err := u.ReadBlock(b[:])
	return b[0], err
}

func (u *UART) ReadBlock(buf []byte) error {
	slots := make([]byte, 8*len(buf))
	for i := range slots {
		slots[i] = uartSlotOne
	}

	rx, err := u.exchange(slots)
	if err != nil {
		return err
	}

	for i := range buf {
		var b byte
		for j := 0; j < 8; j++ {
			if rx[8*i+j] == uartSlotOne {
				b |= 1 << j
			}
		}
		buf[i] = b
	}

	return nil
}

func (u *UART) Close() error {
	return u.port.Close()
}
