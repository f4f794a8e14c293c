package transport

import (
	"errors"
	"fmt"
	"io"

	"github.com/BertoldVdb/battid/battchip"
	"periph.io/x/conn/v3/onewire"
)

// Bus adapts a periph.io 1-Wire bus. periph runs reset, write and read as
// one Tx, so writes are queued and the first read performs the transaction,
// clocking in readAhead bytes that later reads are served from.
type Bus struct {
	bus       onewire.Bus
	readAhead int

	tx      []byte
	rx      []byte
	started bool
}

func NewBus(bus onewire.Bus, readAhead int) *Bus {
	return &Bus{
		bus:       bus,
		readAhead: readAhead,
	}
}

func (b *Bus) String() string {
	return b.bus.String()
}

// Reset starts a new transaction. The actual reset pulse is part of the Tx,
// a missing device is reported by the first read as battchip.ErrBusReset.
func (b *Bus) Reset() error {
	b.tx = b.tx[:0]
	b.rx = nil
	b.started = false
	return nil
}

func (b *Bus) WriteBlock(data []byte) error {
	if b.started {
		return errors.New("write after read in the same transaction")
	}
	b.tx = append(b.tx, data...)
	return nil
}

func (b *Bus) fill() error {
	if b.started {
		return nil
	}
	b.started = true

	rx := make([]byte, b.readAhead)
	if err := b.bus.Tx(b.tx, rx, onewire.WeakPullup); err != nil {
		var busErr onewire.BusError
		if errors.As(err, &busErr) && busErr.BusError() {
			return fmt.Errorf("%w: %v", battchip.ErrBusReset, err)
		}
		return err
	}

	b.rx = rx
	return nil
}

func (b *Bus) ReadByte() (byte, error) {
	var buf [1]byte
	err := b.ReadBlock(buf[:])
	return buf[0], err
}

func (b *Bus) ReadBlock(buf []byte) error {
	if err := b.fill(); err != nil {
		return err
	}

	if len(b.rx) < len(buf) {
		return fmt.Errorf("read of %d bytes beyond the %d byte read-ahead", len(buf), b.readAhead)
	}

	copy(buf, b.rx)
	b.rx = b.rx[len(buf):]
	return nil
}

func (b *Bus) Close() error {
	if closer, ok := b.bus.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
