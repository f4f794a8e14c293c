package mcp2221a

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

const (
	i2cChunkMax = 60
	i2cRetry    = 50
	i2cPoll     = 300 * time.Microsecond

	// States of the internal I²C engine, as found by Adafruit's Blinka driver.
	i2cStateStartTimeout    byte = 0x12
	i2cStateRepStartTimeout byte = 0x17
	i2cStateAddrTimeout     byte = 0x23
	i2cStateAddrNACK        byte = 0x25
	i2cStatePartialData     byte = 0x41
	i2cStateWriteTimeout    byte = 0x44
	i2cStateWritingNoStop   byte = 0x45
	i2cStateReadTimeout     byte = 0x52
	i2cStateStopTimeout     byte = 0x62
	i2cStateReadError       byte = 0x7F
)

func i2cStateFailed(addr uint16, state byte) error {
	switch state {
	case i2cStateAddrNACK:
		return fmt.Errorf("I²C NACK from address 0x%02X", addr)
	case i2cStateStartTimeout, i2cStateRepStartTimeout, i2cStateAddrTimeout,
		i2cStateWriteTimeout, i2cStateReadTimeout, i2cStateStopTimeout:
		return fmt.Errorf("I²C timeout in state 0x%02X", state)
	}
	return nil
}

// I2C returns the I²C master of the bridge.
func (mcp *MCP2221A) I2C() i2c.Bus {
	return &i2cBus{mcp: mcp}
}

type i2cBus struct {
	mcp *MCP2221A
}

func (b *i2cBus) String() string {
	return b.mcp.String() + "/i2c"
}

// SetSpeed changes the bus clock, the divider only accepts 46.5kHz to 4MHz.
func (b *i2cBus) SetSpeed(f physic.Frequency) error {
	hz := uint32(f / physic.Hertz)
	if hz > ClkHz/3 || hz < ClkHz/258 {
		return fmt.Errorf("invalid I²C speed: %s", f)
	}

	b.mcp.Lock()
	defer b.mcp.Unlock()

	cmd := makeMsg()
	cmd[3] = 0x20 /* set speed */
	cmd[4] = byte(ClkHz/hz - 3)

	rsp, err := b.mcp.send(cmdSetParams, cmd)
	if err != nil {
		return err
	}
	if parseStatus(rsp).i2cSpdChg == 0x21 {
		return fmt.Errorf("transfer in progress")
	}
	return nil
}

// Tx writes w and then reads r with a repeated start.
func (b *i2cBus) Tx(addr uint16, w, r []byte) error {
	b.mcp.Lock()
	defer b.mcp.Unlock()

	if len(w) > 0 {
		if err := b.write(addr, w, len(r) == 0); err != nil {
			return err
		}
	}

	if len(r) > 0 {
		return b.read(addr, r, len(w) > 0)
	}

	return nil
}

func (b *i2cBus) cancelIfBusy(allowNoStop bool) error {
	stat, err := b.mcp.status()
	if err != nil {
		return err
	}

	if stat.i2cState == wordClr || (allowNoStop && stat.i2cState == i2cStateWritingNoStop) {
		return nil
	}

	cmd := makeMsg()
	cmd[2] = 0x10 /* cancel transfer */
	rsp, err := b.mcp.send(cmdSetParams, cmd)
	if err != nil {
		return err
	}
	if parseStatus(rsp).i2cCancel == 0x10 {
		time.Sleep(i2cPoll)
	}
	return nil
}

func (b *i2cBus) write(addr uint16, out []byte, stop bool) error {
	if err := b.cancelIfBusy(false); err != nil {
		return err
	}

	cmdID := cmdI2CWrite
	if !stop {
		cmdID = cmdI2CWriteNoStop
	}

	for pos := 0; pos < len(out); {
		sz := len(out) - pos
		if sz > i2cChunkMax {
			sz = i2cChunkMax
		}

		cmd := makeMsg()
		cmd[1] = byte(len(out))
		cmd[2] = byte(len(out) >> 8)
		cmd[3] = byte(addr << 1)
		copy(cmd[4:], out[pos:pos+sz])

		sent := false
		for retry := 0; retry < i2cRetry; retry++ {
			rsp, err := b.mcp.send(cmdID, cmd)
			if err == nil {
				sent = true
				break
			}
			if rsp == nil {
				return err
			}
			if err := i2cStateFailed(addr, rsp[2]); err != nil {
				return err
			}
			time.Sleep(i2cPoll)
		}
		if !sent {
			return fmt.Errorf("too many retries")
		}

		pos += sz
	}

	for retry := 0; retry < i2cRetry; retry++ {
		stat, err := b.mcp.status()
		if err != nil {
			return err
		}
		if stat.i2cState == wordClr || (!stop && stat.i2cState == i2cStateWritingNoStop) {
			return nil
		}
		if err := i2cStateFailed(addr, stat.i2cState); err != nil {
			return err
		}
		time.Sleep(i2cPoll)
	}

	return fmt.Errorf("too many retries")
}

func (b *i2cBus) read(addr uint16, in []byte, rep bool) error {
	if err := b.cancelIfBusy(true); err != nil {
		return err
	}

	cmd := makeMsg()
	cmd[1] = byte(len(in))
	cmd[2] = byte(len(in) >> 8)
	cmd[3] = byte(addr<<1) | 0x01

	cmdID := cmdI2CRead
	if rep {
		cmdID = cmdI2CReadRepStart
	}

	if _, err := b.mcp.send(cmdID, cmd); err != nil {
		return err
	}

	for pos := 0; pos < len(in); {
		var rsp []byte

		done := false
		for retry := 0; retry < i2cRetry && !done; retry++ {
			var err error
			if rsp, err = b.mcp.exchange(cmdI2CReadGetData, makeMsg()); err != nil {
				return err
			}

			switch {
			case rsp[1] == i2cStatePartialData || rsp[3] == i2cStateReadError:
				time.Sleep(i2cPoll)
			case i2cStateFailed(addr, rsp[2]) != nil:
				return i2cStateFailed(addr, rsp[2])
			default:
				done = true
			}
		}
		if !done {
			return fmt.Errorf("too many retries")
		}

		sz := int(rsp[3])
		if sz == 0 || sz > i2cChunkMax || sz > len(in)-pos {
			sz = len(in) - pos
			if sz > i2cChunkMax {
				sz = i2cChunkMax
			}
		}
		copy(in[pos:], rsp[4:4+sz])
		pos += sz
	}

	return nil
}
