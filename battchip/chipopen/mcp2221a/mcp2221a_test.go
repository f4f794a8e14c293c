package mcp2221a

import (
	"bytes"
	"testing"

	"periph.io/x/conn/v3/physic"
)

// fakeHID answers like an idle MCP2221A with a device at one address that
// returns a fixed byte pattern on reads.
type fakeHID struct {
	addr     byte
	readData []byte
	pending  int

	sent   [][]byte
	closed bool
	last   []byte
}

func (f *fakeHID) Write(b []byte) (int, error) {
	f.sent = append(f.sent, append([]byte{}, b...))

	rsp := make([]byte, MsgSz)
	rsp[0] = b[0]

	switch b[0] {
	case cmdI2CWrite, cmdI2CWriteNoStop:
		if b[3]>>1 != f.addr {
			rsp[1] = 0x01
			rsp[2] = i2cStateAddrNACK
		}
	case cmdI2CRead, cmdI2CReadRepStart:
		f.pending = int(b[1]) | int(b[2])<<8
	case cmdI2CReadGetData:
		n := f.pending
		if n > 60 {
			n = 60
		}
		rsp[2] = 0x55
		rsp[3] = byte(n)
		copy(rsp[4:], f.readData[:n])
		f.readData = f.readData[n:]
		f.pending -= n
	}

	f.last = rsp
	return len(b), nil
}

func (f *fakeHID) Read(b []byte) (int, error) {
	return copy(b, f.last), nil
}

func (f *fakeHID) Close() error {
	f.closed = true
	return nil
}

func (f *fakeHID) commands() []byte {
	var cmds []byte
	for _, m := range f.sent {
		cmds = append(cmds, m[0])
	}
	return cmds
}

func TestI2CWriteThenRead(t *testing.T) {
	hid := &fakeHID{addr: 0x18, readData: []byte{0xA1, 0xB2}}
	mcp := NewFromDev(hid, "0001")
	bus := mcp.I2C()

	r := make([]byte, 2)
	if err := bus.Tx(0x18, []byte{0xE1, 0xF0}, r); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(r, []byte{0xA1, 0xB2}) {
		t.Errorf("read % x", r)
	}

	want := []byte{cmdStatus, cmdI2CWriteNoStop, cmdStatus, cmdStatus, cmdI2CReadRepStart, cmdI2CReadGetData}
	if !bytes.Equal(hid.commands(), want) {
		t.Errorf("commands % x, want % x", hid.commands(), want)
	}

	w := hid.sent[1]
	if w[1] != 2 || w[3] != 0x30 || w[4] != 0xE1 || w[5] != 0xF0 {
		t.Errorf("write packet % x", w[:6])
	}
	if rd := hid.sent[4]; rd[3] != 0x31 {
		t.Errorf("read address byte %02x", rd[3])
	}
}

func TestI2CLongRead(t *testing.T) {
	data := make([]byte, 130)
	for i := range data {
		data[i] = byte(i)
	}
	hid := &fakeHID{addr: 0x18, readData: append([]byte{}, data...)}
	bus := NewFromDev(hid, "").I2C()

	r := make([]byte, len(data))
	if err := bus.Tx(0x18, nil, r); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(r, data) {
		t.Error("long read mismatch")
	}
}

func TestI2CNack(t *testing.T) {
	hid := &fakeHID{addr: 0x18}
	bus := NewFromDev(hid, "").I2C()

	if err := bus.Tx(0x19, []byte{0x00}, nil); err == nil {
		t.Fatal("write to absent address succeeded")
	}
}

func TestGPIOSet(t *testing.T) {
	hid := &fakeHID{}
	mcp := NewFromDev(hid, "")

	if err := mcp.GPIOSet(0, true); err != nil {
		t.Fatal(err)
	}
	m := hid.sent[0]
	if m[0] != cmdGPIOSet || m[2] != 0xFF || m[3] != 1 || m[4] != 0xFF || m[5] != 0 {
		t.Errorf("gpio packet % x", m[:6])
	}

	if err := mcp.GPIOSet(4, true); err == nil {
		t.Error("pin 4 accepted")
	}

	if err := mcp.Close(); err != nil || !hid.closed {
		t.Error("close failed")
	}
	if err := mcp.GPIOSet(0, false); err != ErrClosed {
		t.Errorf("err = %v after close", err)
	}
}

func TestSetSpeed(t *testing.T) {
	hid := &fakeHID{}
	bus := NewFromDev(hid, "").I2C()

	if err := bus.SetSpeed(100 * physic.KiloHertz); err != nil {
		t.Fatal(err)
	}
	if m := hid.sent[0]; m[3] != 0x20 || m[4] != 117 {
		t.Errorf("speed packet % x", m[:5])
	}
	if err := bus.SetSpeed(10 * physic.MegaHertz); err == nil {
		t.Error("10MHz accepted")
	}
}
