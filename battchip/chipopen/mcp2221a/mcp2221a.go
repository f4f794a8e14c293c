// Package mcp2221a drives the Microchip MCP2221A USB to GPIO/I²C bridge over
// USB HID. Only the GPIO outputs and the I²C master are supported, the I²C
// master is exposed as a periph.io i2c.Bus so 1-Wire bridges such as the
// DS2482 can be stacked on top of it.
//
// Datasheet: http://ww1.microchip.com/downloads/en/devicedoc/20005565b.pdf
package mcp2221a

// Derived from https://github.com/ardnew/mcp2221a
// MIT License
//
// Copyright (c) 2020 ardnew
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

import (
	"errors"
	"fmt"
	"sync"

	usb "github.com/karalabe/hid"
)

// VID and PID are the identifiers assigned by the USB-IF.
const (
	VID = 0x04D8
	PID = 0x00DD
)

// MsgSz is the size of all command and response messages.
const MsgSz = 64

// ClkHz is the internal clock frequency.
const ClkHz = 12000000

const (
	wordSet byte = 0xFF
	wordClr byte = 0x00
)

const (
	cmdStatus    byte = 0x10
	cmdSetParams byte = 0x10

	cmdI2CWrite        byte = 0x90
	cmdI2CWriteNoStop  byte = 0x94
	cmdI2CRead         byte = 0x91
	cmdI2CReadRepStart byte = 0x93
	cmdI2CReadGetData  byte = 0x40

	cmdGPIOSet byte = 0x50
)

// GPPinCount is the number of GPIO pins.
const GPPinCount = 4

var ErrClosed = errors.New("device is closed")

// HIDDevice is the USB HID handle, satisfied by *hid.Device.
type HIDDevice interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

// MCP2221A is an opened bridge. All methods are safe for concurrent use.
type MCP2221A struct {
	sync.Mutex

	dev    HIDDevice
	serial string
}

// AttachedDevices lists the connected bridges with the given ids.
func AttachedDevices(vid uint16, pid uint16) []usb.DeviceInfo {
	return usb.Enumerate(vid, pid)
}

// Open opens the first bridge whose serial matches, any bridge when serial is
// empty.
func Open(vid uint16, pid uint16, serial string) (*MCP2221A, error) {
	for _, m := range AttachedDevices(vid, pid) {
		if serial != "" && m.Serial != serial {
			continue
		}

		dev, err := m.Open()
		if err != nil {
			return nil, err
		}

		return NewFromDev(dev, m.Serial), nil
	}

	return nil, errors.New("no device found")
}

func NewFromDev(dev HIDDevice, serial string) *MCP2221A {
	return &MCP2221A{
		dev:    dev,
		serial: serial,
	}
}

func (mcp *MCP2221A) String() string {
	return "MCP2221A{" + mcp.serial + "}"
}

func (mcp *MCP2221A) Close() error {
	mcp.Lock()
	defer mcp.Unlock()

	if mcp.dev == nil {
		return nil
	}

	err := mcp.dev.Close()
	mcp.dev = nil
	return err
}

func makeMsg() []byte { return make([]byte, MsgSz) }

// exchange sends a command and returns the response without looking at the
// status byte.
func (mcp *MCP2221A) exchange(cmd byte, msg []byte) ([]byte, error) {
	if mcp.dev == nil {
		return nil, ErrClosed
	}

	msg[0] = cmd
	if _, err := mcp.dev.Write(msg); err != nil {
		return nil, fmt.Errorf("write command 0x%02X: %v", cmd, err)
	}

	rsp := makeMsg()
	recv, err := mcp.dev.Read(rsp)
	if err != nil {
		return nil, fmt.Errorf("read response 0x%02X: %v", cmd, err)
	}
	if recv < MsgSz {
		return rsp, fmt.Errorf("response 0x%02X: short read (%d of %d bytes)", cmd, recv, MsgSz)
	}
	if rsp[0] != cmd {
		return rsp, fmt.Errorf("response 0x%02X: echoed command 0x%02X", cmd, rsp[0])
	}

	return rsp, nil
}

func (mcp *MCP2221A) send(cmd byte, msg []byte) ([]byte, error) {
	rsp, err := mcp.exchange(cmd, msg)
	if err != nil {
		return rsp, err
	}
	if rsp[1] != wordClr {
		return rsp, fmt.Errorf("command 0x%02X failed: 0x%02X", cmd, rsp[1])
	}
	return rsp, nil
}

type status struct {
	i2cCancel byte
	i2cSpdChg byte
	i2cState  byte
}

func parseStatus(msg []byte) status {
	return status{
		i2cCancel: msg[2],
		i2cSpdChg: msg[3],
		i2cState:  msg[8],
	}
}

func (mcp *MCP2221A) status() (status, error) {
	rsp, err := mcp.send(cmdStatus, makeMsg())
	if err != nil {
		return status{}, err
	}
	return parseStatus(rsp), nil
}

// GPIOSet drives a pin as digital output.
func (mcp *MCP2221A) GPIOSet(pin byte, high bool) error {
	if pin >= GPPinCount {
		return fmt.Errorf("invalid GPIO pin: %d", pin)
	}

	mcp.Lock()
	defer mcp.Unlock()

	cmd := makeMsg()
	i := 2 + 4*pin
	cmd[i+0] = wordSet /* alter output value */
	if high {
		cmd[i+1] = 1
	}
	cmd[i+2] = wordSet /* alter direction, 0 = output */
	cmd[i+3] = 0

	_, err := mcp.send(cmdGPIOSet, cmd)
	return err
}
