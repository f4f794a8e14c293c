package chipopen

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BertoldVdb/battid/battchip"
	"github.com/BertoldVdb/battid/battchip/chipopen/mcp2221a"
	"github.com/BertoldVdb/battid/battchip/transport"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/onewire/onewirereg"
	"periph.io/x/devices/v3/ds248x"
	"periph.io/x/host/v3"
)

const defaultDS248xAddr = 0x18

type target struct {
	kind   string
	device string
	serial string
	addr   uint16
}

func getPart(parts []string, index int, def string) string {
	if index >= len(parts) || parts[index] == "" {
		return def
	}
	return parts[index]
}

func parseAddr(s string) (uint16, error) {
	addr, err := strconv.ParseUint(s, 0, 7)
	if err != nil {
		return 0, fmt.Errorf("invalid I²C address %q: %v", s, err)
	}
	return uint16(addr), nil
}

func parsePath(path string) (target, error) {
	parts := strings.Split(path, ":")
	t := target{kind: parts[0]}

	switch t.kind {
	case "uart", "sim":
		/* Device names may contain colons */
		t.device = strings.TrimPrefix(path, t.kind)
		t.device = strings.TrimPrefix(t.device, ":")
		if t.kind == "uart" && t.device == "" {
			return t, errors.New("uart needs a serial device")
		}

	case "platform":
		t.device = getPart(parts, 1, "")

	case "ds248x":
		t.device = getPart(parts, 1, "/dev/i2c-1")
		addr, err := parseAddr(getPart(parts, 2, strconv.Itoa(defaultDS248xAddr)))
		if err != nil {
			return t, err
		}
		t.addr = addr

	case "usb":
		t.serial = getPart(parts, 1, "")
		addr, err := parseAddr(getPart(parts, 2, strconv.Itoa(defaultDS248xAddr)))
		if err != nil {
			return t, err
		}
		t.addr = addr

	default:
		return t, fmt.Errorf("device type %q not supported, use 'uart', 'platform', 'ds248x', 'usb' or 'sim'", t.kind)
	}

	return t, nil
}

type closingTransport struct {
	battchip.Transport
	close func() error
}

func (c *closingTransport) Close() error {
	return c.close()
}

func newBusTransport(bus onewire.Bus) *transport.Bus {
	return transport.NewBus(bus, battchip.TransactionReadLen)
}

func OpenUART(device string) (battchip.Transport, error) {
	u, err := transport.OpenUART(device)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// OpenSim loads a 128 byte dump into a simulated chip, an empty file name
// gives a blank chip.
func OpenSim(file string) (battchip.Transport, error) {
	var img battchip.Image

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}

		if img, err = battchip.ImageFromBytes(data); err != nil {
			return nil, err
		}
	}

	return transport.NewSim(img), nil
}

// OpenPlatform uses a 1-Wire bus registered by periph, such as the kernel w1
// masters reached through netlink.
func OpenPlatform(busName string) (battchip.Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init host: %v", err)
	}

	bus, err := onewirereg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("could not open bus: %v", err)
	}

	return newBusTransport(bus), nil
}

func OpenDS248x(busID string, addr uint16) (battchip.Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init host: %v", err)
	}

	bus, err := i2creg.Open(busID)
	if err != nil {
		return nil, fmt.Errorf("could not open bus: %v", err)
	}

	dev, err := ds248x.New(bus, addr, &ds248x.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, err
	}

	return &closingTransport{
		Transport: newBusTransport(dev),
		close:     bus.Close,
	}, nil
}

// OpenUSB uses a DS248x behind an MCP2221A, GP0 switches the bus supply.
func OpenUSB(serial string, addr uint16) (battchip.Transport, error) {
	mcp, err := mcp2221a.Open(mcp2221a.VID, mcp2221a.PID, serial)
	if err != nil {
		return nil, err
	}

	if err := mcp.GPIOSet(0, true); err != nil {
		mcp.Close()
		return nil, err
	}
	time.Sleep(20 * time.Millisecond)

	dev, err := ds248x.New(mcp.I2C(), addr, &ds248x.DefaultOpts)
	if err != nil {
		mcp.GPIOSet(0, false)
		mcp.Close()
		return nil, err
	}

	return &closingTransport{
		Transport: newBusTransport(dev),
		close: func() error {
			err := mcp.GPIOSet(0, false)
			if errClose := mcp.Close(); err == nil {
				err = errClose
			}
			return err
		},
	}, nil
}

// OpenTransport opens the bus master described by path:
//   uart:<serial device>
//   platform:<periph 1-wire bus name>
//   ds248x:<i2c bus>:<address>
//   usb:<mcp2221a serial>:<address>
//   sim:<dump file>
func OpenTransport(path string) (battchip.Transport, error) {
	t, err := parsePath(path)
	if err != nil {
		return nil, err
	}

	switch t.kind {
	case "uart":
		return OpenUART(t.device)
	case "platform":
		return OpenPlatform(t.device)
	case "ds248x":
		return OpenDS248x(t.device, t.addr)
	case "usb":
		return OpenUSB(t.serial, t.addr)
	default:
		return OpenSim(t.device)
	}
}

// OpenChip opens the transport and attaches a chip to it. A chip that fails
// its first read is still returned together with the error, so it can be
// refreshed later.
func OpenChip(path string, logFunc battchip.LogFunc) (*battchip.Chip, error) {
	t, err := OpenTransport(path)
	if err != nil {
		return nil, err
	}

	chip := battchip.New(battchip.Options{LogFunc: logFunc})
	if err := chip.Attach(t); err != nil {
		return chip, fmt.Errorf("failed to read chip: %w", err)
	}

	return chip, nil
}
