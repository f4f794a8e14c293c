package transport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/BertoldVdb/battid/battchip"
	"periph.io/x/conn/v3/onewire"
)

// Sim emulates a BQ2022 answering read field commands from memory. Fault
// counters make the next transactions fail, they count down per transaction.
type Sim struct {
	sync.Mutex

	Memory battchip.Image

	FailResets  int
	BadCmdCRC   int
	BadDataCRC  int
	NotPresent  bool
	ClosedCount int

	Resets int
	Writes [][]byte

	rx []byte
}

func NewSim(img battchip.Image) *Sim {
	return &Sim{Memory: img}
}

func (s *Sim) String() string {
	return "sim"
}

func (s *Sim) Reset() error {
	s.Lock()
	defer s.Unlock()

	s.Resets++
	s.rx = nil

	if s.NotPresent {
		return errors.New("no presence pulse")
	}
	if s.FailResets > 0 {
		s.FailResets--
		return errors.New("no presence pulse")
	}
	return nil
}

func (s *Sim) WriteBlock(data []byte) error {
	s.Lock()
	defer s.Unlock()

	s.Writes = append(s.Writes, append([]byte{}, data...))

	if len(data) != 4 || data[0] != 0xCC || data[1] != 0xF0 {
		return fmt.Errorf("sim: unsupported command % x", data)
	}

	addr := int(data[2]) | int(data[3])<<8
	if addr >= battchip.ImageSize {
		return fmt.Errorf("sim: address %d out of range", addr)
	}

	cmdCRC := onewire.CalcCRC(data[1:])
	if s.BadCmdCRC > 0 {
		s.BadCmdCRC--
		cmdCRC = ^cmdCRC
	}

	field := s.Memory[addr:]
	dataCRC := onewire.CalcCRC(field)
	if s.BadDataCRC > 0 {
		s.BadDataCRC--
		dataCRC = ^dataCRC
	}

	s.rx = append(s.rx[:0], cmdCRC)
	s.rx = append(s.rx, field...)
	s.rx = append(s.rx, dataCRC)
	return nil
}

func (s *Sim) ReadByte() (byte, error) {
	var b [1]byte
	if err := s.ReadBlock(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (s *Sim) ReadBlock(buf []byte) error {
	s.Lock()
	defer s.Unlock()

	if len(s.rx) < len(buf) {
		/* An idle bus reads as all ones */
		for i := range buf {
			buf[i] = 0xFF
		}
		s.rx = nil
		return nil
	}

	copy(buf, s.rx)
	s.rx = s.rx[len(buf):]
	return nil
}

func (s *Sim) Close() error {
	s.Lock()
	defer s.Unlock()

	s.ClosedCount++
	return nil
}
