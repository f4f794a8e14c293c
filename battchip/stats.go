package battchip

import "fmt"

// Stats counts bus activity since the handle was created. Counters survive
// Detach so a daemon can report them across reattachments.
type Stats struct {
	Transactions uint64
	Attempts     uint64
	Successes    uint64
	Exhausted    uint64

	ResetFailures      uint64
	CommandCRCFailures uint64
	DataCRCFailures    uint64
	BusErrors          uint64
}

func (s Stats) String() string {
	return fmt.Sprintf("Transactions=%d Attempts=%d Successes=%d Exhausted=%d Reset=%d CmdCRC=%d DataCRC=%d Bus=%d",
		s.Transactions, s.Attempts, s.Successes, s.Exhausted,
		s.ResetFailures, s.CommandCRCFailures, s.DataCRCFailures, s.BusErrors)
}
