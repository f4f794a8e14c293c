package observability

import (
	"github.com/BertoldVdb/battid/battchip"
	"github.com/prometheus/client_golang/prometheus"
)

// ChipCollectors exports the counters of one chip. The values are read from
// the chip at scrape time.
func ChipCollectors(name string, chip *battchip.Chip) []prometheus.Collector {
	labels := prometheus.Labels{"chip": name}

	counter := func(metric, help string, get func(s battchip.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "battid",
			Subsystem:   "chip",
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 {
			return float64(get(chip.Stats()))
		})
	}

	gauge := func(metric, help string, get func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "battid",
			Subsystem:   "chip",
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		}, get)
	}

	return []prometheus.Collector{
		counter("transactions_total", "Read transactions started.", func(s battchip.Stats) uint64 { return s.Transactions }),
		counter("attempts_total", "Bus attempts including retries.", func(s battchip.Stats) uint64 { return s.Attempts }),
		counter("successes_total", "Transactions that returned a valid image.", func(s battchip.Stats) uint64 { return s.Successes }),
		counter("exhausted_total", "Transactions that ran out of retries.", func(s battchip.Stats) uint64 { return s.Exhausted }),
		counter("reset_failures_total", "Bus resets without presence pulse.", func(s battchip.Stats) uint64 { return s.ResetFailures }),
		counter("command_crc_failures_total", "Command CRC mismatches.", func(s battchip.Stats) uint64 { return s.CommandCRCFailures }),
		counter("data_crc_failures_total", "Data CRC mismatches.", func(s battchip.Stats) uint64 { return s.DataCRCFailures }),
		counter("bus_errors_total", "Transport I/O errors.", func(s battchip.Stats) uint64 { return s.BusErrors }),
		gauge("valid", "1 when the chip holds a valid image.", func() float64 {
			if chip.State() == battchip.StateValid {
				return 1
			}
			return 0
		}),
		gauge("resistance_class", "Reported resistance class code, 0 when unknown.", func() float64 {
			return float64(chip.ResistanceClass())
		}),
	}
}

// RegisterChip adds the collectors of a chip to a registry.
func RegisterChip(reg prometheus.Registerer, name string, chip *battchip.Chip) error {
	for _, m := range ChipCollectors(name, chip) {
		if err := reg.Register(m); err != nil {
			return err
		}
	}
	return nil
}
