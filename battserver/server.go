package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/BertoldVdb/battid/battchip"
	"github.com/BertoldVdb/battid/battserver/api"
	"github.com/BertoldVdb/battid/internal/config"
	"github.com/BertoldVdb/battid/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type servedChip struct {
	config.Chip
	chip *battchip.Chip
}

// chipOpener opens a chip from its path. A chip is returned together with an
// error when it was found but could not be read.
type chipOpener func(path string, logFunc battchip.LogFunc) (*battchip.Chip, error)

func openChips(logger zerolog.Logger, chips []config.Chip, open chipOpener) []servedChip {
	var served []servedChip

	for i, m := range chips {
		l := logger.With().Int("entry", i).Str("path", m.Path).Logger()
		l.Info().Msg("Initializing chip")

		tag := m.Name
		if tag == "" {
			tag = strconv.Itoa(len(served))
		}

		chip, err := open(m.Path, observability.ChipLog(logger, tag))
		if chip == nil {
			l.Error().Err(err).Msg("Failed to open")
			continue
		}
		if err != nil {
			l.Warn().Err(err).Msg("Chip opened but not readable")
		} else if id, err := chip.Identify(); err == nil {
			l.Info().Stringer("identity", id).Msg("Chip ready")
		}

		served = append(served, servedChip{Chip: m, chip: chip})
	}

	return served
}

// buildMux mounts every chip under its index and, when set, its name. The
// index refers to the position in the served list.
func buildMux(logger zerolog.Logger, served []servedChip, reg *prometheus.Registry) (*http.ServeMux, error) {
	mux := &http.ServeMux{}
	names := chipNames(served)

	for i, m := range served {
		index := strconv.Itoa(i)
		name := names[i]

		a, err := api.New(name, m.Path, m.chip)
		if err != nil {
			return nil, err
		}

		if err := observability.RegisterChip(reg, name, m.chip); err != nil {
			return nil, err
		}

		logger.Info().Str("name", name).Str("index", index).Msg("Registering chip")
		mux.Handle("/"+index+"/", http.StripPrefix("/"+index, a))
		if name != index {
			mux.Handle("/"+name+"/", http.StripPrefix("/"+name, a))
		}
	}

	namesJson, err := json.MarshalIndent(&names, "", "  ")
	if err != nil {
		return nil, err
	}

	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(namesJson)
	})

	return mux, nil
}

func chipNames(served []servedChip) []string {
	names := make([]string, 0, len(served))
	for i, m := range served {
		if m.Name != "" {
			names = append(names, m.Name)
		} else {
			names = append(names, strconv.Itoa(i))
		}
	}
	return names
}
