package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/BertoldVdb/battid/battchip"
	"github.com/fxamacker/cbor/v2"
)

type API struct {
	mux  *http.ServeMux
	name string
	path string
	chip *battchip.Chip
}

const (
	ctBinary string = "application/octet-stream"
	ctCBOR   string = "application/cbor"
	ctJSON   string = "application/json"
)

// Info describes a served chip.
type Info struct {
	Name     string
	Path     string
	State    battchip.State
	Identity *battchip.Identity `json:",omitempty"`
}

// ClassResponse is the answer of the class endpoint. Resistance is 0 whenever
// the class could not be determined.
type ClassResponse struct {
	Resistance battchip.Resistance `json:"resistance"`
	KOhm       int                 `json:"kohm"`
	Class      battchip.Class      `json:"class"`
}

func New(name string, path string, chip *battchip.Chip) (*API, error) {
	if chip == nil {
		return nil, errors.New("no chip")
	}

	mux := &http.ServeMux{}

	s := &API{
		mux:  mux,
		name: name,
		path: path,
		chip: chip,
	}

	mux.HandleFunc("/info", getOnly(s.infoHandler))
	mux.HandleFunc("/class", getOnly(s.classHandler))
	mux.HandleFunc("/image", getOnly(s.imageHandler))
	mux.HandleFunc("/diag", getOnly(s.diagHandler))
	mux.HandleFunc("/diag.cbor", getOnly(s.diagCBORHandler))
	mux.HandleFunc("/refresh", s.refreshHandler)

	return s, nil
}

func getOnly(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
			return
		}

		handler(w, r)
	}
}

func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", ctJSON)
	w.WriteHeader(status)
	w.Write(data)
}

func (s *API) info() Info {
	info := Info{
		Name:  s.name,
		Path:  s.path,
		State: s.chip.State(),
	}

	if id, err := s.chip.Identify(); err == nil {
		info.Identity = &id
	}

	return info
}

func (s *API) infoHandler(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, s.info())
}

func (s *API) classHandler(w http.ResponseWriter, r *http.Request) {
	resp := ClassResponse{
		Resistance: s.chip.ResistanceClass(),
	}
	resp.KOhm = resp.Resistance.KOhm()

	if id, err := s.chip.Identify(); err == nil {
		resp.Class = id.Class
	}

	sendJSON(w, http.StatusOK, &resp)
}

func (s *API) imageHandler(w http.ResponseWriter, r *http.Request) {
	img, ok := s.chip.Image()
	if !ok {
		http.Error(w, "No valid image", http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", ctBinary)
	w.Write(img[:])
}

func (s *API) diagHandler(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, s.chip.Diagnostics())
}

func (s *API) diagCBORHandler(w http.ResponseWriter, r *http.Request) {
	data, err := cbor.Marshal(s.chip.Diagnostics())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", ctCBOR)
	w.Write(data)
}

func (s *API) refreshHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
		return
	}

	status := http.StatusOK
	if err := s.chip.Refresh(); err != nil {
		status = http.StatusBadGateway
		if errors.Is(err, battchip.ErrDeviceAbsent) {
			status = http.StatusServiceUnavailable
		}
	}

	sendJSON(w, status, s.chip.Diagnostics())
}

func (s *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
