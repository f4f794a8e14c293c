package battclient

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BertoldVdb/battid/battchip"
	"github.com/BertoldVdb/battid/battchip/transport"
	"github.com/BertoldVdb/battid/battserver/api"
	"github.com/grandcat/zeroconf"
)

func aacImage() battchip.Image {
	var img battchip.Image
	copy(img[0:4], []byte{0xED, 0x21, 0x4C, 0xE5})
	img[8] = 0xAA
	img[60], img[61], img[62], img[63] = 0x11, 0xAC, 0xCA, 0xAA
	return img
}

func newTestClient(t *testing.T) (*BattClient, *transport.Sim) {
	t.Helper()

	sim := transport.NewSim(aacImage())
	chip := battchip.New(battchip.Options{})
	if err := chip.Attach(sim); err != nil {
		t.Fatal(err)
	}

	a, err := api.New("left", "sim:", chip)
	if err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.Handle("/0/", http.StripPrefix("/0", a))
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	c, err := New(ts.URL + "/0/")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })

	return c, sim
}

func TestClientQueries(t *testing.T) {
	c, sim := newTestClient(t)

	if c.Info().Name != "left" || c.Info().State != battchip.StateValid {
		t.Errorf("info %+v", c.Info())
	}

	class, err := c.Class()
	if err != nil {
		t.Fatal(err)
	}
	if class.Resistance != battchip.ResistanceAAC || class.Class != battchip.ClassAAC {
		t.Errorf("class %+v", class)
	}

	img, err := c.Image()
	if err != nil {
		t.Fatal(err)
	}
	if img != sim.Memory {
		t.Error("image mismatch")
	}

	diag, err := c.Diagnostics()
	if err != nil {
		t.Fatal(err)
	}
	if !diag.Valid || diag.Identity.PseudoID != battchip.PseudoIDAAC || diag.Stats.Successes != 1 {
		t.Errorf("diagnostics %+v", diag)
	}
}

func TestClientRefreshFailure(t *testing.T) {
	c, sim := newTestClient(t)

	sim.Lock()
	sim.FailResets = battchip.MaxAttempts
	sim.Unlock()

	diag, err := c.Refresh()
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Fatalf("err = %v", err)
	}
	if diag.Valid || diag.Stats.ResetFailures != battchip.MaxAttempts {
		t.Errorf("diagnostics %+v", diag)
	}

	if _, err := c.Image(); err == nil {
		t.Error("image served after failed refresh")
	}

	class, err := c.Class()
	if err != nil || class.Resistance != 0 {
		t.Errorf("class %+v, err %v", class, err)
	}

	diag, err = c.Refresh()
	if err != nil || !diag.Valid {
		t.Errorf("second refresh: %+v, %v", diag, err)
	}
}

func TestNewUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	if _, err := New(ts.URL); err == nil {
		t.Error("client created for a server without chip")
	}
}

func TestServiceFromEntry(t *testing.T) {
	e := zeroconf.NewServiceEntry("bench", ServiceType, "local.")
	e.Port = 8066
	e.Text = []string{"chips=left,right", "txtvers=1"}

	if _, ok := serviceFromEntry(e); ok {
		t.Error("entry without address accepted")
	}

	e.AddrIPv4 = []net.IP{net.IPv4(192, 168, 1, 20)}
	s, ok := serviceFromEntry(e)
	if !ok {
		t.Fatal("entry rejected")
	}
	if s.Instance != "bench" || s.URL() != "http://192.168.1.20:8066" {
		t.Errorf("service %+v", s)
	}
	if len(s.Chips) != 2 || s.Chips[1] != "right" {
		t.Errorf("chips %v", s.Chips)
	}
}
