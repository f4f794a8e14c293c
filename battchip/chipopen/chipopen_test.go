package chipopen

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/BertoldVdb/battid/battchip"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		path string
		want target
		err  bool
	}{
		{path: "uart:/dev/ttyUSB0", want: target{kind: "uart", device: "/dev/ttyUSB0"}},
		{path: "uart:COM3", want: target{kind: "uart", device: "COM3"}},
		{path: "uart", err: true},
		{path: "platform", want: target{kind: "platform"}},
		{path: "platform:w1_bus_master1", want: target{kind: "platform", device: "w1_bus_master1"}},
		{path: "ds248x", want: target{kind: "ds248x", device: "/dev/i2c-1", addr: 0x18}},
		{path: "ds248x:/dev/i2c-2:0x1a", want: target{kind: "ds248x", device: "/dev/i2c-2", addr: 0x1a}},
		{path: "ds248x:/dev/i2c-2:0x80", err: true},
		{path: "usb:A1B2::", want: target{kind: "usb", serial: "A1B2", addr: 0x18}},
		{path: "usb::0x19", want: target{kind: "usb", addr: 0x19}},
		{path: "sim", want: target{kind: "sim"}},
		{path: "sim:c:/dumps/pack.bin", want: target{kind: "sim", device: "c:/dumps/pack.bin"}},
		{path: "spi:0", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := parsePath(tt.path)
			if tt.err {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestOpenChipSim(t *testing.T) {
	var img battchip.Image
	copy(img[:], []byte{0xED, 0x21, 0x4C, 0xE5})
	img[8] = 0xaa
	img[61], img[62], img[63] = 0xac, 0xca, 0xaa

	file := filepath.Join(t.TempDir(), "aac.bin")
	if err := os.WriteFile(file, img[:], 0o644); err != nil {
		t.Fatal(err)
	}

	chip, err := OpenChip("sim:"+file, t.Logf)
	if err != nil {
		t.Fatal(err)
	}
	defer chip.Close()

	if chip.ResistanceClass() != battchip.ResistanceAAC {
		t.Errorf("ResistanceClass = %v", chip.ResistanceClass())
	}
}

func TestOpenChipSimBlank(t *testing.T) {
	chip, err := OpenChip("sim", nil)
	if err != nil {
		t.Fatal(err)
	}

	id, err := chip.Identify()
	if err != nil {
		t.Fatal(err)
	}
	if id.Authentic {
		t.Error("blank chip reported authentic")
	}
}

func TestOpenSimBadDump(t *testing.T) {
	file := filepath.Join(t.TempDir(), "short.bin")
	if err := os.WriteFile(file, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := OpenChip("sim:"+file, nil); err == nil {
		t.Error("short dump accepted")
	}
	if _, err := OpenChip("sim:"+filepath.Join(t.TempDir(), "missing"), nil); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v", err)
	}
}
