package units

import (
	"math"
	"testing"
)

func TestParseEnergyUnit(t *testing.T) {
	tests := []struct {
		in   string
		want EnergyUnit
	}{
		{"", JoulePerMol},
		{"kJ/mol", KiloJoulePerMol},
		{"kcal", KcalPerMol},
		{"Hartree", Hartree},
		{"eV", ElectronVolt},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEnergyUnit(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseEnergyUnit(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	if _, err := ParseEnergyUnit("furlong"); err == nil {
		t.Error("expected error for unknown unit")
	}
}

func TestEnergyRoundTrip(t *testing.T) {
	for _, u := range []EnergyUnit{JoulePerMol, KiloJoulePerMol, KcalPerMol, Hartree, ElectronVolt} {
		v := 0.125
		back := u.FromJPerMol(u.ToJPerMol(v))
		if math.Abs(back-v) > 1e-15 {
			t.Errorf("%s: round trip %v -> %v", u, v, back)
		}
	}
	if got := Hartree.ToJPerMol(1); math.Abs(got-2625.4996e3) > 1 {
		t.Errorf("1 Eh = %v J/mol", got)
	}
}

func TestTimeUnits(t *testing.T) {
	fs, err := ParseTimeUnit("fs")
	if err != nil {
		t.Fatal(err)
	}
	if got := RateIn(1e13, fs); math.Abs(got-0.01) > 1e-18 {
		t.Errorf("RateIn(1e13 /s, fs) = %v, want 0.01", got)
	}
	if Second.Seconds() != 1 {
		t.Error("second should be 1 s")
	}
}

func TestGapToFrequency(t *testing.T) {
	// 1 eV photon is ~2.418e14 Hz
	nu := GapToFrequency(EV2JMol)
	if math.Abs(nu-2.417989e14)/2.417989e14 > 1e-5 {
		t.Errorf("1 eV -> %e Hz", nu)
	}
	if math.Abs(WavelengthToFrequency(500)-5.99584916e14)/5.99584916e14 > 1e-8 {
		t.Error("500 nm frequency mismatch")
	}
}
