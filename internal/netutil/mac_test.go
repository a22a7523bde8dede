package netutil

import "testing"

func TestParseMAC_AcceptsAllSeparatorForms(t *testing.T) {
	want := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	for _, in := range []string{"AA:BB:CC:DD:EE:FF", "aa-bb-cc-dd-ee-ff", "AABBCCDDEEFF"} {
		got, err := ParseMAC(in)
		if err != nil {
			t.Fatalf("ParseMAC(%q): %v", in, err)
		}
		if len(got) != 6 {
			t.Fatalf("ParseMAC(%q): expected 6 bytes, got %d", in, len(got))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("ParseMAC(%q): byte %d = %x, want %x", in, i, got[i], want[i])
			}
		}
	}
}

func TestParseMAC_RejectsWrongLength(t *testing.T) {
	if _, err := ParseMAC("AA:BB:CC"); err == nil {
		t.Fatal("expected an error for a short MAC address")
	}
}

func TestParseMAC_RejectsNonHex(t *testing.T) {
	if _, err := ParseMAC("ZZ:BB:CC:DD:EE:FF"); err == nil {
		t.Fatal("expected an error for non-hex MAC bytes")
	}
}

func TestDirectedBroadcast_ComputesHostBitsAllOnes(t *testing.T) {
	got := DirectedBroadcast("192.168.1.50", 24)
	if got != "192.168.1.255" {
		t.Errorf("expected 192.168.1.255, got %s", got)
	}
}

func TestDirectedBroadcast_FallsBackOnBadInput(t *testing.T) {
	if got := DirectedBroadcast("not-an-ip", 24); got != "255.255.255.255" {
		t.Errorf("expected fallback broadcast, got %s", got)
	}
	if got := DirectedBroadcast("192.168.1.50", 99); got != "255.255.255.255" {
		t.Errorf("expected fallback broadcast for bad mask, got %s", got)
	}
}
