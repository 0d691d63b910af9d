package discovery

import "testing"

func TestParseRange(t *testing.T) {
	r, err := ParseRange("192.168.1", 1, 254)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	all := addrs(r)
	if len(all) != 254 {
		t.Fatalf("got %d addresses want 254", len(all))
	}
	if all[0].String() != "192.168.1.1" || all[253].String() != "192.168.1.254" {
		t.Fatalf("unexpected bounds %s..%s", all[0], all[253])
	}

	r, err = ParseRange("10.0.0.", 7, 7)
	if err != nil {
		t.Fatalf("trailing dot: %v", err)
	}
	if got := addrs(r); len(got) != 1 || suffix(got[0]) != 7 {
		t.Fatalf("got %v", got)
	}
}

func TestRangeFromCIDR(t *testing.T) {
	cases := []struct {
		cidr       string
		prefix     string
		start, end int
	}{
		{"10.0.0.0/24", "10.0.0", 1, 254},
		{"192.168.5.77/24", "192.168.5", 1, 254},
		{"10.0.0.64/26", "10.0.0", 65, 126},
		{"10.0.0.8/31", "10.0.0", 8, 9},
		{"10.0.0.9/32", "10.0.0", 9, 9},
	}
	for _, c := range cases {
		t.Run(c.cidr, func(t *testing.T) {
			prefix, start, end, err := RangeFromCIDR(c.cidr)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if prefix != c.prefix || start != c.start || end != c.end {
				t.Fatalf("got %s %d-%d want %s %d-%d", prefix, start, end, c.prefix, c.start, c.end)
			}
		})
	}

	for _, bad := range []string{"10.0.0.0/16", "2001:db8::/120", "nonsense"} {
		if _, _, _, err := RangeFromCIDR(bad); err == nil {
			t.Fatalf("expected error for %s", bad)
		}
	}
}
