package app

import "testing"

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/status", "status"},
		{"/status@trophybot", "status"},
		{"/CHECK now please", "check"},
		{"  /check  ", "check"},
		{"hello", ""},
		{"", ""},
		{"status", ""},
	}
	for _, tc := range cases {
		if got := parseCommand(tc.in); got != tc.want {
			t.Fatalf("parseCommand(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsOwner(t *testing.T) {
	a := &App{owners: []int64{1, 42}}
	if !a.isOwner(42) {
		t.Fatal("listed owner rejected")
	}
	if a.isOwner(7) {
		t.Fatal("stranger accepted")
	}
}
