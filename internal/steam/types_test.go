package steam

import (
	"testing"
	"time"
)

func TestAccountAge(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		created time.Time
		want    string
	}{
		{"unknown creation time", time.Time{}, ""},
		{"created in the future", now.Add(time.Hour), ""},
		{"fresh account", now, "0 year(s), 0 month(s), 0 day(s)"},
		{"one year and change", now.AddDate(-1, 0, -40), "1 year(s), 1 month(s), 10 day(s)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			acc := Account{CreatedAt: tc.created}
			if got := acc.Age(now); got != tc.want {
				t.Fatalf("Age = %q, want %q", got, tc.want)
			}
		})
	}
}
