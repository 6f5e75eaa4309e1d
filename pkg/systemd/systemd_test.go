package systemd

import "testing"

func TestItoa(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n    int
		want string
	}{
		{1, "1"},
		{200, "200"},
		{123456789, "123456789"}, // journal line counts are operator input
		{0, "50"},
		{-7, "50"},
	}
	for _, tt := range tests {
		if got := itoa(tt.n); got != tt.want {
			t.Fatalf("itoa(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestUnitArgs(t *testing.T) {
	t.Parallel()
	u := Unit{Name: "mnsched.service"}
	got := u.args("restart")
	if len(got) != 2 || got[0] != "restart" || got[1] != "mnsched.service" {
		t.Fatalf("args = %v", got)
	}

	u.User = true
	got = u.args("stop")
	if len(got) != 3 || got[0] != "--user" || got[1] != "stop" || got[2] != "mnsched.service" {
		t.Fatalf("user args = %v", got)
	}
}
