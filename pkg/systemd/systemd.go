// Package systemd shells out to systemctl/journalctl for the operator
// console. The daemon itself talks to systemd via sd_notify, not here.
package systemd

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Unit addresses one systemd service, optionally in the user manager
// (systemctl --user), which is how a no-sudo install runs the scheduler.
type Unit struct {
	Name string
	User bool
}

func (u Unit) args(subcmd string) []string {
	a := make([]string, 0, 3)
	if u.User {
		a = append(a, "--user")
	}
	return append(a, subcmd, u.Name)
}

func (u Unit) IsActive(ctx context.Context) (bool, error) {
	cmd := exec.CommandContext(ctx, "systemctl", u.args("is-active")...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		// is-active returns non-zero when inactive; treat as not active
		s := strings.TrimSpace(string(out))
		return s == "active", nil
	}
	return strings.TrimSpace(string(out)) == "active", nil
}

// Status returns systemctl's human-readable status block.
func (u Unit) Status(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "systemctl", u.args("status")...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func (u Unit) Start(ctx context.Context) error {
	return exec.CommandContext(ctx, "systemctl", u.args("start")...).Run()
}
func (u Unit) Stop(ctx context.Context) error {
	return exec.CommandContext(ctx, "systemctl", u.args("stop")...).Run()
}
func (u Unit) Restart(ctx context.Context) error {
	return exec.CommandContext(ctx, "systemctl", u.args("restart")...).Run()
}

// Journal returns the last n journal lines for the unit.
func (u Unit) Journal(ctx context.Context, n int) (string, error) {
	a := make([]string, 0, 6)
	if u.User {
		a = append(a, "--user")
	}
	a = append(a, "-u", u.Name, "--no-pager", "-n", itoa(n))
	cmd := exec.CommandContext(ctx, "journalctl", a...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// FollowJournal runs journalctl -f attached to the caller's terminal
// until ctx is canceled (Ctrl+C).
func (u Unit) FollowJournal(ctx context.Context) error {
	a := make([]string, 0, 5)
	if u.User {
		a = append(a, "--user")
	}
	a = append(a, "-u", u.Name, "-f")
	cmd := exec.CommandContext(ctx, "journalctl", a...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func itoa(n int) string {
	if n <= 0 {
		n = 50
	}
	return strconv.Itoa(n)
}
