package transport

import (
	"errors"
	"io"
	"os/exec"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestExec_Args(t *testing.T) {
	tr, err := NewExec(ExecConfig{
		Endpoint:       Endpoint{Host: "review.example.org", Port: 29418, Username: "bob"},
		KeyFile:        "/keys/id",
		KnownHostsFile: "/keys/known_hosts",
	})
	if err != nil {
		t.Fatalf("NewExec: %v", err)
	}

	args := tr.Args("gerrit stream-events")
	want := []string{
		"-p", "29418",
		"-l", "bob",
		"-o", "BatchMode=yes",
		"-o", "ServerAliveInterval=15",
		"-o", "ServerAliveCountMax=3",
		"-i", "/keys/id",
		"-o", "UserKnownHostsFile=/keys/known_hosts",
		"review.example.org", "gerrit stream-events",
	}
	if !slices.Equal(args, want) {
		t.Errorf("Args() =\n%q\nwant\n%q", args, want)
	}
}

func TestExec_ArgsInsecure(t *testing.T) {
	tr, err := NewExec(ExecConfig{
		Endpoint:              Endpoint{Host: "h", Port: 22, Username: "u"},
		InsecureIgnoreHostKey: true,
		ExtraArgs:             []string{"-v"},
	})
	if err != nil {
		t.Fatalf("NewExec: %v", err)
	}
	args := strings.Join(tr.Args("cmd"), " ")
	if !strings.Contains(args, "StrictHostKeyChecking=no") {
		t.Errorf("expected host key checking disabled: %s", args)
	}
	if !strings.HasSuffix(args, "-v h cmd") {
		t.Errorf("extra args must precede destination: %s", args)
	}
}

func TestNewExec_Validation(t *testing.T) {
	tests := []struct {
		name     string
		endpoint Endpoint
	}{
		{"no host", Endpoint{Port: 22, Username: "u"}},
		{"bad port", Endpoint{Host: "h", Port: 0, Username: "u"}},
		{"no user", Endpoint{Host: "h", Port: 22}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewExec(ExecConfig{Endpoint: tt.endpoint}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// fakeSSH returns an Exec whose binary is a shell script standing in
// for ssh. The remote command is the last argument.
func fakeSSH(t *testing.T, script string) *Exec {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	tr, err := NewExec(ExecConfig{
		Endpoint: Endpoint{Host: "h", Port: 22, Username: "u"},
		Binary:   "sh",
	})
	if err != nil {
		t.Fatalf("NewExec: %v", err)
	}
	// argv becomes: sh -c <script> ssh <ssh args...>
	tr.argsHook = func(args []string) []string {
		return append([]string{"-c", script, "ssh"}, args...)
	}
	return tr
}

func TestExec_RunAndOpen(t *testing.T) {
	tr := fakeSSH(t, `for last; do :; done; echo "ran: $last"`)

	out, err := tr.Run(t.Context(), "gerrit version")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if string(out) != "ran: gerrit version\n" {
		t.Errorf("Run output = %q", out)
	}

	sess, err := tr.Open(t.Context(), "gerrit stream-events")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = sess.Close() }()

	data, err := io.ReadAll(sess.Stdout())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "ran: gerrit stream-events\n" {
		t.Errorf("stream = %q", data)
	}
	if err := sess.Wait(); err != nil {
		t.Errorf("Wait: %v", err)
	}
	if err := sess.Keepalive(t.Context()); err == nil {
		t.Error("Keepalive after exit should fail")
	}
}

func TestExec_AuthFailureClassified(t *testing.T) {
	tr := fakeSSH(t, `echo "bob@h: Permission denied (publickey)." >&2; exit 255`)

	_, err := tr.Run(t.Context(), "gerrit version")
	if !IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestExec_CloseKillsProcess(t *testing.T) {
	tr := fakeSSH(t, `exec sleep 30`)

	sess, err := tr.Open(t.Context(), "gerrit stream-events")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- sess.Wait() }()

	_ = sess.Close()
	select {
	case err := <-done:
		if !errors.Is(err, ErrSessionClosed) {
			t.Errorf("Wait after Close = %v, want ErrSessionClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not stop the process")
	}
}
