package remote

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"slices"
	"testing"

	"github.com/projecteru2/remote/config"
	"github.com/projecteru2/remote/types"
)

var ep = types.Endpoint{Alias: "dev", User: "ubuntu", Host: "ec2-1.compute.example", KeyPath: "/keys/dev.pem"}

// --- SSHArgs ---

func TestSSHArgs_Interactive(t *testing.T) {
	args, err := SSHArgs(ep, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"-i", "/keys/dev.pem", "ubuntu@ec2-1.compute.example"}
	if !slices.Equal(args, want) {
		t.Errorf("expected %q, got %q", want, args)
	}
}

func TestSSHArgs_PortsAndCommand(t *testing.T) {
	args, err := SSHArgs(ep, []int{8080, 5432}, []string{"ls", "-la"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"-i", "/keys/dev.pem",
		"-L", "8080:localhost:8080",
		"-L", "5432:localhost:5432",
		"ubuntu@ec2-1.compute.example",
		"--", "ls", "-la",
	}
	if !slices.Equal(args, want) {
		t.Errorf("expected %q, got %q", want, args)
	}
}

func TestSSHArgs_InvalidPort(t *testing.T) {
	for _, p := range []int{0, -1, 65536} {
		if _, err := SSHArgs(ep, []int{22, p}, nil); !errors.Is(err, ErrInvalidPort) {
			t.Errorf("port %d: expected ErrInvalidPort, got %v", p, err)
		}
	}
}

func TestSSHArgs_NoKeyNoUser(t *testing.T) {
	args, err := SSHArgs(types.Endpoint{Host: "h"}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(args, []string{"h"}) {
		t.Errorf("expected [h], got %q", args)
	}
}

// --- SCPArgs ---

func TestSCPArgs(t *testing.T) {
	tests := []struct {
		name string
		t    Transfer
		want []string
	}{
		{
			name: "upload",
			t:    Transfer{Local: "./a.txt", Remote: "/tmp/a.txt", Upload: true},
			want: []string{"-i", "/keys/dev.pem", "./a.txt", "ubuntu@ec2-1.compute.example:/tmp/a.txt"},
		},
		{
			name: "download recursive",
			t:    Transfer{Local: "./out", Remote: "~/logs", Recursive: true},
			want: []string{"-r", "-i", "/keys/dev.pem", "ubuntu@ec2-1.compute.example:~/logs", "./out"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SCPArgs(ep, tt.t); !slices.Equal(got, tt.want) {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

// --- run ---

func newTestClient(t *testing.T, ssh string) (*Client, *bytes.Buffer) {
	t.Helper()
	bin, err := exec.LookPath(ssh)
	if err != nil {
		t.Skipf("%s not available: %v", ssh, err)
	}
	conf := config.DefaultConfig()
	conf.SSHBinary = bin
	c := New(conf)
	out := &bytes.Buffer{}
	c.Stdin, c.Stdout, c.Stderr = &bytes.Buffer{}, out, out
	return c, out
}

func TestRun_Success(t *testing.T) {
	c, _ := newTestClient(t, "true")
	if err := c.SSH(context.Background(), ep, nil, nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRun_ExitCodePropagated(t *testing.T) {
	c, _ := newTestClient(t, "false")
	err := c.SSH(context.Background(), ep, nil, nil)
	var ee *ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *ExitError, got %v", err)
	}
	if ee.Code != 1 {
		t.Errorf("expected code 1, got %d", ee.Code)
	}
}

func TestRun_MissingBinary(t *testing.T) {
	conf := config.DefaultConfig()
	conf.SSHBinary = "/nonexistent/ssh"
	err := New(conf).SSH(context.Background(), ep, nil, nil)
	var ee *ExitError
	if err == nil || errors.As(err, &ee) {
		t.Errorf("expected a start error, got %v", err)
	}
}
