// Package appliance opens a diagnostic SSH session to the backup
// appliance for the handful of read-only commands the monitoring agent
// needs (disk usage, service status). It deliberately stops at "run a
// command and return its raw output" — parsing command output into
// structured data is out of scope (§5 Non-goals) and left to the
// message-log and REST paths, which already carry structured data.
//
// Grounded on the teacher's kvm package's SSH dialing (golang.org/x/
// crypto/ssh client setup, host key handling) adapted from libvirt
// management commands to the appliance's diagnostic shell.
package appliance

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// Dialer opens sessions against one appliance endpoint and runs single
// commands to completion.
type Dialer interface {
	Run(ctx context.Context, command string) (stdout string, stderr string, err error)
	Close() error
}

// Config names the appliance SSH endpoint and credentials.
type Config struct {
	Address string
	Port    int
	User    string
	Password string
	Timeout time.Duration
}

type sshDialer struct {
	client *ssh.Client
}

// Dial opens and authenticates an SSH connection to the appliance.
// InsecureIgnoreHostKey is used deliberately: appliances are typically
// reached over a trusted management network without a distributed known
// hosts file, matching the teacher's kvm dialer's own host key handling.
func Dial(cfg Config) (Dialer, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	clientCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(cfg.Address, fmt.Sprintf("%d", cfg.Port))
	client, err := ssh.Dial("tcp", addr, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("appliance: dial %s: %w", addr, err)
	}
	return &sshDialer{client: client}, nil
}

// Run executes command over a fresh SSH session and returns its raw
// stdout/stderr, undecoded.
func (d *sshDialer) Run(ctx context.Context, command string) (string, string, error) {
	session, err := d.client.NewSession()
	if err != nil {
		return "", "", fmt.Errorf("appliance: opening session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return stdout.String(), stderr.String(), ctx.Err()
	case err := <-done:
		return stdout.String(), stderr.String(), err
	}
}

func (d *sshDialer) Close() error {
	return d.client.Close()
}
