// Package clisession owns one interactive CLI connection per managed
// switch. It is deliberately the only package in this module that speaks
// SSH — every higher layer (deviceops, the ZTP engine) talks to a Runner
// interface instead.
package clisession

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

const (
	// defaultCommandTimeout matches §5's default per-CLI-call timeout.
	defaultCommandTimeout = 30 * time.Second
	// saveTimeout matches §5's 60s timeout for "write memory".
	saveTimeout = 60 * time.Second
	// dialTimeout bounds the TCP+SSH handshake before a device is
	// considered unreachable rather than merely slow to authenticate.
	dialTimeout = 8 * time.Second
	// readChunkSize is the buffer size used for each Read off the SSH
	// session's stdout pipe while hunting for a prompt.
	readChunkSize = 4096
)

// Runner is the subset of Session that deviceops depends on. Defined here
// so deviceops can be tested against a fake without dialing SSH.
type Runner interface {
	Run(ctx context.Context, cmd string, timeout time.Duration) (string, bool)
	EnterConfig(ctx context.Context) error
	ExitConfig(ctx context.Context) error
	Save(ctx context.Context) (bool, error)
}

// Session owns one interactive SSH channel to a single switch. It is not
// safe for concurrent use — the ZTP engine guarantees at most one flow owns
// a given switch's Session at a time (§5 of the spec).
type Session struct {
	ip     string
	logger *zap.Logger

	client *ssh.Client
	sess   *ssh.Session
	stdin  io.WriteCloser
	r      *bufio.Reader

	prompt    PromptState
	sshActive atomic.Bool
	closeOnce sync.Once
}

// Open dials ip over SSH, trying each credential in order, and returns a
// ready Session positioned at the exec prompt. If the device answers the
// vendor default credential pair with a forced password-change prompt, Open
// completes that flow transparently using preferredPassword and
// re-authenticates once before returning.
func Open(ctx context.Context, ip string, creds []wire.Credential, preferredPassword string, logger *zap.Logger) (*Session, error) {
	if len(creds) == 0 {
		return nil, &ProtocolError{Err: fmt.Errorf("no credentials configured")}
	}

	var lastAuthErr error
	for i, cred := range creds {
		sess, changed, err := dialAndLogin(ctx, ip, cred, preferredPassword, logger)
		switch {
		case err == nil:
			if changed {
				logger.Info("clisession: completed forced password change",
					zap.String("ip", ip), zap.String("username", cred.Username))
			}
			return sess, nil
		case isUnreachable(err):
			// Fail fast: do not burn through the remaining credentials
			// against a device that never answered at the transport level.
			return nil, err
		default:
			lastAuthErr = err
			logger.Debug("clisession: credential rejected, trying next",
				zap.String("ip", ip), zap.Int("credential_index", i))
		}
	}

	return nil, &AuthError{Err: fmt.Errorf("all credentials rejected for %s: %w", ip, lastAuthErr)}
}

// dialAndLogin performs one SSH handshake + CLI login attempt with a single
// credential, transparently handling a forced password change if the
// device presents one. changed reports whether a password change occurred.
func dialAndLogin(ctx context.Context, ip string, cred wire.Credential, preferredPassword string, logger *zap.Logger) (*Session, bool, error) {
	client, err := dial(ip, cred)
	if err != nil {
		if isDialTimeout(err) {
			return nil, false, &TransientError{Err: fmt.Errorf("%s: %w", ip, ErrUnreachable)}
		}
		return nil, false, &AuthError{Err: err}
	}

	sess, r, stdin, sshSess, err := startShell(client)
	if err != nil {
		client.Close()
		return nil, false, &ProtocolError{Err: err}
	}

	s := &Session{
		ip:     ip,
		logger: logger.Named("clisession").With(zap.String("ip", ip)),
		client: client,
		sess:   sshSess,
		stdin:  stdin,
		r:      r,
		prompt: PromptExec,
	}

	buf, state, err := s.readUntilPrompt(ctx, dialTimeout)
	if err != nil {
		s.Close()
		return nil, false, err
	}

	switch state {
	case PromptExec:
		_ = sess
		return s, false, nil

	case PromptNewPassword:
		if err := s.completePasswordChange(ctx, preferredPassword); err != nil {
			s.Close()
			return nil, false, err
		}
		s.Close()

		// Re-authenticate once with the new password, per spec.
		newCred := wire.Credential{Username: cred.Username, Password: preferredPassword}
		client2, err := dial(ip, newCred)
		if err != nil {
			return nil, false, &AuthError{Err: fmt.Errorf("re-auth after password change: %w", err)}
		}
		sess2, r2, stdin2, sshSess2, err := startShell(client2)
		if err != nil {
			client2.Close()
			return nil, false, &ProtocolError{Err: err}
		}
		_ = sess2
		s2 := &Session{
			ip:     ip,
			logger: logger.Named("clisession").With(zap.String("ip", ip)),
			client: client2,
			sess:   sshSess2,
			stdin:  stdin2,
			r:      r2,
			prompt: PromptExec,
		}
		if _, state2, err := s2.readUntilPrompt(ctx, dialTimeout); err != nil || state2 != PromptExec {
			s2.Close()
			if err == nil {
				err = fmt.Errorf("unexpected prompt after re-auth: %s", state2)
			}
			return nil, false, &ProtocolError{Err: err}
		}
		return s2, true, nil

	default:
		_ = buf
		s.Close()
		return nil, false, &ProtocolError{Err: fmt.Errorf("unexpected initial prompt state %q", state)}
	}
}

// completePasswordChange drives the "Enter new password" / "Confirm new
// password" exchange using preferredPassword for both prompts.
func (s *Session) completePasswordChange(ctx context.Context, preferredPassword string) error {
	if _, err := io.WriteString(s.stdin, preferredPassword+"\n"); err != nil {
		return &TransientError{Err: err}
	}
	_, state, err := s.readUntilPrompt(ctx, dialTimeout)
	if err != nil {
		return err
	}
	if state != PromptNewPassword {
		return &ProtocolError{Err: fmt.Errorf("expected confirm-new-password prompt, got %q", state)}
	}
	if _, err := io.WriteString(s.stdin, preferredPassword+"\n"); err != nil {
		return &TransientError{Err: err}
	}
	return nil
}

// dial opens the TCP connection and completes the SSH handshake with cred.
//
// Host key verification is intentionally skipped: ZTP targets are freshly
// racked switches with no pre-distributed host key, so there is nothing to
// verify against on first contact.
func dial(ip string, cred wire.Credential) (*ssh.Client, error) {
	conf := &ssh.ClientConfig{
		User:            cred.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(cred.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(ip, "22"), dialTimeout)
	if err != nil {
		return nil, err
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, net.JoinHostPort(ip, "22"), conf)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// startShell opens an interactive session with a pty and starts the shell,
// returning the buffered reader and stdin writer used for the remainder of
// the session's lifetime.
func startShell(client *ssh.Client) (ok bool, r *bufio.Reader, stdin io.WriteCloser, sess *ssh.Session, err error) {
	sess, err = client.NewSession()
	if err != nil {
		return false, nil, nil, nil, err
	}
	if err = sess.RequestPty("vt100", 200, 512, ssh.TerminalModes{}); err != nil {
		sess.Close()
		return false, nil, nil, nil, err
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return false, nil, nil, nil, err
	}
	stdin, err = sess.StdinPipe()
	if err != nil {
		sess.Close()
		return false, nil, nil, nil, err
	}
	if err = sess.Shell(); err != nil {
		sess.Close()
		return false, nil, nil, nil, err
	}
	return true, bufio.NewReaderSize(stdout, readChunkSize), stdin, sess, nil
}

// readUntilPrompt accumulates output until a recognized prompt state
// appears at the tail of the buffer, or timeout elapses.
func (s *Session) readUntilPrompt(ctx context.Context, timeout time.Duration) (string, PromptState, error) {
	s.sshActive.Store(true)
	defer s.sshActive.Store(false)

	deadline := time.Now().Add(timeout)
	var sb strings.Builder
	chunk := make([]byte, readChunkSize)

	for {
		if time.Now().After(deadline) {
			return sb.String(), "", &TimeoutError{Op: "read-prompt"}
		}
		if ctx.Err() != nil {
			return sb.String(), "", &TransientError{Err: ctx.Err()}
		}

		n, err := s.r.Read(chunk)
		if n > 0 {
			sb.Write(chunk[:n])
			if state, ok := detectPrompt(sb.String()); ok {
				s.prompt = state
				return sb.String(), state, nil
			}
		}
		if err != nil {
			if err == io.EOF {
				return sb.String(), "", &TransientError{Err: fmt.Errorf("connection closed by %s", s.ip)}
			}
			return sb.String(), "", &TransientError{Err: err}
		}
	}
}

// Run sends cmd and returns its full output with paging markers stripped
// and the trailing prompt removed. ok is false on timeout or transport
// error; Run never panics on a malformed response — it returns ok=false
// instead so the engine can fail just this command and continue the tick.
func (s *Session) Run(ctx context.Context, cmd string, timeout time.Duration) (string, bool) {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}

	s.sshActive.Store(true)
	defer s.sshActive.Store(false)

	if _, err := io.WriteString(s.stdin, cmd+"\n"); err != nil {
		s.logger.Warn("clisession: write failed", zap.String("cmd", cmd), zap.Error(err))
		return "", false
	}

	var sb strings.Builder
	deadline := time.Now().Add(timeout)
	chunk := make([]byte, readChunkSize)

	for {
		if time.Now().After(deadline) {
			s.logger.Warn("clisession: command timed out", zap.String("cmd", cmd))
			return sb.String(), false
		}

		n, err := s.r.Read(chunk)
		if n > 0 {
			sb.Write(chunk[:n])
			full := sb.String()
			if state, ok := detectPrompt(full); ok {
				if state == PromptPaged {
					if _, werr := io.WriteString(s.stdin, " "); werr != nil {
						return sb.String(), false
					}
					continue
				}
				s.prompt = state
				out := stripPaging(full)
				out = stripTrailingPrompt(out)
				out = strings.TrimPrefix(out, cmd)
				return strings.TrimSpace(out), true
			}
		}
		if err != nil {
			s.logger.Warn("clisession: read failed", zap.String("cmd", cmd), zap.Error(err))
			return sb.String(), false
		}
	}
}

// EnterConfig transitions to global configuration mode. Idempotent: if
// already in config (or a nested interface context), it is a no-op.
func (s *Session) EnterConfig(ctx context.Context) error {
	if s.prompt == PromptConfig || s.prompt == PromptInterfaceConfig {
		return nil
	}
	if _, ok := s.Run(ctx, "configure terminal", defaultCommandTimeout); !ok {
		return &ProtocolError{Err: fmt.Errorf("enter config mode failed on %s", s.ip)}
	}
	if s.prompt != PromptConfig {
		return &ProtocolError{Err: fmt.Errorf("expected config prompt, got %q", s.prompt)}
	}
	return nil
}

// ExitConfig walks back out of any nested interface context to the exec
// prompt. Idempotent, and safe to call on any error path — it never
// returns an error for "already at exec".
func (s *Session) ExitConfig(ctx context.Context) error {
	for attempts := 0; attempts < 3; attempts++ {
		switch s.prompt {
		case PromptExec:
			return nil
		case PromptConfig, PromptInterfaceConfig:
			if _, ok := s.Run(ctx, "exit", defaultCommandTimeout); !ok {
				return &ProtocolError{Err: fmt.Errorf("exit config failed on %s", s.ip)}
			}
		default:
			return &ProtocolError{Err: fmt.Errorf("cannot exit config from prompt state %q", s.prompt)}
		}
	}
	return &ProtocolError{Err: fmt.Errorf("did not reach exec prompt after exiting config on %s", s.ip)}
}

// Save issues the vendor "write memory" equivalent and returns ok when the
// command returns to a prompt within saveTimeout and its output does not
// contain "error". No specific confirmation line is looked for.
func (s *Session) Save(ctx context.Context) (bool, error) {
	out, ok := s.Run(ctx, "write memory", saveTimeout)
	if !ok {
		return false, &TimeoutError{Op: "write memory"}
	}
	lower := strings.ToLower(out)
	if strings.Contains(lower, "error") {
		return false, &ProtocolError{Err: fmt.Errorf("write memory reported an error: %s", out)}
	}
	return true, nil
}

// Close releases the SSH session and connection. Safe to call multiple
// times and from any exit path, including after a timeout.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.sess != nil {
			_ = s.sess.Close()
		}
		if s.client != nil {
			_ = s.client.Close()
		}
		s.sshActive.Store(false)
	})
}

// SSHActive reports whether the session is currently blocked on a command,
// for the UI's transient ssh_active indicator.
func (s *Session) SSHActive() bool { return s.sshActive.Load() }

func isUnreachable(err error) bool {
	return Kind(err) == wire.KindTransientError
}

func isDialTimeout(err error) bool {
	var netErr net.Error
	if ne, ok := err.(net.Error); ok {
		netErr = ne
		return netErr.Timeout()
	}
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "no route to host") ||
		strings.Contains(err.Error(), "i/o timeout")
}
