package shell

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/creack/pty"
)

// promptMarker is set as PS1 so command boundaries can be detected in the
// pty stream. The string is unlikely to occur in real output.
const promptMarker = "AGENTD_PROMPT>> "

// ansiEscape matches CSI escape sequences emitted by the terminal.
var ansiEscape = regexp.MustCompile(`\x1B\[[0-?]*[ -/]*[@-~]`)

// errTimeout reports that a command did not finish within the deadline.
var errTimeout = errors.New("command deadline exceeded")

// session is one persistent bash process behind a pty. State set by earlier
// commands (cwd, environment, background jobs) survives across commands.
type session struct {
	cmd     *exec.Cmd
	f       *os.File
	timeout time.Duration
}

// startSession spawns bash, installs the prompt marker, and changes into
// workdir when given.
func startSession(timeout time.Duration, workdir string) (*session, error) {
	cmd := exec.Command("/bin/bash")
	cmd.Env = append(os.Environ(), "TERM=dumb")
	f, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("start shell: %w", err)
	}
	s := &session{cmd: cmd, f: f, timeout: timeout}

	setup := fmt.Sprintf("stty -echo -onlcr; unset PROMPT_COMMAND; PS1='%s'\n", promptMarker)
	if _, err := s.f.WriteString(setup); err != nil {
		s.close()
		return nil, fmt.Errorf("configure shell: %w", err)
	}
	if _, err := s.readUntilMarker(); err != nil {
		s.close()
		return nil, fmt.Errorf("configure shell: %w", err)
	}
	if workdir != "" {
		if _, err := s.run(fmt.Sprintf("cd %q", workdir)); err != nil {
			s.close()
			return nil, fmt.Errorf("enter workspace: %w", err)
		}
	}
	return s, nil
}

// run sends one command and returns its cleaned output.
func (s *session) run(command string) (string, error) {
	if _, err := s.f.WriteString(command + "\n"); err != nil {
		return "", err
	}
	raw, err := s.readUntilMarker()
	if err != nil {
		return "", err
	}
	clean := ansiEscape.ReplaceAllString(raw, "")
	clean = strings.TrimPrefix(clean, "\r")
	return strings.TrimSpace(clean), nil
}

// readUntilMarker accumulates pty output until the prompt marker reappears
// and returns everything before it.
func (s *session) readUntilMarker() (string, error) {
	deadline := time.Now().Add(s.timeout)
	var buf bytes.Buffer
	chunk := make([]byte, 4096)
	for {
		if err := s.f.SetReadDeadline(deadline); err != nil {
			return "", err
		}
		n, err := s.f.Read(chunk)
		buf.Write(chunk[:n])
		if idx := bytes.Index(buf.Bytes(), []byte(promptMarker)); idx >= 0 {
			return buf.String()[:idx], nil
		}
		if err != nil {
			if os.IsTimeout(err) {
				return "", errTimeout
			}
			return "", err
		}
	}
}

// probe verifies the shell still answers. A session that fails the probe is
// considered wedged and must be replaced.
func (s *session) probe() bool {
	out, err := s.run("echo hello")
	return err == nil && strings.TrimSpace(out) == "hello"
}

func (s *session) close() {
	s.f.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd.Wait()
}
