package shell

import (
	"strconv"
	"strings"
)

// CommandFilter transforms a command before execution. Filters chain
// left-to-right, so a later filter wraps the output of an earlier one.
type CommandFilter interface {
	FilterCommand(command string) string
}

// SSHFilter wraps commands for execution on a remote host.
type SSHFilter struct {
	Host         string
	User         string
	Port         int
	IdentityFile string
}

func (f SSHFilter) FilterCommand(command string) string {
	parts := []string{"ssh"}
	if f.Port != 0 && f.Port != 22 {
		parts = append(parts, "-p", strconv.Itoa(f.Port))
	}
	if f.IdentityFile != "" {
		parts = append(parts, "-i", f.IdentityFile)
	}
	host := f.Host
	if f.User != "" {
		host = f.User + "@" + f.Host
	}
	parts = append(parts, host, quoteEscaped(command))
	return strings.Join(parts, " ")
}

// DockerFilter wraps commands for execution inside a running container.
type DockerFilter struct {
	Container string
	User      string
}

func (f DockerFilter) FilterCommand(command string) string {
	parts := []string{"docker", "exec"}
	if f.User != "" {
		parts = append(parts, "-u", f.User)
	}
	parts = append(parts, f.Container, "/bin/bash", "-l", "-c", quoteEscaped(command))
	return strings.Join(parts, " ")
}

func quoteEscaped(command string) string {
	return `"` + strings.ReplaceAll(command, `"`, `\"`) + `"`
}
