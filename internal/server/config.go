// SPDX-License-Identifier: AGPL-3.0-or-later
package server

import (
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/uran-qa/uran/internal/coredb"
	"github.com/uran-qa/uran/internal/paths"
)

const (
	defaultBindAddress     = "127.0.0.1:8080"
	defaultLogMode         = "text"
	defaultShutdownTimeout = 15 * time.Second
)

// Config carries serve-mode runtime settings derived from CLI flags, env
// vars, and the optional YAML config file.
type Config struct {
	Bind                        string
	Dev                         bool
	DevUserID                   string
	Log                         string
	StdOut                      io.Writer
	StdErr                      io.Writer
	ShutdownTimeout             time.Duration
	MetricsEnabled              bool
	MetricsConfigured           bool
	MetricsAllowUnauthenticated bool
	DataDir                     string
	CoreDBOptions               coredb.Options
	CoreDB                      *coredb.DB
}

// normalize applies defaults when values are not supplied.
func (c Config) normalize() Config {
	if c.Bind == "" {
		c.Bind = defaultBindAddress
	}
	if c.Log == "" {
		c.Log = defaultLogMode
	}
	if c.DataDir == "" {
		c.DataDir = paths.DataDir()
	}
	if c.CoreDBOptions.DataDir == "" {
		c.CoreDBOptions.DataDir = c.DataDir
	}
	if c.StdOut == nil {
		c.StdOut = os.Stdout
	}
	if c.StdErr == nil {
		c.StdErr = os.Stderr
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if !c.MetricsConfigured {
		c.MetricsEnabled = true
	}
	if c.MetricsEnabled {
		c.MetricsAllowUnauthenticated = isLoopbackAddress(c.Bind)
	} else {
		c.MetricsAllowUnauthenticated = false
	}
	return c
}

func isLoopbackAddress(bind string) bool {
	host := bind
	if strings.Contains(bind, ":") {
		parsedHost, _, err := net.SplitHostPort(bind)
		if err == nil {
			host = parsedHost
		}
	}
	if host == "" {
		host = "0.0.0.0"
	}
	if host == "*" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
