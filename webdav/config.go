package webdav

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ncw/webdavfs/internal/obscure"
)

// HostConfiguration identifies a single WebDAV mount: the server, the
// credentials to reach it with, and the base path to confine the VFS to.
//
// Grounded on Internal.h's HostConfiguration and its operator==, which
// compares only the fields that affect what gets served, excluding the two
// cached, derived display fields. Password follows rclone's fs/config/obscure
// convention: it is stored obscured, never plain text, and is only revealed
// at the point a connection actually authenticates.
type HostConfiguration struct {
	ServerURL string
	User      string
	Password  string // obscured; use RevealedPassword to get the plain value
	Path      string
	HTTPS     bool
	Port      int

	verbose string
	fullURL string
}

// NewHostConfiguration builds a HostConfiguration from a plain-text
// password, obscuring it immediately so the value never sits in memory (or
// gets persisted) unobscured except for the brief window it's revealed in.
func NewHostConfiguration(serverURL, user, password, path string, https bool, port int) HostConfiguration {
	obscured := ""
	if password != "" {
		obscured = obscure.MustObscure(password)
	}
	c := HostConfiguration{
		ServerURL: serverURL,
		User:      user,
		Password:  obscured,
		Path:      normalizeBasePath(path),
		HTTPS:     https,
		Port:      port,
	}
	c.verbose = c.computeVerbose()
	c.fullURL = c.computeFullURL()
	return c
}

// RevealedPassword decodes the obscured Password field back to plain text,
// for use at the moment a connection authenticates. Returns "" unchanged if
// no password was ever set.
func (c HostConfiguration) RevealedPassword() string {
	if c.Password == "" {
		return ""
	}
	return obscure.MustReveal(c.Password)
}

func normalizeBasePath(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return ""
	}
	return "/" + path
}

func (c HostConfiguration) scheme() string {
	if c.HTTPS {
		return "https"
	}
	return "http"
}

func (c HostConfiguration) hostPort() string {
	if c.Port == 0 {
		return c.ServerURL
	}
	return fmt.Sprintf("%s:%d", c.ServerURL, c.Port)
}

func (c HostConfiguration) computeVerbose() string {
	host := c.hostPort()
	if c.User != "" {
		host = c.User + "@" + host
	}
	return fmt.Sprintf("%s://%s%s", c.scheme(), host, c.Path)
}

func (c HostConfiguration) computeFullURL() string {
	base := fmt.Sprintf("%s://%s", c.scheme(), c.hostPort())
	if c.Path == "" {
		return base + "/"
	}
	return base + c.Path + "/"
}

// Junction returns the server URL this configuration connects to, the
// analogue of HostConfiguration::Junction.
func (c HostConfiguration) Junction() string { return c.ServerURL }

// VerboseJunction returns a human-readable, credential-free identifier for
// this mount, suitable for logging.
func (c HostConfiguration) VerboseJunction() string { return c.verbose }

// FullURL returns the absolute base URL requests are issued against,
// always ending in a trailing slash.
func (c HostConfiguration) FullURL() string { return c.fullURL }

// ParsedURL parses FullURL into a *url.URL for use with URLJoin.
func (c HostConfiguration) ParsedURL() (*url.URL, error) {
	return url.Parse(c.fullURL)
}

// Equal compares two configurations the way Internal.cpp's operator== does:
// on the fields that determine what gets served, ignoring the cached
// display strings. Passwords compare by revealed value since Obscure uses a
// random IV, so two obscured forms of the same password never match
// byte-for-byte.
func (c HostConfiguration) Equal(other HostConfiguration) bool {
	return c.ServerURL == other.ServerURL &&
		c.User == other.User &&
		c.RevealedPassword() == other.RevealedPassword() &&
		c.Path == other.Path &&
		c.HTTPS == other.HTTPS &&
		c.Port == other.Port
}

// Tag identifies this host type to the generic VFS dispatch framework.
const Tag = "net_webdav"
