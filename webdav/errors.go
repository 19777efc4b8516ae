package webdav

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/url"

	"github.com/ncw/webdavfs/vfs"
)

// errorFromStatus builds a *vfs.Error carrying status as its subcode,
// grounded on Internal.cpp's ToVFSError HTTP branch (the table itself lives
// in vfs.KindFromStatus so webdav/request can share it without importing
// this package).
func errorFromStatus(status int, cause error) *vfs.Error {
	return vfs.NewFromStatus(status, cause)
}

// errorFromTransport maps a transport-level failure (DNS, connect, TLS,
// timeout, context cancellation) to a vfs.Kind, grounded on Internal.cpp's
// ToVFSError transport-code branch, adapted from libcurl's CURLcode
// vocabulary to the net/http error values Go actually surfaces.
func errorFromTransport(err error) *vfs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return vfs.Newf(vfs.KindCancelled, 0, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return vfs.Newf(vfs.KindTimeout, 0, err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return vfs.Newf(vfs.KindTimeout, 0, err)
		}
		return errorFromTransport(urlErr.Err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return vfs.Newf(vfs.KindTimeout, 0, err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return vfs.Newf(vfs.KindUnreachable, 0, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch opErr.Op {
		case "dial":
			return vfs.Newf(vfs.KindAddressNotAvailable, 0, err)
		case "read", "write":
			return vfs.Newf(vfs.KindConnectionAborted, 0, err)
		}
	}

	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return vfs.Newf(vfs.KindTLS, 0, err)
	}
	if _, ok := err.(tls.RecordHeaderError); ok {
		return vfs.Newf(vfs.KindTLS, 0, err)
	}

	return vfs.Newf(vfs.KindIO, 0, err)
}
