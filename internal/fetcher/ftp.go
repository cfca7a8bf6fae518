package fetcher

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures the FTP blob source.
type FTPOptions struct {
	// Addr is host or host:port; port 21 is assumed when omitted.
	Addr     string
	User     string
	Password string
	Timeout  time.Duration
}

// FTPSource retrieves blobs from an FTP server as /<bucket>/<key>.
type FTPSource struct {
	opts FTPOptions
}

// NewFTPSource creates an FTPSource, defaulting to anonymous login and a 30s timeout.
func NewFTPSource(opts FTPOptions) *FTPSource {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User = "anonymous"
		opts.Password = "anonymous@"
	}
	if _, _, err := net.SplitHostPort(opts.Addr); err != nil {
		opts.Addr = net.JoinHostPort(opts.Addr, "21")
	}
	return &FTPSource{opts: opts}
}

// Get connects, retrieves bucket/key, and disconnects.
func (s *FTPSource) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	p, err := objectPath(bucket, key)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("ftp: connecting", zap.String("addr", s.opts.Addr), zap.String("path", p))
	conn, err := ftp.Dial(s.opts.Addr, ftp.DialWithTimeout(s.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrapf(err, "ftp: dial %s", s.opts.Addr)
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(s.opts.User, s.opts.Password); err != nil {
		return nil, eris.Wrap(err, "ftp: login")
	}

	resp, err := conn.Retr(p)
	if err != nil {
		return nil, eris.Wrapf(err, "ftp: retrieve %s", p)
	}
	defer resp.Close() //nolint:errcheck

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, eris.Wrapf(err, "ftp: read %s", p)
	}
	return data, nil
}
