package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFTPSource_Defaults(t *testing.T) {
	s := NewFTPSource(FTPOptions{Addr: "ftp.example.com"})
	assert.Equal(t, "ftp.example.com:21", s.opts.Addr)
	assert.Equal(t, "anonymous", s.opts.User)
	assert.Equal(t, 30*time.Second, s.opts.Timeout)
}

func TestNewFTPSource_KeepsPortAndCredentials(t *testing.T) {
	s := NewFTPSource(FTPOptions{Addr: "ftp.example.com:2121", User: "esg", Password: "secret"})
	assert.Equal(t, "ftp.example.com:2121", s.opts.Addr)
	assert.Equal(t, "esg", s.opts.User)
	assert.Equal(t, "secret", s.opts.Password)
}

func TestFTPSource_RejectsBadPath(t *testing.T) {
	s := NewFTPSource(FTPOptions{Addr: "127.0.0.1:1", Timeout: 100 * time.Millisecond})
	_, err := s.Get(context.Background(), "drops", "../etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes bucket")
}

func TestFTPSource_DialFailure(t *testing.T) {
	s := NewFTPSource(FTPOptions{Addr: "127.0.0.1:1", Timeout: 200 * time.Millisecond})
	_, err := s.Get(context.Background(), "drops", "esg.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ftp: dial")
}
