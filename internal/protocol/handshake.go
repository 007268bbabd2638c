package protocol

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reeslabree/sprinkler-controller/internal/logging"
)

const (
	// KeyLength is the number of random bytes behind a Sec-WebSocket-Key
	KeyLength = 16

	// DefaultHandshakeTimeout bounds the wait for the upgrade response
	DefaultHandshakeTimeout = 20 * time.Second

	// acceptMarker is matched case-insensitively against the raw response
	acceptMarker = "sec-websocket-accept"

	acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

	handshakeReadChunk = 512
)

var headerTerminator = []byte("\r\n\r\n")

// DeadlineReader is the subset of net.Conn the handshake wait needs.
type DeadlineReader interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

// GenerateKey draws KeyLength bytes from random and returns them base64
// encoded. The result is always 24 characters.
func GenerateKey(random io.Reader) (string, error) {
	raw := make([]byte, KeyLength)
	if _, err := io.ReadFull(random, raw); err != nil {
		return "", NewError(ErrTypeKeyGenerationFailed, "failed to read random bytes", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// BuildUpgradeRequest renders the HTTP/1.1 GET that asks the relay to switch
// to the WebSocket protocol.
func BuildUpgradeRequest(host string, port int, path string, key string) string {
	if path == "" {
		path = "/"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", path)
	fmt.Fprintf(&b, "Host: %s:%d\r\n", host, port)
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&b, "Sec-WebSocket-Key: %s\r\n", key)
	b.WriteString("Sec-WebSocket-Version: 13\r\n")
	b.WriteString("\r\n")
	return b.String()
}

// ExpectedAccept computes the Sec-WebSocket-Accept value a compliant server
// derives from key.
func ExpectedAccept(key string) string {
	h := sha1.New()
	h.Write([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// AwaitHandshakeResponse reads from conn until the accumulated response
// contains the Sec-WebSocket-Accept header or timeout elapses.
//
// Outcomes:
//   - accept text seen: success; any bytes after the header block are returned
//   - deadline with nothing read: ErrTypeHandshakeTimeout
//   - deadline with bytes but no accept text: ErrTypeHandshakeFailed
//   - peer closed: ErrTypeConnectionClosed
//
// A match is a plain substring check; the accept value is not verified.
func AwaitHandshakeResponse(conn DeadlineReader, timeout time.Duration) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, NewError(ErrTypeReadError, "failed to set handshake deadline", err)
	}
	defer func() {
		_ = conn.SetReadDeadline(time.Time{})
	}()

	var response []byte
	chunk := make([]byte, handshakeReadChunk)
	accepted := false

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			response = append(response, chunk[:n]...)
			if !accepted && bytes.Contains(bytes.ToLower(response), []byte(acceptMarker)) {
				accepted = true
			}
			if accepted {
				if idx := bytes.Index(response, headerTerminator); idx >= 0 {
					logging.LogRawBytes("Handshake response", response[:idx])
					return leftover(response[idx+len(headerTerminator):]), nil
				}
			}
		}

		if err == nil {
			continue
		}

		switch {
		case isDeadline(err):
			if accepted {
				// Header block never terminated, but the relay did accept.
				return nil, nil
			}
			if len(response) == 0 {
				return nil, NewError(ErrTypeHandshakeTimeout,
					fmt.Sprintf("no response within %s", timeout), err)
			}
			logging.Debug("Handshake response without accept header",
				zap.Int("bytes", len(response)))
			return nil, NewError(ErrTypeHandshakeFailed,
				fmt.Sprintf("response of %d bytes did not accept the upgrade", len(response)), nil)
		case errors.Is(err, io.EOF):
			if accepted {
				return nil, nil
			}
			return nil, NewError(ErrTypeConnectionClosed, "peer closed during handshake", err)
		default:
			return nil, NewError(ErrTypeReadError, "handshake read failed", err)
		}
	}
}

func leftover(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}

func isDeadline(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
