// Package testutils holds helpers shared by the bridge's tests.
package testutils

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

var waitDur = 5 * time.Second

// WaitSuccessfulDial waits for a TCP dial of address to succeed.
func WaitSuccessfulDial(ctx context.Context, address string) error {
	ctx, cancel := context.WithTimeout(ctx, waitDur)
	defer cancel()
	lastErr := errors.New("timed out dialing")
	var d net.Dialer
	for {
		select {
		case <-ctx.Done():
			return errors.Wrapf(lastErr, "waiting for %s", address)
		default:
		}
		var conn net.Conn
		conn, lastErr = d.DialContext(ctx, "tcp", address)
		if lastErr == nil {
			return conn.Close()
		}
		time.Sleep(10 * time.Millisecond)
	}
}
