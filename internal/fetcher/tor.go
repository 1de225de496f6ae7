package fetcher

import (
	"context"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Renewer asks a Tor daemon for a fresh circuit over its control port.
type Renewer struct {
	addr     string
	password string
	wait     time.Duration

	mu sync.Mutex
}

// NewRenewer creates a Renewer for the control port at addr. wait is how
// long to pause after NEWNYM so the new circuit is in place.
func NewRenewer(addr, password string, wait time.Duration) *Renewer {
	return &Renewer{addr: addr, password: password, wait: wait}
}

// Renew authenticates and sends SIGNAL NEWNYM. Concurrent callers are
// serialised so one renewal is in flight at a time.
func (r *Renewer) Renew(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := d.DialContext(dialCtx, "tcp", r.addr)
	if err != nil {
		return eris.Wrapf(err, "fetcher: dial tor control %s", r.addr)
	}
	if deadline, ok := dialCtx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	tp := textproto.NewConn(conn)
	defer tp.Close() //nolint:errcheck

	auth := "AUTHENTICATE"
	if r.password != "" {
		auth += " " + quoteControlString(r.password)
	}
	if err := controlCommand(tp, auth); err != nil {
		return eris.Wrap(err, "fetcher: tor authenticate")
	}
	if err := controlCommand(tp, "SIGNAL NEWNYM"); err != nil {
		return eris.Wrap(err, "fetcher: tor newnym")
	}
	_, _ = tp.Cmd("QUIT")

	zap.L().Info("fetcher: tor circuit renewed", zap.String("control", r.addr))

	if r.wait > 0 {
		t := time.NewTimer(r.wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

func controlCommand(tp *textproto.Conn, line string) error {
	id, err := tp.Cmd("%s", line)
	if err != nil {
		return err
	}
	tp.StartResponse(id)
	defer tp.EndResponse(id)
	_, _, err = tp.ReadResponse(250)
	return err
}

func quoteControlString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
