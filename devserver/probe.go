package devserver

import (
	"context"
	"net"
	"net/url"
	"time"
)

const probeTimeout = 2 * time.Second

type dialFunc func(ctx context.Context, address string) error

func defaultDial(ctx context.Context, address string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return err
	}
	return conn.Close()
}

func hostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// probeTargets checks every proxy target accepts connections and logs changes.
// It fits scheduler.Task.
func (s *Server) probeTargets(ctx context.Context) {
	for prefix, target := range s.router.Targets() {
		dialCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := s.dial(dialCtx, hostPort(target))
		cancel()

		up := err == nil
		if up {
			s.targetUp.WithLabelValues(prefix).Set(1)
		} else {
			s.targetUp.WithLabelValues(prefix).Set(0)
		}

		s.reachMu.Lock()
		was, seen := s.reachable[prefix]
		s.reachable[prefix] = up
		s.reachMu.Unlock()

		switch {
		case up && (!seen || !was):
			s.logger.Info("proxy target reachable", "prefix", prefix, "target", target.String())
		case !up && (!seen || was):
			s.logger.Warn("proxy target unreachable; requests will answer 502",
				"prefix", prefix,
				"target", target.String(),
				"error", err)
		}
	}
}

// Reachable reports the last probe result for a prefix
func (s *Server) Reachable(prefix string) (up, probed bool) {
	s.reachMu.Lock()
	defer s.reachMu.Unlock()
	up, probed = s.reachable[prefix]
	return up, probed
}
