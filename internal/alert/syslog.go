package alert

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/taskmasterd/taskmasterd/internal/config"
)

// SyslogSink forwards each line over UDP, prefixed with the facility name
// in angle brackets and the tag (spec.md §4.7); the prefix is not a
// numeric RFC3164 priority value. Implemented directly over net.Dial("udp",
// ...) rather than log/syslog because that package is Unix-socket/TCP
// oriented and does not expose a bare UDP host:port target the way
// spec.md's transport does.
type SyslogSink struct {
	cfg  config.SyslogConfig
	conn net.Conn
}

func NewSyslogSink(cfg config.SyslogConfig) (*SyslogSink, error) {
	conn, err := net.DialTimeout("udp", cfg.Address, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("taskmasterd: dialing syslog %s: %w", cfg.Address, err)
	}
	return &SyslogSink{cfg: cfg, conn: conn}, nil
}

func (s *SyslogSink) Send(_ context.Context, line string, _ Event) error {
	tag := s.cfg.Tag
	if tag == "" {
		tag = "taskmasterd"
	}
	facility := s.cfg.Facility
	if facility == "" {
		facility = "daemon"
	}
	msg := fmt.Sprintf("<%s> %s: %s", facility, tag, line)
	_, err := s.conn.Write([]byte(msg))
	return err
}

func (s *SyslogSink) Close() error { return s.conn.Close() }
