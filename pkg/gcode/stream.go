package gcode

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"leaflet-weaver/pkg/log"
	"leaflet-weaver/pkg/motion"
)

// StreamSink sends G-code one line at a time over a host connection and
// waits for each line to be acknowledged with "ok" before sending the next.
type StreamSink struct {
	mu   sync.Mutex
	port io.ReadWriter
	r    *bufio.Reader
	enc  *Encoder
	log  *log.Logger
	sent int
}

// NewStreamSink creates a sink on port. A serial.Port or a TCP socket both
// fit.
func NewStreamSink(port io.ReadWriter, opts Options, logger *log.Logger) *StreamSink {
	if logger == nil {
		logger = log.GetLogger("gcode")
	}
	return &StreamSink{
		port: port,
		r:    bufio.NewReader(port),
		enc:  NewEncoder(opts),
		log:  logger,
	}
}

// Emit encodes p and sends each resulting line.
func (s *StreamSink) Emit(p motion.Primitive) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines, err := s.enc.Encode(p)
	if err != nil {
		return err
	}
	for _, l := range lines {
		if err := s.sendLocked(l); err != nil {
			return err
		}
	}
	return nil
}

// Send writes one raw line and waits for its acknowledgement.
func (s *StreamSink) Send(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendLocked(line)
}

// Sent returns the number of acknowledged lines.
func (s *StreamSink) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

func (s *StreamSink) sendLocked(line string) error {
	if _, err := io.WriteString(s.port, line+"\n"); err != nil {
		return fmt.Errorf("gcode: write %q: %w", line, err)
	}
	for {
		resp, err := s.r.ReadString('\n')
		resp = strings.TrimSpace(resp)
		if resp != "" {
			switch {
			case resp == "ok" || strings.HasPrefix(resp, "ok "):
				s.sent++
				return nil
			case strings.HasPrefix(resp, "!!"), strings.HasPrefix(resp, "error"):
				return fmt.Errorf("gcode: %q rejected: %s", line, resp)
			default:
				s.log.WithField("line", line).Debug(resp)
			}
		}
		if err != nil {
			return fmt.Errorf("gcode: waiting for ack of %q: %w", line, err)
		}
	}
}
