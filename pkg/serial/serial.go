// Package serial opens the line to the dispensing controller: a termios
// serial device, a Unix socket bridged to one, or whichever USB controller
// is plugged in when the device is "auto".
package serial

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// AutoDevice asks Open to discover the controller.
const AutoDevice = "auto"

var (
	ErrTimeout = errors.New("serial: operation timed out")
	ErrClosed  = errors.New("serial: port closed")
	// ErrNoDevice is returned by Discover when no controller is attached.
	ErrNoDevice = errors.New("serial: no controller found")
)

// Config describes the controller line.
type Config struct {
	// Device is a tty path, a Unix socket path or AutoDevice.
	Device string

	BaudRate int

	// ReadTimeout bounds one Read. A long dance segment at ground feed can
	// take a while to acknowledge.
	ReadTimeout time.Duration

	// ConnectTimeout bounds waiting for a socket bridge to come up.
	ConnectTimeout time.Duration

	// AssertLines raises DTR and RTS after opening a tty. Boards that
	// reset on DTR need this to leave the bootloader.
	AssertLines bool
}

// DefaultConfig returns the settings for a stock USB controller.
func DefaultConfig() Config {
	return Config{
		BaudRate:       115200,
		ReadTimeout:    30 * time.Second,
		ConnectTimeout: 30 * time.Second,
		AssertLines:    true,
	}
}

// line is the transport under a Port.
type line interface {
	read(buf []byte, timeout time.Duration) (int, error)
	write(buf []byte) (int, error)
	close() error
}

// Port is an open controller line. Reads time out after the configured
// read timeout with ErrTimeout.
type Port struct {
	mu      sync.Mutex
	line    line
	device  string
	timeout time.Duration
	socket  bool
	closed  bool
}

// Open opens cfg.Device, dispatching on what the path is.
func Open(cfg Config) (*Port, error) {
	def := DefaultConfig()
	if cfg.BaudRate == 0 {
		cfg.BaudRate = def.BaudRate
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}

	device, err := ResolveDevice(cfg.Device)
	if err != nil {
		return nil, err
	}
	if fi, err := os.Stat(device); err == nil && fi.Mode()&os.ModeSocket != 0 {
		conn, err := dialSocket(device, cfg.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		return &Port{line: &socketLine{conn}, device: device, timeout: cfg.ReadTimeout, socket: true}, nil
	}
	tl, err := openTTY(device, cfg.BaudRate, cfg.AssertLines)
	if err != nil {
		return nil, err
	}
	return &Port{line: tl, device: device, timeout: cfg.ReadTimeout}, nil
}

// OpenSocket connects to a Unix socket, such as a socat bridge in front of
// the controller or a bench simulator, retrying until timeout while the
// socket does not exist yet.
func OpenSocket(path string, timeout time.Duration) (*Port, error) {
	conn, err := dialSocket(path, timeout)
	if err != nil {
		return nil, err
	}
	return &Port{line: &socketLine{conn}, device: path, timeout: DefaultConfig().ReadTimeout, socket: true}, nil
}

// ResolveDevice expands AutoDevice and follows /dev/serial symlinks.
func ResolveDevice(device string) (string, error) {
	switch {
	case device == "":
		return "", errors.New("serial: device path required")
	case device == AutoDevice:
		return Discover()
	case strings.HasPrefix(device, "/dev/serial/"):
		resolved, err := filepath.EvalSymlinks(device)
		if err != nil {
			return "", fmt.Errorf("serial: resolve %s: %w", device, err)
		}
		return resolved, nil
	}
	return device, nil
}

// Candidates lists the attached devices that look like a controller, with
// symlinks resolved and duplicates removed.
func Candidates() []string {
	return candidates(candidatePatterns)
}

func candidates(patterns []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, pattern := range patterns {
		matches, _ := filepath.Glob(pattern)
		for _, m := range matches {
			if resolved, err := filepath.EvalSymlinks(m); err == nil {
				m = resolved
			}
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Discover returns the only attached controller. It refuses to guess
// between several.
func Discover() (string, error) {
	return discover(candidatePatterns)
}

func discover(patterns []string) (string, error) {
	found := candidates(patterns)
	switch len(found) {
	case 0:
		return "", ErrNoDevice
	case 1:
		return found[0], nil
	}
	return "", fmt.Errorf("serial: %d controllers attached (%s), name one", len(found), strings.Join(found, ", "))
}

// Device returns the opened path.
func (p *Port) Device() string { return p.device }

// IsSocket reports whether the port is a socket bridge.
func (p *Port) IsSocket() bool { return p.socket }

// SetReadTimeout changes the per-Read timeout.
func (p *Port) SetReadTimeout(d time.Duration) {
	p.mu.Lock()
	p.timeout = d
	p.mu.Unlock()
}

func (p *Port) current() (line, time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, 0, ErrClosed
	}
	return p.line, p.timeout, nil
}

// Read reads what the controller has sent, waiting up to the read timeout.
func (p *Port) Read(buf []byte) (int, error) {
	l, timeout, err := p.current()
	if err != nil {
		return 0, err
	}
	return l.read(buf, timeout)
}

// Write sends buf to the controller.
func (p *Port) Write(buf []byte) (int, error) {
	l, _, err := p.current()
	if err != nil {
		return 0, err
	}
	return l.write(buf)
}

// Close releases the line. Closing twice is a no-op.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.line.close()
}

type socketLine struct {
	conn net.Conn
}

func dialSocket(path string, timeout time.Duration) (net.Conn, error) {
	if path == "" {
		return nil, errors.New("serial: socket path required")
	}
	if timeout <= 0 {
		timeout = DefaultConfig().ConnectTimeout
	}
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("unix", path, time.Until(deadline))
		if err == nil {
			return conn, nil
		}
		retry := errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ECONNREFUSED)
		if !retry {
			return nil, fmt.Errorf("serial: connect to %s: %w", path, err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("serial: connect timeout to %s: %w", path, err)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func (s *socketLine) read(buf []byte, timeout time.Duration) (int, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	n, err := s.conn.Read(buf)
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return n, ErrTimeout
	}
	return n, err
}

func (s *socketLine) write(buf []byte) (int, error) { return s.conn.Write(buf) }

func (s *socketLine) close() error { return s.conn.Close() }

type ttyLine struct {
	fd    int
	saved *unix.Termios
}

func openTTY(device string, baud int, assertLines bool) (*ttyLine, error) {
	speed, err := speedFor(baud)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", device, err)
	}
	ok := false
	defer func() {
		if !ok {
			unix.Close(fd)
		}
	}()

	saved, err := unix.IoctlGetTermios(fd, reqGetTermios)
	if err != nil {
		return nil, fmt.Errorf("serial: get termios: %w", err)
	}
	raw := *saved
	makeRaw(&raw)
	setSpeed(&raw, speed)
	if err := unix.IoctlSetTermios(fd, reqSetTermios, &raw); err != nil {
		return nil, fmt.Errorf("serial: set termios: %w", err)
	}
	if err := unix.SetNonblock(fd, false); err != nil {
		return nil, fmt.Errorf("serial: set blocking: %w", err)
	}
	if assertLines {
		// adapters without modem control reject this; the line still works
		_ = unix.IoctlSetPointerInt(fd, unix.TIOCMBIS, unix.TIOCM_DTR|unix.TIOCM_RTS)
	}
	ok = true
	return &ttyLine{fd: fd, saved: saved}, nil
}

// makeRaw configures 8N1 with no line discipline, the way G-code firmware
// expects its host.
func makeRaw(t *unix.Termios) {
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 1
}

// speedFor maps a baud rate onto the termios speed value.
func speedFor(baud int) (uint32, error) {
	switch baud {
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	}
	if s, ok := extraSpeeds[baud]; ok {
		return s, nil
	}
	return 0, fmt.Errorf("serial: unsupported baud rate %d", baud)
}

func (t *ttyLine) read(buf []byte, timeout time.Duration) (int, error) {
	pfd := []unix.PollFd{{Fd: int32(t.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, int(timeout.Milliseconds()))
	switch {
	case errors.Is(err, unix.EINTR):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("serial: poll: %w", err)
	case n == 0:
		return 0, ErrTimeout
	case pfd[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0:
		return 0, io.EOF
	}
	n, err = unix.Read(t.fd, buf)
	if err != nil {
		return 0, fmt.Errorf("serial: read: %w", err)
	}
	return n, nil
}

func (t *ttyLine) write(buf []byte) (int, error) {
	n, err := unix.Write(t.fd, buf)
	if err != nil {
		return n, fmt.Errorf("serial: write: %w", err)
	}
	return n, nil
}

func (t *ttyLine) close() error {
	_ = unix.IoctlSetTermios(t.fd, reqSetTermios, t.saved)
	return unix.Close(t.fd)
}
