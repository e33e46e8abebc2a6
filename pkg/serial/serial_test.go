package serial

import (
	"bufio"
	"errors"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestSpeedFor(t *testing.T) {
	if speed, err := speedFor(115200); err != nil || speed == 0 {
		t.Errorf("speedFor(115200) = %v, %v", speed, err)
	}
	if runtime.GOOS == "linux" {
		if speed, _ := speedFor(250000); speed != 0x1003 {
			t.Errorf("250000 speed = %#x", speed)
		}
	}
	if _, err := speedFor(12345); err == nil {
		t.Error("speedFor(12345) succeeded")
	}
}

func TestOpenRequiresDevice(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Error("Open without device succeeded")
	}
	if _, err := OpenSocket("", time.Second); err == nil {
		t.Error("OpenSocket without path succeeded")
	}
}

func TestSocketRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctrl.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Skipf("unix sockets unavailable: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			if _, err := r.ReadString('\n'); err != nil {
				return
			}
			if _, err := conn.Write([]byte("ok\n")); err != nil {
				return
			}
		}
	}()

	p, err := OpenSocket(path, 2*time.Second)
	if err != nil {
		t.Fatalf("OpenSocket: %v", err)
	}
	defer p.Close()
	if !p.IsSocket() || p.Device() != path {
		t.Errorf("IsSocket = %v, Device = %q", p.IsSocket(), p.Device())
	}

	if _, err := p.Write([]byte("G4 P0\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	line, err := bufio.NewReader(p).ReadString('\n')
	if err != nil || line != "ok\n" {
		t.Errorf("read %q, %v", line, err)
	}

	p.SetReadTimeout(20 * time.Millisecond)
	buf := make([]byte, 8)
	if _, err := p.Read(buf); !errors.Is(err, ErrTimeout) {
		t.Errorf("idle Read error = %v, want ErrTimeout", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := p.Read(buf); !errors.Is(err, ErrClosed) {
		t.Errorf("Read after Close = %v, want ErrClosed", err)
	}
}

func TestResolveDevicePassthrough(t *testing.T) {
	got, err := ResolveDevice("/dev/ttyACM0")
	if err != nil || got != "/dev/ttyACM0" {
		t.Errorf("ResolveDevice = %q, %v", got, err)
	}
}

func TestOpenDispatchesToSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Skipf("unix sockets unavailable: %v", err)
	}
	defer ln.Close()
	go func() {
		if conn, err := ln.Accept(); err == nil {
			conn.Close()
		}
	}()

	p, err := Open(Config{Device: path, ConnectTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()
	if !p.IsSocket() {
		t.Error("socket path opened as a tty")
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	acm := filepath.Join(dir, "ttyACM0")
	byID := filepath.Join(dir, "by-id")
	if err := os.Mkdir(byID, 0o755); err != nil {
		t.Fatal(err)
	}
	patterns := []string{filepath.Join(byID, "*"), filepath.Join(dir, "ttyACM*"), filepath.Join(dir, "ttyUSB*")}

	if _, err := discover(patterns); !errors.Is(err, ErrNoDevice) {
		t.Errorf("empty: err = %v, want ErrNoDevice", err)
	}

	touch(t, acm)
	if err := os.Symlink(acm, filepath.Join(byID, "usb-Duet_3-if00")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	// the by-id link and its target are the same controller
	want, _ := filepath.EvalSymlinks(acm)
	got, err := discover(patterns)
	if err != nil || got != want {
		t.Errorf("discover = %q, %v; want %q", got, err, want)
	}

	touch(t, filepath.Join(dir, "ttyUSB0"))
	if _, err := discover(patterns); err == nil || !strings.Contains(err.Error(), "2 controllers") {
		t.Errorf("two devices: err = %v", err)
	}
}
