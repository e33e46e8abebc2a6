//go:build linux

package serial

import "golang.org/x/sys/unix"

const (
	reqGetTermios = unix.TCGETS
	reqSetTermios = unix.TCSETS
)

// candidatePatterns are the device nodes USB motion controllers show up as.
var candidatePatterns = []string{
	"/dev/serial/by-id/*",
	"/dev/ttyACM*",
	"/dev/ttyUSB*",
}

// Rates above B230400 carry no named constant in every libc; the values
// are the kernel's.
var extraSpeeds = map[int]uint32{
	250000:  0x1003,
	460800:  0x1004,
	500000:  0x1005,
	921600:  0x1007,
	1000000: 0x1008,
}

func setSpeed(t *unix.Termios, speed uint32) {
	t.Ispeed = speed
	t.Ospeed = speed
	t.Cflag &^= unix.CBAUD
	t.Cflag |= speed
}
