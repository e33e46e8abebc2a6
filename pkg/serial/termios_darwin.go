//go:build darwin

package serial

import "golang.org/x/sys/unix"

const (
	reqGetTermios = unix.TIOCGETA
	reqSetTermios = unix.TIOCSETA
)

var candidatePatterns = []string{
	"/dev/cu.usbmodem*",
	"/dev/cu.usbserial*",
}

var extraSpeeds = map[int]uint32{}

func setSpeed(t *unix.Termios, speed uint32) {
	t.Ispeed = uint64(speed)
	t.Ospeed = uint64(speed)
}
