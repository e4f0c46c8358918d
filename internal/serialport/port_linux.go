//go:build linux

// Package serialport opens the physical (or loopback) byte stream a
// prlsc.Bus is driven over.
package serialport

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Port is a raw-mode POSIX serial device opened via termios.
type Port struct {
	f *os.File
}

// baudToSpeed maps a subset of common baud rates to their termios CBAUD
// constant; callers outside this set should fall back to 115200.
var baudToSpeed = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
}

// Open opens path in raw mode at baudRate and disables all line
// discipline processing: PRLSC frames its own byte stream and must see
// every byte untouched.
func Open(path string, baudRate int) (*Port, error) {
	f, err := os.OpenFile(path, os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("opening serial device %s: %w", path, err)
	}

	fd := int(f.Fd())
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("getting termios for %s: %w", path, err)
	}

	speed, ok := baudToSpeed[baudRate]
	if !ok {
		speed = unix.B115200
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	t.Cflag &^= unix.CBAUD
	t.Cflag |= speed
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		f.Close()
		return nil, fmt.Errorf("setting termios for %s: %w", path, err)
	}

	return &Port{f: f}, nil
}

func (p *Port) Read(b []byte) (int, error)  { return p.f.Read(b) }
func (p *Port) Write(b []byte) (int, error) { return p.f.Write(b) }
func (p *Port) Close() error                { return p.f.Close() }
