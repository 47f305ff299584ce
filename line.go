package serial

import "golang.org/x/sys/unix"

// Parity selects the parity bit mode of a serial line. Lower-case letters are
// accepted as well; any other value behaves as ParityNone.
type Parity byte

const (
	ParityNone  Parity = 'N'
	ParityEven  Parity = 'E'
	ParityOdd   Parity = 'O'
	ParitySpace Parity = 'S' // stick parity, always 0
	ParityMark  Parity = 'M' // stick parity, always 1
)

// LineConfig holds the line settings applied by Device.Configure.
//
// BaudRate and DataBits values outside the supported sets are ignored and the
// previously applied value stays in effect. StopBits other than 2 means one
// stop bit.
type LineConfig struct {
	BaudRate     int
	Parity       Parity
	DataBits     int
	StopBits     int
	HardwareFlow bool // RTS/CTS
}

// DefaultLineConfig returns 8N1 without flow control at the given speed.
func DefaultLineConfig(baud int) LineConfig {
	return LineConfig{
		BaudRate: baud,
		Parity:   ParityNone,
		DataBits: 8,
		StopBits: 1,
	}
}

// Read policy: return as soon as one byte is there, or after 500ms of silence.
const (
	readMinBytes    = 1
	readIdleTimeout = 5 // deciseconds
)

var baudRates = map[int]uint32{
	50:      unix.B50,
	75:      unix.B75,
	110:     unix.B110,
	134:     unix.B134,
	150:     unix.B150,
	200:     unix.B200,
	300:     unix.B300,
	600:     unix.B600,
	1200:    unix.B1200,
	1800:    unix.B1800,
	2400:    unix.B2400,
	4800:    unix.B4800,
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	576000:  unix.B576000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	1152000: unix.B1152000,
	1500000: unix.B1500000,
	2000000: unix.B2000000,
	2500000: unix.B2500000,
	3000000: unix.B3000000,
	3500000: unix.B3500000,
	4000000: unix.B4000000,
}

var dataBits = map[int]uint32{
	5: unix.CS5,
	6: unix.CS6,
	7: unix.CS7,
	8: unix.CS8,
}

// SupportedBaudRate reports whether baud has a termios speed constant.
func SupportedBaudRate(baud int) bool {
	_, ok := baudRates[baud]
	return ok
}

func baudToUnix(baud int) (uint32, bool) {
	speed, ok := baudRates[baud]
	return speed, ok
}

// apply writes the line settings into t. Fields not covered by cfg are reset
// to raw mode; an unsupported speed or character size leaves the value already
// in t untouched.
func (cfg LineConfig) apply(t *unix.Termios) {
	if speed, ok := baudToUnix(cfg.BaudRate); ok {
		t.Cflag &^= unix.CBAUD
		t.Cflag |= speed
		t.Ispeed = speed
		t.Ospeed = speed
	}

	if size, ok := dataBits[cfg.DataBits]; ok {
		t.Cflag = t.Cflag&^unix.CSIZE | size
	}

	// Raw mode
	t.Iflag = unix.IGNBRK
	t.Lflag = 0
	t.Oflag = 0
	t.Cflag |= unix.CLOCAL | unix.CREAD

	t.Cc[unix.VMIN] = readMinBytes
	t.Cc[unix.VTIME] = readIdleTimeout

	t.Iflag &^= unix.IXON | unix.IXOFF | unix.IXANY

	t.Cflag &^= unix.PARENB | unix.PARODD | unix.CMSPAR
	switch cfg.Parity {
	case ParityEven, 'e':
		t.Cflag |= unix.PARENB
	case ParityOdd, 'o':
		t.Cflag |= unix.PARENB | unix.PARODD
	case ParitySpace, 's':
		t.Cflag |= unix.PARENB | unix.CMSPAR
	case ParityMark, 'm':
		t.Cflag |= unix.PARENB | unix.PARODD | unix.CMSPAR
	}

	if cfg.StopBits == 2 {
		t.Cflag |= unix.CSTOPB
	} else {
		t.Cflag &^= unix.CSTOPB
	}

	if cfg.HardwareFlow {
		t.Cflag |= unix.CRTSCTS
	} else {
		t.Cflag &^= unix.CRTSCTS
	}
}
