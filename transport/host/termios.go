package host

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/allbin/go-serialport/transport"
)

// pollTimeout is how long, in milliseconds, the reader waits for input
// before checking whether it should stop.
const pollTimeout = 100

// errHangup reports a descriptor the other side has hung up.
var errHangup = errors.New("hangup")

// baudRate converts an integer bit rate to the termios speed constant.
func baudRate(rate int) (uint32, error) {
	switch rate {
	case 50:
		return unix.B50, nil
	case 75:
		return unix.B75, nil
	case 110:
		return unix.B110, nil
	case 134:
		return unix.B134, nil
	case 150:
		return unix.B150, nil
	case 200:
		return unix.B200, nil
	case 300:
		return unix.B300, nil
	case 600:
		return unix.B600, nil
	case 1200:
		return unix.B1200, nil
	case 1800:
		return unix.B1800, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
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
	case 460800:
		return unix.B460800, nil
	case 500000:
		return unix.B500000, nil
	case 576000:
		return unix.B576000, nil
	case 921600:
		return unix.B921600, nil
	case 1000000:
		return unix.B1000000, nil
	case 1152000:
		return unix.B1152000, nil
	case 1500000:
		return unix.B1500000, nil
	case 2000000:
		return unix.B2000000, nil
	case 2500000:
		return unix.B2500000, nil
	case 3000000:
		return unix.B3000000, nil
	case 3500000:
		return unix.B3500000, nil
	case 4000000:
		return unix.B4000000, nil
	default:
		return 0, transport.ErrUnsupportedBitrate
	}
}

func setSpeed(termios *unix.Termios, rate int) error {
	speed, err := baudRate(rate)
	if err != nil {
		return err
	}
	termios.Cflag = (termios.Cflag &^ unix.CBAUD) | speed
	termios.Ispeed = speed
	termios.Ospeed = speed
	return nil
}

// cflags returns the character-size, stop-bit, parity and flow-control bits for opts.
func cflags(opts transport.ConnectOptions) (uint32, error) {
	flags := uint32(unix.CREAD | unix.CLOCAL)

	switch opts.DataBits {
	case transport.DataBitsSeven:
		flags |= unix.CS7
	case transport.DataBitsEight, "":
		flags |= unix.CS8
	default:
		return 0, errors.New("unsupported data bits " + string(opts.DataBits))
	}

	switch opts.StopBits {
	case transport.StopBitsTwo:
		flags |= unix.CSTOPB
	case transport.StopBitsOne, "":
	default:
		return 0, errors.New("unsupported stop bits " + string(opts.StopBits))
	}

	switch opts.ParityBit {
	case transport.ParityNo, "":
	case transport.ParityEven:
		flags |= unix.PARENB
	case transport.ParityOdd:
		flags |= unix.PARENB | unix.PARODD
	case transport.ParityMark:
		flags |= unix.PARENB | unix.CMSPAR | unix.PARODD
	case transport.ParitySpace:
		flags |= unix.PARENB | unix.CMSPAR
	default:
		return 0, errors.New("unsupported parity " + string(opts.ParityBit))
	}

	if opts.CTSFlowControl {
		flags |= unix.CRTSCTS
	}
	return flags, nil
}

// configure puts fd in raw mode with the line settings from opts.
func configure(fd int, opts transport.ConnectOptions) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}

	flags, err := cflags(opts)
	if err != nil {
		return err
	}
	termios.Cflag = flags
	termios.Iflag = 0
	if flags&unix.PARENB != 0 {
		termios.Iflag |= unix.INPCK
	}
	termios.Oflag = 0
	termios.Lflag = 0
	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = 0

	if err := setSpeed(termios, opts.Bitrate); err != nil {
		return err
	}
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return err
	}

	// Signal readiness to the peer; not every driver supports manual RTS.
	if opts.CTSFlowControl {
		_ = setModemLine(fd, unix.TIOCM_RTS, true)
	}
	return nil
}

// updateSpeed changes only the bit rate of a configured fd.
func updateSpeed(fd int, rate int) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	if err := setSpeed(termios, rate); err != nil {
		return err
	}
	return unix.IoctlSetTermios(fd, unix.TCSETS, termios)
}

func setModemLine(fd int, line int, state bool) error {
	if state {
		return unix.IoctlSetInt(fd, unix.TIOCMBIS, line)
	}
	return unix.IoctlSetInt(fd, unix.TIOCMBIC, line)
}

func modemStatus(fd int) (transport.DeviceControlSignals, error) {
	status, err := unix.IoctlGetInt(fd, unix.TIOCMGET)
	if err != nil {
		return transport.DeviceControlSignals{}, err
	}
	return transport.DeviceControlSignals{
		DCD: status&unix.TIOCM_CAR != 0,
		CTS: status&unix.TIOCM_CTS != 0,
		RI:  status&unix.TIOCM_RI != 0,
		DSR: status&unix.TIOCM_DSR != 0,
	}, nil
}

// readCondition maps a failed read to the receive-error code listeners see.
func readCondition(err error) transport.ReceiveError {
	switch {
	case errors.Is(err, errHangup), errors.Is(err, unix.EIO), errors.Is(err, unix.ENXIO), errors.Is(err, unix.ENODEV):
		return transport.ReceiveDeviceLost
	case errors.Is(err, unix.EBADF):
		return transport.ReceiveDisconnected
	default:
		return transport.ReceiveSystemError
	}
}

// sendCondition maps a failed write to the SendInfo error code.
func sendCondition(err error) transport.SendError {
	switch {
	case errors.Is(err, unix.EIO), errors.Is(err, unix.ENXIO), errors.Is(err, unix.ENODEV), errors.Is(err, unix.EBADF):
		return transport.SendDisconnected
	case errors.Is(err, unix.EAGAIN):
		return transport.SendPending
	default:
		return transport.SendSystemError
	}
}
