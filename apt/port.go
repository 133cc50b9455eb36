package apt

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Port is the byte stream a Connection owns. *serial.Port values returned by
// go.bug.st/serial satisfy it; tests substitute an in-memory fake.
//
// Read must return (0, nil) when the read timeout elapses without data, and
// a non-nil error once the port is closed or the device is gone.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	ResetOutputBuffer() error
	SetRTS(rts bool) error
}

// PortOpener opens the port at path with the line settings in mode.
type PortOpener func(path string, mode *serial.Mode) (Port, error)

// PortResolver maps a device serial number to an OS port path.
type PortResolver func(serialNumber string) (string, error)

// OpenSerialPort opens a real serial port with go.bug.st/serial.
func OpenSerialPort(path string, mode *serial.Mode) (Port, error) {
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return p, nil
}

// ResolveSerialNumber looks up the USB serial port whose serial number is
// serialNumber.
func ResolveSerialNumber(serialNumber string) (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("%w: enumerate ports: %w", ErrPortUnavailable, err)
	}

	for _, p := range ports {
		if p.IsUSB && strings.EqualFold(p.SerialNumber, serialNumber) {
			return p.Name, nil
		}
	}

	return "", fmt.Errorf("%w: no device with serial number %q", ErrPortUnavailable, serialNumber)
}

// isPortGone reports whether err means the port was closed or the device
// disappeared, as opposed to a transient read failure.
func isPortGone(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}

	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() { //nolint:exhaustive
		case serial.PortClosed, serial.PortNotFound, serial.InvalidSerialPort:
			return true
		}
	}

	return false
}

// claimedPorts holds the OS paths of every port currently owned by an open
// Connection in this process.
var claimedPorts = xsync.NewMapOf[string, struct{}]()

func claimPort(path string) bool {
	_, loaded := claimedPorts.LoadOrStore(path, struct{}{})
	return !loaded
}

func releasePort(path string) {
	claimedPorts.Delete(path)
}

// DeviceFamily holds the fixed line settings shared by a family of devices.
type DeviceFamily struct {
	Name     string
	BaudRate int
	DataBits int
	Parity   serial.Parity
	StopBits serial.StopBits
	// RTSCTS asserts RTS after open; the devices use hardware flow control.
	RTSCTS bool
}

// FamilyThorlabsAPT covers the Thorlabs K-Cube and T-Cube controllers
// (K10CR1, KBD101, MPC320 and friends): 115200 baud, 8N1, RTS/CTS.
var FamilyThorlabsAPT = DeviceFamily{
	Name:     "thorlabs-apt",
	BaudRate: 115200,
	DataBits: 8,
	Parity:   serial.NoParity,
	StopBits: serial.OneStopBit,
	RTSCTS:   true,
}

// Mode returns the serial mode of the family.
func (f DeviceFamily) Mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: f.BaudRate,
		DataBits: f.DataBits,
		Parity:   f.Parity,
		StopBits: f.StopBits,
	}
}

func (f DeviceFamily) validate() error {
	if f.BaudRate <= 0 {
		return fmt.Errorf("apt: device family %q: invalid baud rate %d", f.Name, f.BaudRate)
	}
	if f.DataBits < 5 || f.DataBits > 8 {
		return fmt.Errorf("apt: device family %q: invalid data bits %d", f.Name, f.DataBits)
	}

	return nil
}

// deviceFamilies is the registry consulted by LookupDeviceFamily.
var deviceFamilies = map[string]DeviceFamily{
	FamilyThorlabsAPT.Name: FamilyThorlabsAPT,
}

// LookupDeviceFamily returns the family registered under name.
func LookupDeviceFamily(name string) (DeviceFamily, bool) {
	f, ok := deviceFamilies[strings.ToLower(name)]
	return f, ok
}
