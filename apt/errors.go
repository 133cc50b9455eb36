package apt

import (
	"errors"
	"fmt"
)

// Sentinel errors of the APT protocol engine. Returned errors wrap one of
// these with context; match them with errors.Is.
var (
	// Codec errors.
	ErrEncoding     = errors.New("apt: invalid message fields")
	ErrFrame        = errors.New("apt: malformed frame")
	ErrNeedMoreData = errors.New("apt: incomplete frame")

	// Request errors.
	ErrTimeout         = errors.New("apt: reply timeout")
	ErrRequestInFlight = errors.New("apt: request with the same correlation key is in flight")
	ErrDevice          = errors.New("apt: device reported a fault")

	// Connection errors.
	ErrConnClosed      = errors.New("apt: connection closed")
	ErrPortUnavailable = errors.New("apt: serial port unavailable")
	ErrConfigNil       = errors.New("apt: connection config is nil")
)

// DeviceError is returned when the reply to a request, or an unsolicited
// status frame, is a device fault report (HW_RESPONSE or HW_RICHRESPONSE).
//
// The raw frame is kept in Reply; decoding its payload is up to the device
// layer.
type DeviceError struct {
	Reply *Message
}

func (e *DeviceError) Error() string {
	if e.Reply == nil {
		return ErrDevice.Error()
	}

	return fmt.Sprintf("%s: %s from 0x%02X", ErrDevice.Error(), e.Reply.ID, byte(e.Reply.Source))
}

// Is makes errors.Is(err, ErrDevice) report true for any *DeviceError.
func (e *DeviceError) Is(target error) bool {
	return target == ErrDevice
}
