package device

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/arloliu/go-apt/apt"
)

const hwInfoSize = 84

// HwInfo is the decoded payload of HW_GET_INFO.
type HwInfo struct {
	SerialNumber    uint32
	ModelNumber     string
	HardwareType    uint16
	FirmwareVersion FirmwareVersion
	HardwareVersion uint16
	ModState        uint16
	NumChannels     uint16
}

// FirmwareVersion is the major.interim.minor firmware version.
type FirmwareVersion struct {
	Major   uint8
	Interim uint8
	Minor   uint8
}

func (v FirmwareVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Interim, v.Minor)
}

func decodeHwInfo(msg *apt.Message) (*HwInfo, error) {
	if msg.ID != apt.HwGetInfo || len(msg.Payload) != hwInfoSize {
		return nil, fmt.Errorf("%w: %s with %d payload bytes", ErrUnexpectedReply, msg.ID, len(msg.Payload))
	}

	p := msg.Payload
	le := binary.LittleEndian

	// Firmware bytes are minor, interim, major, unused.
	return &HwInfo{
		SerialNumber:    le.Uint32(p[0:4]),
		ModelNumber:     string(bytes.TrimRight(p[4:12], "\x00")),
		HardwareType:    le.Uint16(p[12:14]),
		FirmwareVersion: FirmwareVersion{Minor: p[14], Interim: p[15], Major: p[16]},
		HardwareVersion: le.Uint16(p[78:80]),
		ModState:        le.Uint16(p[80:82]),
		NumChannels:     le.Uint16(p[82:84]),
	}, nil
}
