package apt

import "fmt"

// MessageID is the 2-byte APT message code.
type MessageID uint16

// Message ids used by the supported motor, delay line and polarization
// controller families.
const (
	HwDisconnect       MessageID = 0x0002
	HwReqInfo          MessageID = 0x0005
	HwGetInfo          MessageID = 0x0006
	HwStartUpdateMsgs  MessageID = 0x0011
	HwStopUpdateMsgs   MessageID = 0x0012
	HwResponse         MessageID = 0x0080
	HwRichResponse     MessageID = 0x0081
	ModSetChanEnable   MessageID = 0x0210
	ModReqChanEnable   MessageID = 0x0211
	ModGetChanEnable   MessageID = 0x0212
	ModIdentify        MessageID = 0x0223
	MotSetVelParams    MessageID = 0x0413
	MotReqVelParams    MessageID = 0x0414
	MotGetVelParams    MessageID = 0x0415
	MotSetJogParams    MessageID = 0x0416
	MotReqJogParams    MessageID = 0x0417
	MotGetJogParams    MessageID = 0x0418
	MotSetHomeParams   MessageID = 0x0440
	MotReqHomeParams   MessageID = 0x0441
	MotGetHomeParams   MessageID = 0x0442
	MotMoveHome        MessageID = 0x0443
	MotMoveHomed       MessageID = 0x0444
	MotMoveRelative    MessageID = 0x0448
	MotMoveAbsolute    MessageID = 0x0453
	MotMoveCompleted   MessageID = 0x0464
	MotMoveStop        MessageID = 0x0465
	MotMoveStopped     MessageID = 0x0466
	MotMoveJog         MessageID = 0x046A
	MotReqStatusUpdate MessageID = 0x0480
	MotGetStatusUpdate MessageID = 0x0481
	MotReqUStatus      MessageID = 0x0490
	MotGetUStatus      MessageID = 0x0491
	MotAckUStatus      MessageID = 0x0492
	PolSetParams       MessageID = 0x0530
	PolReqParams       MessageID = 0x0531
	PolGetParams       MessageID = 0x0532
)

// FrameForm restricts which wire form a message id may use.
type FrameForm uint8

const (
	// FormAny allows both forms, e.g. MOT_MOVE_ABSOLUTE which is short when
	// moving to a stored position and long when it carries the target.
	FormAny FrameForm = iota
	// FormShort is the fixed 6-byte header-only form.
	FormShort
	// FormLong is the header plus payload form.
	FormLong
)

// MessageInfo describes what the protocol allows for one message id.
type MessageInfo struct {
	Name string
	Form FrameForm
	// PayloadSizes lists the valid long-form payload sizes. Empty means any
	// size up to the decoder maximum.
	PayloadSizes []int
	// Channeled reports whether the message carries a channel identifier
	// (param1 in short form, the first two payload bytes in long form).
	Channeled bool
}

func (info MessageInfo) validPayloadSize(n int) bool {
	if len(info.PayloadSizes) == 0 {
		return true
	}

	for _, size := range info.PayloadSizes {
		if size == n {
			return true
		}
	}

	return false
}

// MessageTable maps message ids to their protocol constraints.
type MessageTable map[MessageID]MessageInfo

var defaultMessageTable = MessageTable{
	HwDisconnect:       {Name: "MGMSG_HW_DISCONNECT", Form: FormShort},
	HwReqInfo:          {Name: "MGMSG_HW_REQ_INFO", Form: FormShort},
	HwGetInfo:          {Name: "MGMSG_HW_GET_INFO", Form: FormLong, PayloadSizes: []int{84}},
	HwStartUpdateMsgs:  {Name: "MGMSG_HW_START_UPDATEMSGS", Form: FormShort},
	HwStopUpdateMsgs:   {Name: "MGMSG_HW_STOP_UPDATEMSGS", Form: FormShort},
	HwResponse:         {Name: "MGMSG_HW_RESPONSE", Form: FormShort},
	HwRichResponse:     {Name: "MGMSG_HW_RICHRESPONSE", Form: FormLong, PayloadSizes: []int{68}},
	ModSetChanEnable:   {Name: "MGMSG_MOD_SET_CHANENABLESTATE", Form: FormShort, Channeled: true},
	ModReqChanEnable:   {Name: "MGMSG_MOD_REQ_CHANENABLESTATE", Form: FormShort, Channeled: true},
	ModGetChanEnable:   {Name: "MGMSG_MOD_GET_CHANENABLESTATE", Form: FormShort, Channeled: true},
	ModIdentify:        {Name: "MGMSG_MOD_IDENTIFY", Form: FormShort, Channeled: true},
	MotSetVelParams:    {Name: "MGMSG_MOT_SET_VELPARAMS", Form: FormLong, PayloadSizes: []int{14}, Channeled: true},
	MotReqVelParams:    {Name: "MGMSG_MOT_REQ_VELPARAMS", Form: FormShort, Channeled: true},
	MotGetVelParams:    {Name: "MGMSG_MOT_GET_VELPARAMS", Form: FormLong, PayloadSizes: []int{14}, Channeled: true},
	MotSetJogParams:    {Name: "MGMSG_MOT_SET_JOGPARAMS", Form: FormLong, PayloadSizes: []int{22}, Channeled: true},
	MotReqJogParams:    {Name: "MGMSG_MOT_REQ_JOGPARAMS", Form: FormShort, Channeled: true},
	MotGetJogParams:    {Name: "MGMSG_MOT_GET_JOGPARAMS", Form: FormLong, PayloadSizes: []int{22}, Channeled: true},
	MotSetHomeParams:   {Name: "MGMSG_MOT_SET_HOMEPARAMS", Form: FormLong, PayloadSizes: []int{14}, Channeled: true},
	MotReqHomeParams:   {Name: "MGMSG_MOT_REQ_HOMEPARAMS", Form: FormShort, Channeled: true},
	MotGetHomeParams:   {Name: "MGMSG_MOT_GET_HOMEPARAMS", Form: FormLong, PayloadSizes: []int{14}, Channeled: true},
	MotMoveHome:        {Name: "MGMSG_MOT_MOVE_HOME", Form: FormShort, Channeled: true},
	MotMoveHomed:       {Name: "MGMSG_MOT_MOVE_HOMED", Form: FormShort, Channeled: true},
	MotMoveRelative:    {Name: "MGMSG_MOT_MOVE_RELATIVE", Form: FormAny, PayloadSizes: []int{6}, Channeled: true},
	MotMoveAbsolute:    {Name: "MGMSG_MOT_MOVE_ABSOLUTE", Form: FormAny, PayloadSizes: []int{6}, Channeled: true},
	MotMoveCompleted:   {Name: "MGMSG_MOT_MOVE_COMPLETED", Form: FormLong, PayloadSizes: []int{14, 20}, Channeled: true},
	MotMoveStop:        {Name: "MGMSG_MOT_MOVE_STOP", Form: FormShort, Channeled: true},
	MotMoveStopped:     {Name: "MGMSG_MOT_MOVE_STOPPED", Form: FormLong, PayloadSizes: []int{14, 20}, Channeled: true},
	MotMoveJog:         {Name: "MGMSG_MOT_MOVE_JOG", Form: FormShort, Channeled: true},
	MotReqStatusUpdate: {Name: "MGMSG_MOT_REQ_STATUSUPDATE", Form: FormShort, Channeled: true},
	MotGetStatusUpdate: {Name: "MGMSG_MOT_GET_STATUSUPDATE", Form: FormLong, PayloadSizes: []int{14}, Channeled: true},
	MotReqUStatus:      {Name: "MGMSG_MOT_REQ_USTATUSUPDATE", Form: FormShort, Channeled: true},
	MotGetUStatus:      {Name: "MGMSG_MOT_GET_USTATUSUPDATE", Form: FormLong, PayloadSizes: []int{14}, Channeled: true},
	MotAckUStatus:      {Name: "MGMSG_MOT_ACK_USTATUSUPDATE", Form: FormShort},
	PolSetParams:       {Name: "MGMSG_POL_SET_PARAMS", Form: FormLong, PayloadSizes: []int{12}},
	PolReqParams:       {Name: "MGMSG_POL_REQ_PARAMS", Form: FormShort},
	PolGetParams:       {Name: "MGMSG_POL_GET_PARAMS", Form: FormLong, PayloadSizes: []int{12}},
}

// DefaultMessageTable returns a copy of the built-in message table. The copy
// may be extended and passed to WithMessageTable.
func DefaultMessageTable() MessageTable {
	table := make(MessageTable, len(defaultMessageTable))
	for id, info := range defaultMessageTable {
		table[id] = info
	}

	return table
}

// String returns the protocol name of the id, or its hex code when unknown.
func (id MessageID) String() string {
	if info, ok := defaultMessageTable[id]; ok {
		return info.Name
	}

	return fmt.Sprintf("0x%04X", uint16(id))
}
