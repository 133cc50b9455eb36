package apt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultKey(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
		want Key
	}{
		{
			name: "channeled short frame",
			msg:  NewShortMessage(MotMoveHomed, 2, 0, AddrHostController, AddrGenericUSB),
			want: Key{ID: MotMoveHomed, Source: AddrGenericUSB, Channel: 2},
		},
		{
			name: "channeled long frame",
			msg:  velParamsReply(3),
			want: Key{ID: MotGetVelParams, Source: testDevice, Channel: 3},
		},
		{
			name: "unchanneled frame ignores param1",
			msg:  NewShortMessage(HwResponse, 7, 0, AddrHostController, AddrBay1),
			want: Key{ID: HwResponse, Source: AddrBay1},
		},
		{
			name: "unknown id has no channel",
			msg:  NewLongMessage(0x0999, AddrHostController, AddrBay0, []byte{0x05, 0x00}),
			want: Key{ID: 0x0999, Source: AddrBay0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, DefaultKey(tt.msg, defaultMessageTable))
		})
	}
}

func TestKeyDeriver_Override(t *testing.T) {
	// Distinguish POL_GET_PARAMS replies by the first payload byte as well.
	kd := &keyDeriver{
		table: defaultMessageTable,
		overrides: map[MessageID]KeyFunc{
			PolGetParams: func(msg *Message) Key {
				return NewKey(msg.ID, msg.Source, uint16(msg.Payload[0]))
			},
		},
	}

	pol := NewLongMessage(PolGetParams, AddrHostController, AddrGenericUSB, chanPayload(9, 12))
	require.Equal(t, NewKey(PolGetParams, AddrGenericUSB, 9), kd.keyOf(pol))

	homed := NewShortMessage(MotMoveHomed, 1, 0, AddrHostController, AddrGenericUSB)
	require.Equal(t, NewKey(MotMoveHomed, AddrGenericUSB, 1), kd.keyOf(homed))
}

func TestKey_String(t *testing.T) {
	require.Equal(t, "MGMSG_MOT_MOVE_HOMED/src=0x50/ch=1", NewKey(MotMoveHomed, AddrGenericUSB, 1).String())
}
