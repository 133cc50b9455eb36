package apt

import "go.uber.org/atomic"

// ConnState is the lifecycle state of a Connection.
type ConnState uint32

const (
	StateClosed ConnState = iota
	StateOpening
	StateOpen
	StateClosing
)

func (s ConnState) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpening:
		return "Opening"
	case StateOpen:
		return "Open"
	case StateClosing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// atomicConnState guards the Closed -> Opening -> Open -> Closing -> Closed
// transitions. Each transition is a compare-and-swap, so exactly one caller
// wins a racing transition.
type atomicConnState struct {
	state atomic.Uint32
}

func (st *atomicConnState) Get() ConnState {
	return ConnState(st.state.Load())
}

func (st *atomicConnState) String() string {
	return st.Get().String()
}

func (st *atomicConnState) IsOpen() bool {
	return st.Get() == StateOpen
}

func (st *atomicConnState) IsClosed() bool {
	return st.Get() == StateClosed
}

func (st *atomicConnState) ToOpening() bool {
	return st.state.CompareAndSwap(uint32(StateClosed), uint32(StateOpening))
}

func (st *atomicConnState) ToOpen() bool {
	return st.state.CompareAndSwap(uint32(StateOpening), uint32(StateOpen))
}

// ToClosing moves an Open or Opening connection to Closing.
func (st *atomicConnState) ToClosing() bool {
	if st.state.CompareAndSwap(uint32(StateOpen), uint32(StateClosing)) {
		return true
	}

	return st.state.CompareAndSwap(uint32(StateOpening), uint32(StateClosing))
}

func (st *atomicConnState) ToClosed() bool {
	return st.state.CompareAndSwap(uint32(StateClosing), uint32(StateClosed))
}
