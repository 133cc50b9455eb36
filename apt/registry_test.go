package apt

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestPendingRegistry_AddRejectsSameKey(t *testing.T) {
	require := require.New(t)

	r := newPendingRegistry()
	key := velParamsKey(1)

	req, err := r.add(key, nil, time.Second)
	require.NoError(err)
	require.NotNil(req)
	require.True(r.has(key))

	_, err = r.add(key, nil, time.Second)
	require.ErrorIs(err, ErrRequestInFlight)

	_, err = r.add(velParamsKey(2), nil, time.Second)
	require.NoError(err)
	require.Equal(2, r.len())
}

func TestPendingRegistry_ResolveOnce(t *testing.T) {
	require := require.New(t)

	r := newPendingRegistry()
	key := velParamsKey(1)
	req, err := r.add(key, nil, time.Second)
	require.NoError(err)

	reply := velParamsReply(1)
	require.True(r.resolve(key, reply))
	require.False(r.resolve(key, reply), "an entry resolves only once")
	require.False(r.remove(req), "a resolved entry is owned by the resolver")

	res := <-req.result
	require.NoError(res.err)
	require.Same(reply, res.msg)
	require.Zero(r.len())
}

func TestPendingRegistry_RemoveOnlyOwnEntry(t *testing.T) {
	require := require.New(t)

	r := newPendingRegistry()
	key := velParamsKey(1)

	old, err := r.add(key, nil, time.Second)
	require.NoError(err)
	require.True(r.remove(old))

	// A new request reuses the key; the stale handle must not delete it.
	cur, err := r.add(key, nil, time.Second)
	require.NoError(err)
	require.False(r.remove(old))
	require.True(r.has(key))
	require.True(r.remove(cur))
	require.False(r.has(key))
}

func TestPendingRegistry_CancelAll(t *testing.T) {
	require := require.New(t)

	r := newPendingRegistry()
	reqs := make([]*pendingRequest, 0, 5)
	for ch := uint16(0); ch < 5; ch++ {
		req, err := r.add(velParamsKey(ch), nil, time.Second)
		require.NoError(err)
		reqs = append(reqs, req)
	}

	require.Equal(5, r.cancelAll(ErrConnClosed))
	require.Zero(r.len())

	for _, req := range reqs {
		res := <-req.result
		require.ErrorIs(res.err, ErrConnClosed)
		require.Nil(res.msg)
	}
}

// Exactly one of resolve and remove wins for every entry, however they
// interleave.
func TestPendingRegistry_ResolveRemoveRace(t *testing.T) {
	const rounds = 2000

	r := newPendingRegistry()
	var resolved, removed atomic.Int64

	for i := 0; i < rounds; i++ {
		key := velParamsKey(uint16(i % 4))
		req, err := r.add(key, nil, time.Second)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)

		go func() {
			defer wg.Done()
			if r.resolve(key, velParamsReply(uint16(i%4))) {
				resolved.Inc()
			}
		}()

		go func() {
			defer wg.Done()
			if r.remove(req) {
				removed.Inc()
			}
		}()

		wg.Wait()
		require.False(t, r.has(key))
	}

	require.Equal(t, int64(rounds), resolved.Load()+removed.Load())
}

// richResponse is a HW_RICHRESPONSE from the test device reporting on id.
func richResponse(id MessageID) *Message {
	payload := make([]byte, 68)
	payload[0] = byte(id)
	payload[1] = byte(id >> 8)

	return NewLongMessage(HwRichResponse, AddrHostController, testDevice, payload)
}

func TestPendingRegistry_ResolveFault(t *testing.T) {
	require := require.New(t)

	r := newPendingRegistry()
	req, err := r.add(velParamsKey(1), velParamsReq(1), time.Second)
	require.NoError(err)

	// faults from another address are not ours
	other := NewShortMessage(HwResponse, 0, 0, AddrHostController, AddrBay1)
	require.False(r.resolveFault(other))

	fault := NewShortMessage(HwResponse, 0, 0, AddrHostController, testDevice)
	require.True(r.resolveFault(fault))
	require.Zero(r.len())

	res := <-req.result
	require.NoError(res.err)
	require.Same(fault, res.msg)
}

func TestPendingRegistry_ResolveFaultAmbiguous(t *testing.T) {
	require := require.New(t)

	r := newPendingRegistry()
	_, err := r.add(velParamsKey(1), velParamsReq(1), time.Second)
	require.NoError(err)
	info, err := r.add(NewKey(HwGetInfo, testDevice, 0), NewShortMessage(HwReqInfo, 0, 0, testDevice, AddrHostController), time.Second)
	require.NoError(err)

	// a plain HW_RESPONSE cannot tell the two requests apart
	require.False(r.resolveFault(NewShortMessage(HwResponse, 0, 0, AddrHostController, testDevice)))
	require.Equal(2, r.len())

	// HW_RICHRESPONSE names the failing request
	fault := richResponse(HwReqInfo)
	require.True(r.resolveFault(fault))
	require.Equal(1, r.len())
	require.True(r.has(velParamsKey(1)))

	res := <-info.result
	require.Same(fault, res.msg)

	require.False(r.resolveFault(richResponse(MotMoveHome)), "no request for the named id")
}
