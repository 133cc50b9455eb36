// Package device drives Thorlabs APT controllers on top of an apt.Connection.
//
// Devices never own the serial port. A device holds a Conn, usually an
// *apt.Connection, and builds every operation from three primitives:
// SendExpectReply for commands with a reply, SendNoReply for commands
// without one, and status subscriptions for unsolicited updates.
//
// Motor covers single channel stepper and brushless controllers such as the
// K10CR1 rotation mount and the KBD101 delay line driver.
// PolarizationController covers the three paddle MPC320.
//
// All positions, velocities and accelerations are raw device units. Unit
// conversion belongs to the caller.
//
// A move can end with MOVE_COMPLETED, MOVE_HOMED or MOVE_STOPPED. Connections
// that drive motors must therefore be opened with ConnOptions, which maps
// the three replies onto one per-channel motion key.
package device
