package imagelink

import (
	"sync"

	"github.com/blutspende/go-imagelink/protocol/utilities"
)

type Status int

const (
	StatusInit            Status = Status(utilities.Init)
	StatusConnecting      Status = 1
	StatusConnected       Status = 2
	StatusFailedToConnect Status = 3
	StatusDisconnected    Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusInit:
		return "Init"
	case StatusConnecting:
		return "Connecting"
	case StatusConnected:
		return "Connected"
	case StatusFailedToConnect:
		return "FailedToConnect"
	case StatusDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

var connectionRules = []utilities.Rule{
	{FromStates: []utilities.State{utilities.State(StatusInit)}, ToState: utilities.State(StatusConnecting)},
	{FromStates: []utilities.State{utilities.State(StatusConnecting)}, ToState: utilities.State(StatusConnected)},
	{FromStates: []utilities.State{utilities.State(StatusConnecting)}, ToState: utilities.State(StatusFailedToConnect)},
	{
		FromStates: []utilities.State{
			utilities.State(StatusInit),
			utilities.State(StatusConnecting),
			utilities.State(StatusConnected),
			utilities.State(StatusFailedToConnect),
			utilities.State(StatusDisconnected),
		},
		ToState: utilities.State(StatusDisconnected),
	},
}

// connectionState is the lifecycle of one connection. Disconnected is
// terminal, moving there again is a no-op.
type connectionState struct {
	mtx  sync.Mutex
	cond *sync.Cond
	fsm  utilities.FiniteStateMachine
}

func newConnectionState() *connectionState {
	state := &connectionState{
		fsm: utilities.CreateFSM(utilities.Init, connectionRules),
	}
	state.cond = sync.NewCond(&state.mtx)
	return state
}

// moveTo returns the state that was left.
func (c *connectionState) moveTo(to Status) (Status, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	from, err := c.fsm.Push(utilities.State(to))
	if err != nil {
		return Status(from), err
	}
	if Status(from) != to {
		c.cond.Broadcast()
	}
	return Status(from), nil
}

func (c *connectionState) Status() Status {
	return Status(c.fsm.Current())
}

func (c *connectionState) IsConnected() bool {
	return c.Status() == StatusConnected
}

// WaitWhileConnecting blocks as long as the connection is being set up and
// returns the state it ended up in.
func (c *connectionState) WaitWhileConnecting() Status {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	for Status(c.fsm.Current()) == StatusConnecting {
		c.cond.Wait()
	}
	return Status(c.fsm.Current())
}

// WaitFor blocks until the state is reached. Use for terminal states only.
func (c *connectionState) WaitFor(status Status) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	for Status(c.fsm.Current()) != status {
		c.cond.Wait()
	}
}
