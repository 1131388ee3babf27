package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Thread dumps
// ---------------------------------------------------------------------------

var dumpEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	dumpEncMode = em
}

// ThreadDump is a point-in-time snapshot of every live thread.
type ThreadDump struct {
	Threads []ThreadInfo `cbor:"1,keyasint"`
}

// ThreadInfo describes one thread in a dump. Frames are innermost first.
type ThreadInfo struct {
	ID      string      `cbor:"1,keyasint"`
	Name    string      `cbor:"2,keyasint"`
	Status  string      `cbor:"3,keyasint"`
	Daemon  bool        `cbor:"4,keyasint,omitempty"`
	WaitFor string      `cbor:"5,keyasint,omitempty"`
	Frames  []FrameInfo `cbor:"6,keyasint"`
}

// FrameInfo describes one frame. Internal frames carry only their name.
type FrameInfo struct {
	Class      string `cbor:"1,keyasint,omitempty"`
	Method     string `cbor:"2,keyasint"`
	PC         int    `cbor:"3,keyasint"`
	StackDepth int    `cbor:"4,keyasint"`
	Internal   bool   `cbor:"5,keyasint,omitempty"`
}

// Snapshot captures the current state of the VM's threads. It must run on
// the scheduler goroutine, or while Run is not active.
func (vm *VM) Snapshot() *ThreadDump {
	d := &ThreadDump{}
	for _, t := range vm.sched.Threads() {
		info := ThreadInfo{
			ID:      t.ID.String(),
			Name:    t.Name,
			Status:  t.status.String(),
			Daemon:  t.Daemon,
			WaitFor: t.waitFor,
		}
		for i := len(t.frames) - 1; i >= 0; i-- {
			switch f := t.frames[i].(type) {
			case *JavaFrame:
				info.Frames = append(info.Frames, FrameInfo{
					Class:      JavaName(f.Class.Name),
					Method:     f.Method.NameAndDescriptor(),
					PC:         f.PC,
					StackDepth: len(f.Stack),
				})
			case *InternalFrame:
				info.Frames = append(info.Frames, FrameInfo{Method: f.Name, Internal: true})
			}
		}
		d.Threads = append(d.Threads, info)
	}
	return d
}

// DumpThreads encodes a snapshot of the VM's threads as canonical CBOR.
func (vm *VM) DumpThreads() ([]byte, error) {
	return dumpEncMode.Marshal(vm.Snapshot())
}

// DecodeThreadDump decodes the output of DumpThreads.
func DecodeThreadDump(data []byte) (*ThreadDump, error) {
	var d ThreadDump
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("vm: unmarshal thread dump: %w", err)
	}
	return &d, nil
}

// Find returns the thread named name, or nil.
func (d *ThreadDump) Find(name string) *ThreadInfo {
	for i := range d.Threads {
		if d.Threads[i].Name == name {
			return &d.Threads[i]
		}
	}
	return nil
}
