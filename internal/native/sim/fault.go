package sim

import "sync"

// Op names a native call for fault injection.
type Op string

const (
	OpCreate           Op = "create"
	OpConfRead         Op = "conf_read_file"
	OpConnect          Op = "connect"
	OpPoolList         Op = "pool_list"
	OpIoCtxCreate      Op = "ioctx_create"
	OpCreateCompletion Op = "create_completion"
	OpRead             Op = "read"
	OpWrite            Op = "write"
	OpWriteFull        Op = "write_full"
	OpAppend           Op = "append"
	OpRemove           Op = "remove"
	OpStat             Op = "stat"
	OpGetXattr         Op = "getxattr"
	OpGetXattrs        Op = "getxattrs"
	OpSetXattr         Op = "setxattr"
	OpRmXattr          Op = "rmxattr"
	OpXattrNext        Op = "xattr_next"
	OpListOpen         Op = "list_open"
	OpListNext         Op = "list_next"
	OpSnapList         Op = "snap_list"
)

// Phase selects where an injected fault applies.
type Phase int

const (
	// PhaseInitiate fails the call synchronously.
	PhaseInitiate Phase = iota
	// PhaseComplete lets the call submit and completes it with the status.
	PhaseComplete
)

// Fault describes an injected failure.
type Fault struct {
	Op     Op
	Phase  Phase
	Status int
	// Count is the number of calls to fail. Zero means one.
	Count int
	// Skip is the number of matching calls to let through first.
	Skip int
}

type faultTable struct {
	mu     sync.Mutex
	faults []*Fault
}

func (t *faultTable) add(f Fault) {
	if f.Count <= 0 {
		f.Count = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.faults = append(t.faults, &f)
}

func (t *faultTable) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.faults = nil
}

// take consumes a matching fault and returns its status, or 0.
func (t *faultTable) take(op Op, phase Phase) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, f := range t.faults {
		if f.Op != op || f.Phase != phase {
			continue
		}
		if f.Skip > 0 {
			f.Skip--
			return 0
		}
		f.Count--
		if f.Count == 0 {
			t.faults = append(t.faults[:i], t.faults[i+1:]...)
		}
		return f.Status
	}
	return 0
}
