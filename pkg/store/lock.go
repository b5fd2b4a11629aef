package store

import "time"

// LockMode is the row lock requested when materializing entities
type LockMode int

const (
	// LockNone reads without locking
	LockNone LockMode = iota
	// LockRead reads the committed state without taking row locks
	LockRead
	// LockPessimisticRead takes shared row locks (FOR SHARE)
	LockPessimisticRead
	// LockPessimisticWrite takes exclusive row locks (FOR UPDATE)
	LockPessimisticWrite
)

func (m LockMode) String() string {
	switch m {
	case LockNone:
		return "none"
	case LockRead:
		return "read"
	case LockPessimisticRead:
		return "pessimistic_read"
	case LockPessimisticWrite:
		return "pessimistic_write"
	default:
		return "unknown"
	}
}

// LockOptions controls locking during materialization
type LockOptions struct {
	Mode LockMode

	// NoWait fails immediately instead of waiting for a conflicting lock
	NoWait bool

	// Timeout bounds the materialization call; 0 uses the store's query timeout
	Timeout time.Duration
}

// IsPessimistic reports whether row locks are taken
func (o LockOptions) IsPessimistic() bool {
	return o.Mode == LockPessimisticRead || o.Mode == LockPessimisticWrite
}
