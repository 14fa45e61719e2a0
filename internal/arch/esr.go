package arch

// Exception class values from ESR_EL1 bits [31:26].
const (
	ECUnknown        = 0x00
	ECIllegalExec    = 0x0e
	ECSVC64          = 0x15
	ECInstAbortLower = 0x20
	ECInstAbort      = 0x21
	ECPCAlign        = 0x22
	ECDataAbortLower = 0x24
	ECDataAbort      = 0x25
	ECSPAlign        = 0x26
	ECSError         = 0x2f
)

const (
	esrIL        = 1 << 25
	issMask      = 1<<25 - 1
	issImm16Mask = 0xffff

	// Data/instruction abort ISS bits.
	issWnR = 1 << 6
	issCM  = 1 << 8
	issFnV = 1 << 10
)

// Cause is the decoded syndrome of a synchronous exception.
type Cause struct {
	EC  uint32 // exception class
	IL  bool   // 32-bit instruction length bit
	ISS uint32 // instruction specific syndrome, bits [24:0]
}

// DecodeESR splits an ESR_EL1 value into its class, length and syndrome
// fields.
func DecodeESR(esr uint32) Cause {
	return Cause{
		EC:  esr >> 26,
		IL:  esr&esrIL != 0,
		ISS: esr & issMask,
	}
}

// IsSyscall reports whether the syndrome is a 64-bit svc #0 trap, the
// only shape routed to the syscall entry.
func (c Cause) IsSyscall() bool {
	return c.EC == ECSVC64 && c.IL && c.ISS&issImm16Mask == 0
}

// SyscallImm returns the immediate of a trapped svc instruction.
func (c Cause) SyscallImm() uint16 {
	return uint16(c.ISS & issImm16Mask)
}

// IsAbort reports whether the class is an instruction or data abort,
// the classes that latch a fault address.
func (c Cause) IsAbort() bool {
	switch c.EC {
	case ECInstAbortLower, ECInstAbort, ECDataAbortLower, ECDataAbort:
		return true
	}
	return false
}

// FaultAddressValid reports whether the fault address register holds a
// usable address for an abort syndrome. FnV set means the address was
// not captured.
func (c Cause) FaultAddressValid() bool {
	return c.ISS&issFnV == 0
}

// IsWrite reports whether a data abort was caused by a write access.
func (c Cause) IsWrite() bool { return c.ISS&issWnR != 0 }

// IsCacheMaint reports whether a data abort came from a cache
// maintenance operation.
func (c Cause) IsCacheMaint() bool { return c.ISS&issCM != 0 }

// Describe returns the fault report annotation for the syndrome, for
// example " data abort in el1 write cache". Classes without an
// annotation return the empty string.
func (c Cause) Describe() string {
	switch c.EC {
	case ECUnknown:
		return " unknown"
	case ECIllegalExec:
		return " illegal execution"
	case ECInstAbortLower:
		return " instruction abort in el0"
	case ECInstAbort:
		return " instruction abort in el1"
	case ECPCAlign:
		return " pc alignment"
	case ECDataAbortLower, ECDataAbort:
		s := " data abort in el0"
		if c.EC == ECDataAbort {
			s = " data abort in el1"
		}
		if c.IsWrite() {
			s += " write"
		} else {
			s += " read"
		}
		if c.IsCacheMaint() {
			s += " cache"
		}
		return s
	case ECSPAlign:
		return " sp alignment"
	case ECSError:
		return " serror interrupt"
	}
	return ""
}
