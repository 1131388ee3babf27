package vm

import (
	"errors"
	"fmt"
)

// Internal names of the exception classes the runtime raises itself.
const (
	ClassNotFoundException          = "java/lang/ClassNotFoundException"
	NoClassDefFoundError            = "java/lang/NoClassDefFoundError"
	NoSuchMethodError               = "java/lang/NoSuchMethodError"
	NoSuchFieldError                = "java/lang/NoSuchFieldError"
	IncompatibleClassChangeError    = "java/lang/IncompatibleClassChangeError"
	AbstractMethodError             = "java/lang/AbstractMethodError"
	IllegalAccessError              = "java/lang/IllegalAccessError"
	InstantiationError              = "java/lang/InstantiationError"
	UnsatisfiedLinkError            = "java/lang/UnsatisfiedLinkError"
	ClassFormatError                = "java/lang/ClassFormatError"
	ClassCircularityError           = "java/lang/ClassCircularityError"
	StackOverflowError              = "java/lang/StackOverflowError"
	InternalError                   = "java/lang/InternalError"
	ArithmeticException             = "java/lang/ArithmeticException"
	NullPointerException            = "java/lang/NullPointerException"
	ArrayIndexOutOfBoundsException  = "java/lang/ArrayIndexOutOfBoundsException"
	ArrayStoreException             = "java/lang/ArrayStoreException"
	ClassCastException              = "java/lang/ClassCastException"
	NegativeArraySizeException      = "java/lang/NegativeArraySizeException"
	IllegalMonitorStateException    = "java/lang/IllegalMonitorStateException"
	IllegalArgumentException        = "java/lang/IllegalArgumentException"
	InterruptedException            = "java/lang/InterruptedException"
	CloneNotSupportedException      = "java/lang/CloneNotSupportedException"
	IllegalThreadStateException     = "java/lang/IllegalThreadStateException"
	StringIndexOutOfBoundsException = "java/lang/StringIndexOutOfBoundsException"
	methodHandleNativesClass        = "java/lang/invoke/MethodHandleNatives"
	uncaughtDispatchName            = "dispatchUncaughtException"
	uncaughtDispatchDescriptor      = "(Ljava/lang/Throwable;)V"
)

// ErrDeadlock is returned by Run when live threads remain but none can
// ever become runnable.
var ErrDeadlock = errors.New("deadlock: no runnable threads")

// Fault is a host-level runtime fault: a state the interpreter cannot
// continue from, such as an unknown opcode or an operand stack underflow.
// Guest-visible errors are exceptions, never Faults.
type Fault struct {
	Thread string
	Method string
	PC     int
	Reason string
}

func (f *Fault) Error() string {
	if f.Method == "" {
		return "fault: " + f.Reason
	}
	return fmt.Sprintf("fault in %s at pc %d (thread %s): %s", f.Method, f.PC, f.Thread, f.Reason)
}

func fault(format string, args ...any) *Fault {
	return &Fault{Reason: fmt.Sprintf(format, args...)}
}

// operandOverflow is panicked by JavaFrame.Push when max stack would be
// exceeded; the interpreter turns it into a StackOverflowError.
type operandOverflow struct{}
