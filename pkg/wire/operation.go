package wire

// Op is the SMP operation carried in the low three bits of the header.
type Op uint8

const (
	// OpRead requests data from the device.
	OpRead Op = 0

	// OpReadRsp answers an OpRead.
	OpReadRsp Op = 1

	// OpWrite asks the device to change state or run a command.
	OpWrite Op = 2

	// OpWriteRsp answers an OpWrite.
	OpWriteRsp Op = 3
)

// opMask selects the operation bits of header byte 0.
const opMask = 0x07

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpRead:
		return "Read"
	case OpReadRsp:
		return "ReadRsp"
	case OpWrite:
		return "Write"
	case OpWriteRsp:
		return "WriteRsp"
	default:
		return "Unknown"
	}
}

// IsRequest returns true for OpRead and OpWrite.
func (o Op) IsRequest() bool {
	return o == OpRead || o == OpWrite
}

// IsResponse returns true for OpReadRsp and OpWriteRsp.
func (o Op) IsResponse() bool {
	return o == OpReadRsp || o == OpWriteRsp
}

// Response returns the response variant of a request operation.
func (o Op) Response() Op {
	return o + 1
}
