package device

import "fmt"

// Command is a control code for Ioctl, encoded like the Linux _IO macro:
// type in bits 8-15, number in bits 0-7, no direction and no size.
type Command uint32

const ioctlMagic = 'k'

// CmdReset clears the buffer.
const CmdReset Command = ioctlMagic<<8 | 0

// IO builds a no-argument command from a type and number.
func IO(typ, nr uint8) Command {
	return Command(uint32(typ)<<8 | uint32(nr))
}

func (c Command) String() string {
	if c == CmdReset {
		return "RESET_BUF"
	}
	return fmt.Sprintf("%#x", uint32(c))
}
