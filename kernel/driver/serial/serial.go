// Package serial drives the 16550-compatible UART exposed at I/O port
// 0x3F8, the standard COM1 address on the PC platform. It is the only
// diagnostic sink available before the VMM and heap exist and remains the
// panic-path writer for the lifetime of the kernel.
package serial

import (
	"nucleus/kernel/cpu"
	"nucleus/kernel/sync"
)

// port is the I/O base address of COM1.
const port = 0x3F8

const (
	regData        = port + 0
	regIntEnable   = port + 1
	regFIFOCtrl    = port + 2
	regLineCtrl    = port + 3
	regModemCtrl   = port + 4
	regLineStatus  = port + 5
	lineStatusTHRE = 1 << 5 // transmit holding register empty
)

// Port is an io.Writer backed by the UART. It holds no configuration of its
// own; obtain the COM1 port from Init, which programs the hardware.
type Port struct {
	mu sync.Spinlock
}

// com1 is the UART attached to COM1, initialized by Init.
var com1 Port

// Init programs the UART for 38400 8N1 operation with FIFOs enabled and
// returns the console. It must run before any call to Write.
func Init() *Port {
	cpu.Outb(regIntEnable, 0x00) // disable interrupts; the driver is polled
	cpu.Outb(regLineCtrl, 0x80)  // enable DLAB to set the baud divisor
	cpu.Outb(regData, 0x03)      // divisor low byte: 38400 baud
	cpu.Outb(regIntEnable, 0x00) // divisor high byte
	cpu.Outb(regLineCtrl, 0x03)  // 8 bits, no parity, one stop bit (DLAB off)
	cpu.Outb(regFIFOCtrl, 0xC7)  // enable FIFO, clear it, 14-byte threshold
	cpu.Outb(regModemCtrl, 0x0B) // DTR/RTS set, OUT2 enables IRQ line (unused, polled)

	return &com1
}

// Console returns the COM1 port initialized by Init. Calling it before Init
// returns the same port without programming the UART, rather than nil;
// its writes still go to the hardware.
func Console() *Port {
	return &com1
}

// Write implements io.Writer. It blocks, polling the line status register,
// until the transmit holding register is empty before each byte.
func (p *Port) Write(b []byte) (int, error) {
	cpu.WithoutInterrupts(func() {
		p.mu.Acquire()
		defer p.mu.Release()

		for _, c := range b {
			for cpu.Inb(regLineStatus)&lineStatusTHRE == 0 {
			}
			cpu.Outb(regData, c)
		}
	})
	return len(b), nil
}
