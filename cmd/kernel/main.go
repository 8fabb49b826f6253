// Command kernel exists only so that `go build` has a package main to
// produce an ELF binary from. The assembly rt0 stub this binary is linked
// against never calls main; it calls kernel/kmain.Kmain directly, after
// setting up the GDT and bootstrap stack, with the multiboot info pointer
// and kernel image bounds the bootloader provided. main is therefore
// unreachable in a correctly linked image.
package main

import "github.com/nyxkernel/core/kernel/cpu"

func main() {
	cpu.Halt()
}
