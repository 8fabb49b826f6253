package vmm

import (
	"unsafe"

	"github.com/nyxkernel/core/kernel/mem"
)

var (
	// ptePtrFn returns a pointer to the entry at entryAddr. Tests override
	// this to walk a plain Go slice instead of real recursively-mapped
	// memory; the compiler inlines the indirection away in the kernel
	// build.
	ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
		return unsafe.Pointer(entryAddr)
	}

	// nextAddrFn resolves the virtual address of a freshly created child
	// table before it is zeroed. In the kernel build this is the identity
	// function: childAddr already computed the real recursively-mapped
	// address. Tests override it to redirect the zeroing write at a
	// backing Go array instead.
	nextAddrFn = func(childAddr uintptr) uintptr {
		return childAddr
	}

	// memsetFn and memcopyFn are mocked by tests and inlined by the
	// compiler in the kernel build; every Memset/Memcopy call the vmm
	// package makes against a freshly mapped page goes through them so
	// tests can redirect the write at a backing Go array instead of a
	// synthetic recursive-mapping address.
	memsetFn  = mem.Memset
	memcopyFn = mem.Memcopy
)
