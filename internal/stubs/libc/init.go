// Package libc binds guest calls to the libc primitives of the injected
// runtime. Import this package to register its stubs with the default
// registry.
//
// Arguments arrive in X0..X2 per AAPCS64. Integer results are sign-extended
// into X0, so a runtime failure reads as -1 in the guest.
package libc

// Each file in this package registers its stubs in its own init() function.
