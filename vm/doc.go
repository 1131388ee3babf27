// Package vm implements the jolt JVM bytecode runtime.
//
// This package contains:
//   - Tagged value representation with wide (long/double) slot pairs
//   - The class arena, constant pools and lazily filled resolution cells
//   - JVMS method/field resolution, access control and virtual dispatch
//   - Java and internal frames, threads and the exception unwinder
//   - The bytecode interpreter with exact integer and IEEE754 semantics
//   - Monitors, class initialization and the round-robin scheduler
package vm
