// Package probe consumes the syscall ring buffer the platform's kernel
// probe pins to bpffs. The probe itself loads and attaches the BPF
// programs; this package only reads what it publishes.
package probe

// DefaultPinPath is where the kernel probe pins its maps.
const DefaultPinPath = "/sys/fs/bpf/introspect"
