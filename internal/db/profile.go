package db

import "fmt"

// Capability names the rebuild mechanism a server supports.
type Capability int

const (
	// CapabilityLegacyExternalTool means the server predates REINDEX
	// CONCURRENTLY and rebuilds go through the external pg_repack utility.
	CapabilityLegacyExternalTool Capability = iota

	// CapabilityNativeConcurrent means the server supports REINDEX INDEX
	// CONCURRENTLY natively.
	CapabilityNativeConcurrent
)

// String implements fmt.Stringer for log output.
func (c Capability) String() string {
	switch c {
	case CapabilityNativeConcurrent:
		return "native-concurrent"
	case CapabilityLegacyExternalTool:
		return "legacy-external-tool"
	default:
		return fmt.Sprintf("capability(%d)", int(c))
	}
}

// nativeConcurrentSince is the first major version with REINDEX CONCURRENTLY.
const nativeConcurrentSince = 12

// ServerProfile describes the rebuild-relevant traits of a server, resolved
// once per connection.
type ServerProfile struct {
	// MajorVersion is the server major version (e.g. 15).
	MajorVersion int

	// Capability selects the rebuild strategy.
	Capability Capability

	// ParallelWorkers is the configured intra-operation parallelism for a
	// single rebuild. 0 disables the setting.
	ParallelWorkers int
}

// ResolveProfile maps a server_version_num reading to a profile.
func ResolveProfile(versionNum, parallelWorkers int) ServerProfile {
	major := versionNum / 10000
	capability := CapabilityLegacyExternalTool
	if major >= nativeConcurrentSince {
		capability = CapabilityNativeConcurrent
	}
	return ServerProfile{
		MajorVersion:    major,
		Capability:      capability,
		ParallelWorkers: parallelWorkers,
	}
}
