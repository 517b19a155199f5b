package gudalt

import (
	"strings"

	"golang.org/x/sys/cpu"
)

// ISA identifies the widest vector instruction set a kernel may rely on.
// Values are ordered: a higher ISA implies every lower one.
type ISA int

const (
	ISAScalar ISA = iota
	ISANEON
	ISAAVX2
	ISAAVX512
)

// String returns the ISA name
func (i ISA) String() string {
	switch i {
	case ISAScalar:
		return "scalar"
	case ISANEON:
		return "NEON"
	case ISAAVX2:
		return "AVX2"
	case ISAAVX512:
		return "AVX512"
	default:
		return "unknown"
	}
}

// Supports reports whether a device with ISA i can run code built for want.
// NEON and the x86 extensions are disjoint; scalar runs everywhere.
func (i ISA) Supports(want ISA) bool {
	if want == ISAScalar || want == i {
		return true
	}
	if i == ISANEON || want == ISANEON {
		return false
	}
	return i > want
}

// CPUFeatures tracks available CPU instruction set extensions
type CPUFeatures struct {
	HasAVX      bool
	HasAVX2     bool
	HasAVX512F  bool // Foundation
	HasAVX512DQ bool // Double/Quad precision
	HasAVX512BW bool // Byte/Word
	HasAVX512VL bool // Vector Length
	HasFMA      bool
	HasSSE4     bool
	HasNEON     bool
	HasFP16     bool
}

// Global CPU feature detection
var cpuFeatures CPUFeatures

func init() {
	detectCPUFeatures()
}

// detectCPUFeatures populates the global cpuFeatures struct
func detectCPUFeatures() {
	cpuFeatures = CPUFeatures{
		HasSSE4:     cpu.X86.HasSSE41 || cpu.X86.HasSSE42,
		HasAVX:      cpu.X86.HasAVX,
		HasAVX2:     cpu.X86.HasAVX2,
		HasAVX512F:  cpu.X86.HasAVX512F,
		HasAVX512DQ: cpu.X86.HasAVX512DQ,
		HasAVX512BW: cpu.X86.HasAVX512BW,
		HasAVX512VL: cpu.X86.HasAVX512VL,
		HasFMA:      cpu.X86.HasFMA,
		HasNEON:     cpu.ARM64.HasASIMD,
		HasFP16:     cpu.ARM64.HasFPHP && cpu.ARM64.HasASIMDHP,
	}
}

// HasAVX512 returns true if the CPU supports AVX-512 operations needed for GEMM
func HasAVX512() bool {
	return cpuFeatures.HasAVX512F
}

// HasAVX2 returns true if the CPU supports AVX2 operations
func HasAVX2() bool {
	return cpuFeatures.HasAVX2 && cpuFeatures.HasFMA
}

// BestISA returns the widest ISA usable for GEMM kernels on this CPU
func BestISA() ISA {
	switch {
	case HasAVX512():
		return ISAAVX512
	case HasAVX2():
		return ISAAVX2
	case cpuFeatures.HasNEON:
		return ISANEON
	default:
		return ISAScalar
	}
}

// GetCPUInfo returns a string describing available CPU features
func GetCPUInfo() string {
	var features []string
	add := func(ok bool, name string) {
		if ok {
			features = append(features, name)
		}
	}
	add(cpuFeatures.HasSSE4, "SSE4")
	add(cpuFeatures.HasAVX, "AVX")
	add(cpuFeatures.HasAVX2, "AVX2")
	add(cpuFeatures.HasFMA, "FMA")
	add(cpuFeatures.HasAVX512F, "AVX512F")
	add(cpuFeatures.HasAVX512DQ, "AVX512DQ")
	add(cpuFeatures.HasAVX512BW, "AVX512BW")
	add(cpuFeatures.HasAVX512VL, "AVX512VL")
	add(cpuFeatures.HasNEON, "NEON")
	add(cpuFeatures.HasFP16, "FP16")

	if len(features) == 0 {
		return "No SIMD extensions detected"
	}
	return "CPU features: " + strings.Join(features, ", ")
}
