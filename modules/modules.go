// Package modules provides the built-in signal module kinds: oscillator,
// filter, envelope, gain, mixer and noise. Registration is explicit and
// static; a kind is looked up by name in patch files and by its wire code in
// PatchCreate commands, never discovered at runtime.
package modules

import (
	"fmt"

	"tandem"
)

// Wire codes of the built-in kinds, carried by PatchCreate packets. Codes
// are part of the command protocol and must never be renumbered.
const (
	CodeOscillator uint16 = 1
	CodeFilter     uint16 = 2
	CodeEnvelope   uint16 = 3
	CodeGain       uint16 = 4
	CodeMixer      uint16 = 5
	CodeNoise      uint16 = 6
)

// scratchFrames bounds the buffer length modules support; constructors
// preallocate scratch to this size so Process never allocates.
const scratchFrames = 4096

// Builtin returns a registry with all built-in kinds registered. Every kind
// passes the allocation self-check at registration; a failure here is a
// programming error in a module, hence the panic.
func Builtin() *tandem.Registry {
	r := tandem.NewRegistry()
	for _, k := range []tandem.Kind{
		oscillatorKind,
		filterKind,
		envelopeKind,
		gainKind,
		mixerKind,
		noiseKind,
	} {
		if err := r.Register(k); err != nil {
			panic(fmt.Sprintf("modules: %v", err))
		}
	}
	return r
}
