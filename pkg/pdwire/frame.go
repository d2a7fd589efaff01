// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Bench Works

package pdwire

import "encoding/binary"

// RawFrame is one fixed-length device report. Immutable once produced.
type RawFrame [FrameSize]byte

// Normalize builds a RawFrame from arbitrary-length input: bytes beyond
// FrameSize are truncated, short input is zero-padded at the tail.
func Normalize(data []byte) RawFrame {
	var f RawFrame
	copy(f[:], data)
	return f
}

// Class returns the frame-class byte.
func (f RawFrame) Class() byte {
	return f[offClass]
}

// Seq returns the device's rolling sequence number.
func (f RawFrame) Seq() byte {
	return f[offSeq]
}

// Ticks returns the device millisecond tick counter for this report.
func (f RawFrame) Ticks() uint32 {
	return binary.LittleEndian.Uint32(f[offTicks : offTicks+4])
}

// hasSignature reports whether the two signature bytes are present.
func (f RawFrame) hasSignature() bool {
	return f[0] == SigByte0 && f[1] == SigByte1
}

// checksumOK validates the additive checksum in the final byte.
func (f RawFrame) checksumOK() bool {
	return Checksum(f[:offSum]) == f[offSum]
}

// Checksum computes the additive frame checksum: the low byte of the sum
// of all input bytes.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// Seal stamps the signature bytes and checksum onto a frame. Used by
// tests and by tools that synthesize reports; device frames arrive
// already sealed.
func Seal(f RawFrame) RawFrame {
	f[0] = SigByte0
	f[1] = SigByte1
	f[offSum] = Checksum(f[:offSum])
	return f
}
