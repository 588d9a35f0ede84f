// Package wire defines the fixed-width binary command packet exchanged
// between the control plane and the workers. Packets are fixed size so the
// shared command rings can index them without length prefixes, and versioned
// so malformed or future traffic degrades to a counted drop instead of a
// fault.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"tandem"
)

// Version is the current packet format version. Packets carrying any other
// version are dropped with a warning by the consumer.
const Version = 1

// PacketSize is the wire size of one encoded packet. Every packet occupies
// exactly this many bytes regardless of opcode.
const PacketSize = 20

var (
	ErrTruncated = errors.New("truncated command packet")
	ErrVersion   = errors.New("unsupported packet version")
	ErrOpcode    = errors.New("unknown opcode")
	ErrDtype     = errors.New("unknown dtype")
)

type (
	Opcode uint8
	Dtype  uint8

	// Packet is one decoded command. The same record shape carries every
	// opcode; fields that an opcode does not use are zero. For PatchConnect,
	// Module is the source node, the i32 value is the destination node and
	// the two ports travel in SrcPort/DstPort.
	Packet struct {
		Version  uint8
		Opcode   Opcode
		Dtype    Dtype
		Module   tandem.ModuleID
		Param    tandem.ParamID
		SrcPort  uint8
		DstPort  uint8
		Value    float32
		Sequence uint32
	}
)

const (
	OpSetParam Opcode = iota
	OpGate
	OpPatchCreate
	OpPatchConnect
	OpPatchCommit
	OpPatchAbort
	opcodeCount
)

const (
	DtypeF32 Dtype = iota
	DtypeI32
	DtypeBool
	dtypeCount
)

func (o Opcode) String() string {
	switch o {
	case OpSetParam:
		return "setparam"
	case OpGate:
		return "gate"
	case OpPatchCreate:
		return "patchcreate"
	case OpPatchConnect:
		return "patchconnect"
	case OpPatchCommit:
		return "patchcommit"
	case OpPatchAbort:
		return "patchabort"
	}
	return fmt.Sprintf("opcode(%d)", uint8(o))
}

// Int returns the value field reinterpreted as an i32, for packets with
// DtypeI32 (PatchConnect destinations, integer parameters).
func (p *Packet) Int() int32 {
	return int32(math.Float32bits(p.Value))
}

// Bool returns the value field as a boolean, for DtypeBool packets.
func (p *Packet) Bool() bool {
	return math.Float32bits(p.Value) != 0
}

// SetInt stores an i32 in the value field and marks the dtype.
func (p *Packet) SetInt(v int32) {
	p.Dtype = DtypeI32
	p.Value = math.Float32frombits(uint32(v))
}

// SetBool stores a boolean in the value field and marks the dtype.
func (p *Packet) SetBool(v bool) {
	p.Dtype = DtypeBool
	var bits uint32
	if v {
		bits = 1
	}
	p.Value = math.Float32frombits(bits)
}

// Encode appends the wire form of p to dst and returns the extended slice.
// The layout is little-endian:
//
//	0  version  u8
//	1  opcode   u8
//	2  dtype    u8
//	3  srcport:4 | dstport:4
//	4  module   u32
//	8  param    u16
//	10 reserved u16
//	12 value    f32 (or i32/bool bits per dtype)
//	16 sequence u32
func (p *Packet) Encode(dst []byte) []byte {
	var buf [PacketSize]byte
	buf[0] = p.Version
	buf[1] = uint8(p.Opcode)
	buf[2] = uint8(p.Dtype)
	buf[3] = p.SrcPort<<4 | p.DstPort&0x0f
	binary.LittleEndian.PutUint32(buf[4:], uint32(p.Module))
	binary.LittleEndian.PutUint16(buf[8:], uint16(p.Param))
	binary.LittleEndian.PutUint32(buf[12:], math.Float32bits(p.Value))
	binary.LittleEndian.PutUint32(buf[16:], p.Sequence)
	return append(dst, buf[:]...)
}

// EncodeTo writes the wire form into dst, which must be at least PacketSize
// bytes. It performs no allocation; this is the form the command rings use.
func (p *Packet) EncodeTo(dst []byte) error {
	if len(dst) < PacketSize {
		return ErrTruncated
	}
	dst[0] = p.Version
	dst[1] = uint8(p.Opcode)
	dst[2] = uint8(p.Dtype)
	dst[3] = p.SrcPort<<4 | p.DstPort&0x0f
	binary.LittleEndian.PutUint32(dst[4:], uint32(p.Module))
	binary.LittleEndian.PutUint16(dst[8:], uint16(p.Param))
	binary.LittleEndian.PutUint32(dst[12:], math.Float32bits(p.Value))
	binary.LittleEndian.PutUint32(dst[16:], p.Sequence)
	return nil
}

// Decode parses one packet from src. Truncated input, an unknown version,
// opcode or dtype all yield an error; the caller counts and drops, it never
// escalates.
func Decode(src []byte) (Packet, error) {
	if len(src) < PacketSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrTruncated, len(src))
	}
	p := Packet{
		Version:  src[0],
		Opcode:   Opcode(src[1]),
		Dtype:    Dtype(src[2]),
		SrcPort:  src[3] >> 4,
		DstPort:  src[3] & 0x0f,
		Module:   tandem.ModuleID(binary.LittleEndian.Uint32(src[4:])),
		Param:    tandem.ParamID(binary.LittleEndian.Uint16(src[8:])),
		Value:    math.Float32frombits(binary.LittleEndian.Uint32(src[12:])),
		Sequence: binary.LittleEndian.Uint32(src[16:]),
	}
	if p.Version != Version {
		return Packet{}, fmt.Errorf("%w: %d", ErrVersion, p.Version)
	}
	if p.Opcode >= opcodeCount {
		return Packet{}, fmt.Errorf("%w: %d", ErrOpcode, p.Opcode)
	}
	if p.Dtype >= dtypeCount {
		return Packet{}, fmt.Errorf("%w: %d", ErrDtype, p.Dtype)
	}
	return p, nil
}

// SetParam builds a SetParam packet.
func SetParam(module tandem.ModuleID, param tandem.ParamID, value float32) Packet {
	return Packet{Version: Version, Opcode: OpSetParam, Dtype: DtypeF32, Module: module, Param: param, Value: value}
}

// Gate builds a Gate packet for the given module.
func Gate(module tandem.ModuleID, on bool) Packet {
	p := Packet{Version: Version, Opcode: OpGate, Module: module}
	p.SetBool(on)
	return p
}

// PatchCreate builds a packet creating a node of the given kind code.
func PatchCreate(module tandem.ModuleID, kind uint16) Packet {
	return Packet{Version: Version, Opcode: OpPatchCreate, Dtype: DtypeI32, Module: module, Param: tandem.ParamID(kind)}
}

// PatchConnect builds a packet wiring module.srcPort into dst.dstPort.
func PatchConnect(src tandem.ModuleID, srcPort int, dst tandem.ModuleID, dstPort int) Packet {
	p := Packet{Version: Version, Opcode: OpPatchConnect, Module: src,
		SrcPort: uint8(srcPort), DstPort: uint8(dstPort)}
	p.SetInt(int32(dst))
	return p
}

// PatchCommit builds a packet committing the staged patch with the given
// output node.
func PatchCommit(output tandem.ModuleID) Packet {
	return Packet{Version: Version, Opcode: OpPatchCommit, Dtype: DtypeI32, Module: output}
}

// PatchAbort builds a packet discarding the staged patch.
func PatchAbort() Packet {
	return Packet{Version: Version, Opcode: OpPatchAbort, Dtype: DtypeI32}
}
