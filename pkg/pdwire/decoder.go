// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Bench Works

package pdwire

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Decode errors
var (
	ErrBadSignature = fmt.Errorf("missing report signature")
	ErrBadChecksum  = fmt.Errorf("checksum mismatch")
	ErrBadPayload   = fmt.Errorf("invalid payload length")
)

// Decoded is the result of decoding one frame. Exactly one of Msg or
// Sample is populated, selected by Class; ClassOther frames carry
// neither and are discarded by callers.
type Decoded struct {
	Class  Classification
	Msg    *Message
	Sample Sample
}

// Adapter decodes raw device reports. It is stateless; all rolling
// state lives in the Context the caller threads through Decode.
type Adapter struct{}

// NewAdapter creates a frame decoder.
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Decode classifies and decodes a single frame against the given
// context. It is pure: identical frame and context always produce an
// identical result, which is required for replay parity.
//
// The at timestamp is stamped onto decoded messages and samples; live
// capture passes the read time, replay passes the stored timestamp.
func (a *Adapter) Decode(f RawFrame, ctx Context, at time.Time) (*Decoded, error) {
	if !f.hasSignature() {
		return nil, ErrBadSignature
	}
	if !f.checksumOK() {
		return nil, ErrBadChecksum
	}

	switch f.Class() {
	case ClassByteTelemetry:
		return &Decoded{Class: ClassTelemetry, Sample: decodeSample(f, at)}, nil
	case ClassByteEvent:
		msg, err := decodeMessage(f, ctx, at)
		if err != nil {
			return nil, err
		}
		return &Decoded{Class: ClassControl, Msg: msg}, nil
	default:
		return &Decoded{Class: ClassOther}, nil
	}
}

// decodeMessage decodes a PD event frame into a Message.
func decodeMessage(f RawFrame, ctx Context, at time.Time) (*Message, error) {
	payLen := int(f[offPayLen])
	if payLen < 2 || payLen > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadPayload, payLen)
	}

	raw := make([]byte, payLen)
	copy(raw, f[offPayload:offPayload+payLen])

	msg := &Message{
		timestamp: at,
		ticks:     f.Ticks(),
		sop:       f[offSOP],
		header:    binary.LittleEndian.Uint16(raw[0:2]),
		raw:       raw,
	}

	body := raw[2:]
	if msg.Extended() {
		if len(body) < 2 {
			return nil, fmt.Errorf("%w: extended message without extended header", ErrBadPayload)
		}
		msg.extHeader = binary.LittleEndian.Uint16(body[0:2])
		msg.extData = body[2:]
	} else {
		ndo := msg.NumObjects()
		if len(body) < ndo*4 {
			return nil, fmt.Errorf("%w: %d objects announced, %d bytes present", ErrBadPayload, ndo, len(body))
		}
		msg.objects = make([]uint32, ndo)
		for i := 0; i < ndo; i++ {
			msg.objects[i] = binary.LittleEndian.Uint32(body[i*4 : i*4+4])
		}
	}

	msg.fields = decodeFields(msg, ctx)
	return msg, nil
}

// decodeFields builds the payload tree for a message. Context-dependent
// message types resolve against ctx; everything else decodes standalone.
func decodeFields(msg *Message, ctx Context) []Field {
	header := Field{
		Name:  "Message Header",
		Value: fmt.Sprintf("0x%04X", msg.header),
		Children: []Field{
			{Name: "Message Type", Value: msg.TypeName()},
			{Name: "Port Data Role", Value: msg.DataRole()},
			{Name: "Specification Revision", Value: "Rev " + msg.Revision()},
			{Name: "Port Power Role", Value: msg.PowerRole()},
			{Name: "Message ID", Value: fmt.Sprintf("%d", msg.MessageID())},
			{Name: "Number of Data Objects", Value: fmt.Sprintf("%d", msg.NumObjects())},
			{Name: "Extended", Value: fmt.Sprintf("%t", msg.Extended())},
		},
	}

	fields := []Field{
		{Name: "SOP*", Value: msg.SOP()},
		header,
	}

	switch {
	case msg.Extended():
		fields = append(fields, decodeExtended(msg))
	case msg.ProvidesCapability():
		fields = append(fields, decodeCapabilities(msg))
	case msg.ProvidesRequest():
		fields = append(fields, decodeRequest(msg, ctx))
	case msg.NumObjects() > 0:
		fields = append(fields, decodeGenericObjects(msg))
	}

	return fields
}

// decodeCapabilities expands each PDO of a capability message.
func decodeCapabilities(msg *Message) Field {
	list := Field{Name: "Power Data Objects"}
	for i, obj := range msg.objects {
		list.Children = append(list.Children, decodePDO(i+1, obj))
	}
	return list
}

// decodePDO decodes one power data object.
func decodePDO(position int, obj uint32) Field {
	f := Field{
		Name:  fmt.Sprintf("PDO %d", position),
		Value: quickPDO(obj),
	}
	switch obj >> 30 {
	case 0: // fixed supply
		voltage := float64(obj>>10&0x3FF) * 0.05
		current := float64(obj&0x3FF) * 0.01
		f.Children = []Field{
			{Name: "Supply Type", Value: "Fixed"},
			{Name: "Voltage", Value: fmt.Sprintf("%.2f V", voltage)},
			{Name: "Max Current", Value: fmt.Sprintf("%.2f A", current)},
			{Name: "Dual-Role Power", Value: fmt.Sprintf("%t", obj&(1<<29) != 0)},
			{Name: "USB Suspend Supported", Value: fmt.Sprintf("%t", obj&(1<<28) != 0)},
			{Name: "Unconstrained Power", Value: fmt.Sprintf("%t", obj&(1<<27) != 0)},
			{Name: "USB Communications Capable", Value: fmt.Sprintf("%t", obj&(1<<26) != 0)},
			{Name: "Dual-Role Data", Value: fmt.Sprintf("%t", obj&(1<<25) != 0)},
		}
	case 1: // battery
		maxV := float64(obj>>20&0x3FF) * 0.05
		minV := float64(obj>>10&0x3FF) * 0.05
		power := float64(obj&0x3FF) * 0.25
		f.Children = []Field{
			{Name: "Supply Type", Value: "Battery"},
			{Name: "Max Voltage", Value: fmt.Sprintf("%.2f V", maxV)},
			{Name: "Min Voltage", Value: fmt.Sprintf("%.2f V", minV)},
			{Name: "Max Power", Value: fmt.Sprintf("%.2f W", power)},
		}
	case 2: // variable supply
		maxV := float64(obj>>20&0x3FF) * 0.05
		minV := float64(obj>>10&0x3FF) * 0.05
		current := float64(obj&0x3FF) * 0.01
		f.Children = []Field{
			{Name: "Supply Type", Value: "Variable"},
			{Name: "Max Voltage", Value: fmt.Sprintf("%.2f V", maxV)},
			{Name: "Min Voltage", Value: fmt.Sprintf("%.2f V", minV)},
			{Name: "Max Current", Value: fmt.Sprintf("%.2f A", current)},
		}
	case 3: // augmented (PPS / AVS)
		switch obj >> 28 & 0x3 {
		case 0: // SPR PPS
			maxV := float64(obj>>17&0xFF) * 0.1
			minV := float64(obj>>8&0xFF) * 0.1
			current := float64(obj&0x7F) * 0.05
			f.Children = []Field{
				{Name: "Supply Type", Value: "Programmable (PPS)"},
				{Name: "Max Voltage", Value: fmt.Sprintf("%.2f V", maxV)},
				{Name: "Min Voltage", Value: fmt.Sprintf("%.2f V", minV)},
				{Name: "Max Current", Value: fmt.Sprintf("%.2f A", current)},
				{Name: "Power Limited", Value: fmt.Sprintf("%t", obj&(1<<27) != 0)},
			}
		case 1: // EPR AVS
			maxV := float64(obj>>17&0x1FF) * 0.1
			minV := float64(obj>>8&0xFF) * 0.1
			power := float64(obj & 0xFF)
			f.Children = []Field{
				{Name: "Supply Type", Value: "EPR Adjustable (AVS)"},
				{Name: "Max Voltage", Value: fmt.Sprintf("%.2f V", maxV)},
				{Name: "Min Voltage", Value: fmt.Sprintf("%.2f V", minV)},
				{Name: "PDP", Value: fmt.Sprintf("%.0f W", power)},
			}
		default:
			f.Children = []Field{{Name: "Supply Type", Value: "Reserved APDO"}}
		}
	}
	return f
}

// decodeRequest expands an RDO, resolving the referenced capability
// object from the rolling context when one is available.
func decodeRequest(msg *Message, ctx Context) Field {
	list := Field{Name: "Request Data Objects"}
	for _, obj := range msg.objects {
		position := int(obj >> 28 & 0xF)
		rdo := Field{
			Name:  "RDO",
			Value: quickRDO(obj),
			Children: []Field{
				{Name: "Object Position", Value: fmt.Sprintf("%d", position)},
				{Name: "Operating Current", Value: fmt.Sprintf("%.2f A", float64(obj>>10&0x3FF)*0.01)},
				{Name: "Max Operating Current", Value: fmt.Sprintf("%.2f A", float64(obj&0x3FF)*0.01)},
				{Name: "Capability Mismatch", Value: fmt.Sprintf("%t", obj&(1<<26) != 0)},
				{Name: "USB Communications Capable", Value: fmt.Sprintf("%t", obj&(1<<25) != 0)},
				{Name: "No USB Suspend", Value: fmt.Sprintf("%t", obj&(1<<24) != 0)},
			},
		}

		// Resolve the referenced PDO from the last capability message.
		if cap := ctx.LastCapability; cap != nil && position >= 1 && position <= len(cap.objects) {
			copied := decodePDO(position, cap.objects[position-1])
			copied.Name = "Copy of PDO"
			rdo.Children = append(rdo.Children, copied)
		}

		list.Children = append(list.Children, rdo)
	}
	return list
}

// decodeGenericObjects renders data objects of message types with no
// dedicated decoder as raw hex words.
func decodeGenericObjects(msg *Message) Field {
	list := Field{Name: "Data Objects"}
	for i, obj := range msg.objects {
		list.Children = append(list.Children, Field{
			Name:  fmt.Sprintf("Object %d", i+1),
			Value: fmt.Sprintf("0x%08X", obj),
		})
	}
	return list
}

// decodeExtended renders the extended header and payload bytes.
func decodeExtended(msg *Message) Field {
	return Field{
		Name:  "Extended Header",
		Value: fmt.Sprintf("0x%04X", msg.extHeader),
		Children: []Field{
			{Name: "Chunked", Value: fmt.Sprintf("%t", msg.chunked())},
			{Name: "Chunk Number", Value: fmt.Sprintf("%d", msg.chunkNumber())},
			{Name: "Data Size", Value: fmt.Sprintf("%d", msg.dataSize())},
			{Name: "Data", Value: fmt.Sprintf("% X", msg.extData)},
		},
	}
}

// quickPDO renders the compact capability summary, e.g. "5.00V/3.00A".
func quickPDO(obj uint32) string {
	switch obj >> 30 {
	case 0:
		return fmt.Sprintf("%.2fV/%.2fA", float64(obj>>10&0x3FF)*0.05, float64(obj&0x3FF)*0.01)
	case 1:
		return fmt.Sprintf("Batt %.2f-%.2fV/%.2fW", float64(obj>>10&0x3FF)*0.05, float64(obj>>20&0x3FF)*0.05, float64(obj&0x3FF)*0.25)
	case 2:
		return fmt.Sprintf("Var %.2f-%.2fV/%.2fA", float64(obj>>10&0x3FF)*0.05, float64(obj>>20&0x3FF)*0.05, float64(obj&0x3FF)*0.01)
	default:
		switch obj >> 28 & 0x3 {
		case 0:
			return fmt.Sprintf("PPS %.2f-%.2fV/%.2fA", float64(obj>>8&0xFF)*0.1, float64(obj>>17&0xFF)*0.1, float64(obj&0x7F)*0.05)
		case 1:
			return fmt.Sprintf("AVS %.2f-%.2fV/%.0fW", float64(obj>>8&0xFF)*0.1, float64(obj>>17&0x1FF)*0.1, float64(obj&0xFF))
		default:
			return "Reserved"
		}
	}
}

// quickRDO renders the compact request summary, e.g. "Obj#2 2.00A/3.00A".
func quickRDO(obj uint32) string {
	return fmt.Sprintf("Obj#%d %.2fA/%.2fA", obj>>28&0xF, float64(obj>>10&0x3FF)*0.01, float64(obj&0x3FF)*0.01)
}
