// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Bench Works

package pdwire

import (
	"fmt"
	"strings"
	"time"
)

// Field is one node of a decoded message's payload tree.
type Field struct {
	Name     string
	Value    string
	Children []Field
}

// Message is a decoded PD protocol message. Immutable once constructed.
type Message struct {
	timestamp time.Time
	ticks     uint32
	sop       byte
	header    uint16
	objects   []uint32 // raw 32-bit data objects
	extHeader uint16   // extended messages only
	extData   []byte   // extended messages only
	fields    []Field
	raw       []byte // header + payload bytes as captured
}

// Timestamp returns the host-side capture time.
func (m *Message) Timestamp() time.Time { return m.timestamp }

// Ticks returns the device millisecond tick counter.
func (m *Message) Ticks() uint32 { return m.ticks }

// SOP returns the SOP* identifier the message was captured on.
func (m *Message) SOP() string { return SOPName(m.sop) }

// SOPCode returns the raw SOP* code byte.
func (m *Message) SOPCode() byte { return m.sop }

// Header returns the raw 16-bit PD message header.
func (m *Message) Header() uint16 { return m.header }

// typeCode returns the 5-bit message type field.
func (m *Message) typeCode() byte { return byte(m.header & 0x1F) }

// Extended reports whether the extended-header bit is set.
func (m *Message) Extended() bool { return m.header&0x8000 != 0 }

// NumObjects returns the header's data-object count.
func (m *Message) NumObjects() int { return int(m.header>>12) & 0x7 }

// MessageID returns the 3-bit rolling message ID.
func (m *Message) MessageID() int { return int(m.header>>9) & 0x7 }

// Revision returns the spec revision name from the header.
func (m *Message) Revision() string { return revisionNames[(m.header>>6)&0x3] }

// PowerRole returns the port power role (cable plug for SOP'/SOP'').
func (m *Message) PowerRole() string {
	if m.sop != SOPPlain {
		if m.header&0x0100 != 0 {
			return "Cable Plug"
		}
		return "DFP/UFP"
	}
	if m.header&0x0100 != 0 {
		return "Source"
	}
	return "Sink"
}

// DataRole returns the port data role (SOP only).
func (m *Message) DataRole() string {
	if m.sop != SOPPlain {
		return ""
	}
	if m.header&0x0020 != 0 {
		return "DFP"
	}
	return "UFP"
}

// TypeName returns the message type name, e.g. "Source_Capabilities".
func (m *Message) TypeName() string {
	code := m.typeCode()
	switch {
	case m.Extended():
		if name, ok := extNames[code]; ok {
			return name
		}
	case m.NumObjects() > 0:
		if name, ok := dataNames[code]; ok {
			return name
		}
	default:
		if name, ok := ctrlNames[code]; ok {
			return name
		}
	}
	return "Reserved"
}

// Objects returns the raw data objects.
func (m *Message) Objects() []uint32 { return m.objects }

// Fields returns the decoded payload tree.
func (m *Message) Fields() []Field { return m.fields }

// Raw returns the captured header+payload bytes.
func (m *Message) Raw() []byte { return m.raw }

// RawHex returns the captured bytes as an upper-case hex string, the
// form used by the CSV export/import format.
func (m *Message) RawHex() string {
	var sb strings.Builder
	for _, b := range m.raw {
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// ProvidesCapability reports whether this message supplies capability
// context (a Source_Capabilities or EPR_Source_Capabilities message).
func (m *Message) ProvidesCapability() bool {
	if m.Extended() {
		return m.typeCode() == ExtEPRSourceCap
	}
	return m.NumObjects() > 0 && m.typeCode() == DataSourceCapabilities
}

// IsGoodCRC reports whether this is a GoodCRC acknowledgment. These
// ack every bus message and are usually filtered from display.
func (m *Message) IsGoodCRC() bool {
	return !m.Extended() && m.NumObjects() == 0 && m.typeCode() == CtrlGoodCRC
}

// ProvidesRequest reports whether this message supplies request context
// (a Request or EPR_Request message).
func (m *Message) ProvidesRequest() bool {
	if m.Extended() {
		return false
	}
	code := m.typeCode()
	return m.NumObjects() > 0 && (code == DataRequest || code == DataEPRRequest)
}

// ProvidesExtended reports whether this message opens an extended
// chunk sequence later chunks must be resolved against.
func (m *Message) ProvidesExtended() bool {
	return m.Extended() && m.chunkNumber() == 0 && m.chunked()
}

// chunked reports the extended header's chunked bit.
func (m *Message) chunked() bool { return m.extHeader&0x8000 != 0 }

// chunkNumber returns the extended header's chunk number.
func (m *Message) chunkNumber() int { return int(m.extHeader>>11) & 0xF }

// dataSize returns the extended header's total data size field.
func (m *Message) dataSize() int { return int(m.extHeader) & 0x1FF }

// QuickSummary returns the compact one-line readout shown in status
// bars: a PDO menu for capability messages, the selected object for
// request messages, empty otherwise.
func (m *Message) QuickSummary() string {
	switch {
	case m.ProvidesCapability():
		parts := make([]string, 0, len(m.objects))
		for i, obj := range m.objects {
			parts = append(parts, fmt.Sprintf("[%d] %s", i+1, quickPDO(obj)))
		}
		return strings.Join(parts, " | ")
	case m.ProvidesRequest():
		if len(m.objects) > 0 {
			return quickRDO(m.objects[0])
		}
	}
	return ""
}
