// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Bench Works

// Package pdwire decodes the 64-byte HID reports emitted by WITRN-class
// USB Power-Delivery sniffer devices.
//
// Each report is either electrical telemetry (bus voltage/current and the
// CC/D+/D- line levels) or a captured USB-PD protocol message. PD messages
// are decoded into a structured field tree; messages whose interpretation
// depends on earlier traffic (a Request referencing a capability object,
// extended-message chunks) are resolved against a rolling Context.
package pdwire

// FrameSize is the fixed length of every device report. Shorter input is
// zero-padded at the tail, longer input truncated, before decoding.
const FrameSize = 64

// Report signature bytes
const (
	SigByte0 = 0xFF
	SigByte1 = 0x55
)

// Frame classes (report byte 2)
const (
	ClassByteTelemetry = 0x01
	ClassByteEvent     = 0x03
)

// Report field offsets
const (
	offClass   = 2
	offSeq     = 3
	offTicks   = 4
	offADC     = 8  // telemetry: six float32 channels
	offSOP     = 8  // pd: SOP* code
	offPayLen  = 9  // pd: payload length including the 2-byte header
	offPayload = 10 // pd: message header + data objects
	offSum     = 63 // additive checksum over bytes 0..62
)

// MaxPayload is the largest PD payload a report can carry
// (header + seven data objects fits with room to spare).
const MaxPayload = FrameSize - offPayload - 1

// Classification is the category assigned to a decoded frame.
type Classification int

// Frame classifications
const (
	ClassOther Classification = iota
	ClassTelemetry
	ClassControl
)

func (c Classification) String() string {
	switch c {
	case ClassTelemetry:
		return "telemetry"
	case ClassControl:
		return "control"
	default:
		return "other"
	}
}

// SOP* codes (report byte 8)
const (
	SOPPlain       = 0x00
	SOPPrime       = 0x01
	SOPDoublePrime = 0x02
	SOPDebugPrime  = 0x03
	SOPDebugDouble = 0x04
)

var sopNames = map[byte]string{
	SOPPlain:       "SOP",
	SOPPrime:       "SOP'",
	SOPDoublePrime: "SOP''",
	SOPDebugPrime:  "SOP'_Debug",
	SOPDebugDouble: "SOP''_Debug",
}

// SOPName returns the human-readable SOP* identifier for a code.
func SOPName(code byte) string {
	if name, ok := sopNames[code]; ok {
		return name
	}
	return "Reserved"
}

// Control message types (no data objects, extended bit clear)
const (
	CtrlGoodCRC             = 0x01
	CtrlGotoMin             = 0x02
	CtrlAccept              = 0x03
	CtrlReject              = 0x04
	CtrlPing                = 0x05
	CtrlPSRdy               = 0x06
	CtrlGetSourceCap        = 0x07
	CtrlGetSinkCap          = 0x08
	CtrlDRSwap              = 0x09
	CtrlPRSwap              = 0x0A
	CtrlVCONNSwap           = 0x0B
	CtrlWait                = 0x0C
	CtrlSoftReset           = 0x0D
	CtrlDataReset           = 0x0E
	CtrlDataResetComplete   = 0x0F
	CtrlNotSupported        = 0x10
	CtrlGetSourceCapExt     = 0x11
	CtrlGetStatus           = 0x12
	CtrlFRSwap              = 0x13
	CtrlGetPPSStatus        = 0x14
	CtrlGetCountryCodes     = 0x15
	CtrlGetSinkCapExt       = 0x16
	CtrlGetSourceInfo       = 0x17
	CtrlGetRevision         = 0x18
)

// Data message types (one or more data objects, extended bit clear)
const (
	DataSourceCapabilities = 0x01
	DataRequest            = 0x02
	DataBIST               = 0x03
	DataSinkCapabilities   = 0x04
	DataBatteryStatus      = 0x05
	DataAlert              = 0x06
	DataGetCountryInfo     = 0x07
	DataEnterUSB           = 0x08
	DataEPRRequest         = 0x09
	DataEPRMode            = 0x0A
	DataSourceInfo         = 0x0B
	DataRevision           = 0x0C
	DataVendorDefined      = 0x0F
)

// Extended message types (extended bit set)
const (
	ExtSourceCapExt       = 0x01
	ExtStatus             = 0x02
	ExtGetBatteryCap      = 0x03
	ExtGetBatteryStatus   = 0x04
	ExtBatteryCap         = 0x05
	ExtGetManufacturer    = 0x06
	ExtManufacturerInfo   = 0x07
	ExtSecurityRequest    = 0x08
	ExtSecurityResponse   = 0x09
	ExtFWUpdateRequest    = 0x0A
	ExtFWUpdateResponse   = 0x0B
	ExtPPSStatus          = 0x0C
	ExtCountryInfo        = 0x0D
	ExtCountryCodes       = 0x0E
	ExtSinkCapExt         = 0x0F
	ExtControl            = 0x10
	ExtEPRSourceCap       = 0x11
	ExtEPRSinkCap         = 0x12
	ExtVendorDefined      = 0x1E
)

var ctrlNames = map[byte]string{
	CtrlGoodCRC:           "GoodCRC",
	CtrlGotoMin:           "GotoMin",
	CtrlAccept:            "Accept",
	CtrlReject:            "Reject",
	CtrlPing:              "Ping",
	CtrlPSRdy:             "PS_RDY",
	CtrlGetSourceCap:      "Get_Source_Cap",
	CtrlGetSinkCap:        "Get_Sink_Cap",
	CtrlDRSwap:            "DR_Swap",
	CtrlPRSwap:            "PR_Swap",
	CtrlVCONNSwap:         "VCONN_Swap",
	CtrlWait:              "Wait",
	CtrlSoftReset:         "Soft_Reset",
	CtrlDataReset:         "Data_Reset",
	CtrlDataResetComplete: "Data_Reset_Complete",
	CtrlNotSupported:      "Not_Supported",
	CtrlGetSourceCapExt:   "Get_Source_Cap_Extended",
	CtrlGetStatus:         "Get_Status",
	CtrlFRSwap:            "FR_Swap",
	CtrlGetPPSStatus:      "Get_PPS_Status",
	CtrlGetCountryCodes:   "Get_Country_Codes",
	CtrlGetSinkCapExt:     "Get_Sink_Cap_Extended",
	CtrlGetSourceInfo:     "Get_Source_Info",
	CtrlGetRevision:       "Get_Revision",
}

var dataNames = map[byte]string{
	DataSourceCapabilities: "Source_Capabilities",
	DataRequest:            "Request",
	DataBIST:               "BIST",
	DataSinkCapabilities:   "Sink_Capabilities",
	DataBatteryStatus:      "Battery_Status",
	DataAlert:              "Alert",
	DataGetCountryInfo:     "Get_Country_Info",
	DataEnterUSB:           "Enter_USB",
	DataEPRRequest:         "EPR_Request",
	DataEPRMode:            "EPR_Mode",
	DataSourceInfo:         "Source_Info",
	DataRevision:           "Revision",
	DataVendorDefined:      "Vendor_Defined",
}

var extNames = map[byte]string{
	ExtSourceCapExt:     "Source_Capabilities_Extended",
	ExtStatus:           "Status",
	ExtGetBatteryCap:    "Get_Battery_Cap",
	ExtGetBatteryStatus: "Get_Battery_Status",
	ExtBatteryCap:       "Battery_Capabilities",
	ExtGetManufacturer:  "Get_Manufacturer_Info",
	ExtManufacturerInfo: "Manufacturer_Info",
	ExtSecurityRequest:  "Security_Request",
	ExtSecurityResponse: "Security_Response",
	ExtFWUpdateRequest:  "Firmware_Update_Request",
	ExtFWUpdateResponse: "Firmware_Update_Response",
	ExtPPSStatus:        "PPS_Status",
	ExtCountryInfo:      "Country_Info",
	ExtCountryCodes:     "Country_Codes",
	ExtSinkCapExt:       "Sink_Capabilities_Extended",
	ExtControl:          "Extended_Control",
	ExtEPRSourceCap:     "EPR_Source_Capabilities",
	ExtEPRSinkCap:       "EPR_Sink_Capabilities",
	ExtVendorDefined:    "Vendor_Defined_Extended",
}

// Spec revision names (header bits 6..7)
var revisionNames = [4]string{"1.0", "2.0", "3.0", "Reserved"}
