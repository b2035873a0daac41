// Package meshcom implements the MeshCom UDP/BLE binary wire format
// described in spec.md §4.2: the "@"-sentinel frame with its little-endian
// header, variable-length path/destination/body middle section, and
// fixed 13-byte binary footer. Decoding follows the defensive,
// bounds-checked offset style of a BMP frame parser: every slice access is
// preceded by an explicit length check with a descriptive error.
package meshcom

import (
	"encoding/binary"
	"fmt"
)

// Sub-type selector bytes following the leading '@' sentinel.
const (
	SubTypeAck     byte = 'A'
	SubTypeText    byte = ':'
	SubTypePosTele byte = '!'
)

// Payload type codes carried in the header (spec.md §4.2).
const (
	PayloadTypeGroup  uint8 = 33 // destination terminated by '*'
	PayloadTypeDirect uint8 = 58 // destination terminated by ':'
)

const (
	headerSize = 6  // payload_type(1) + msg_id(4) + hop_raw(1)
	footerSize = 13 // 0, hw_id, lora_mod, fcs(2), fw, lasthw, fw_sub, ending, time_ms(4)
)

// Frame is a decoded MeshCom binary frame.
type Frame struct {
	SubType     byte
	PayloadType uint8
	MsgID       uint32
	MaxHop      uint8
	MeshInfo    uint8
	Path        string
	Dst         string
	Body        string
	HWID        uint8
	LoraMod     uint8
	FCS         uint16
	FCSValid    bool
	Firmware    uint8
	LastHWID    uint8
	LastSending bool
	FWSub       uint8
	Ending      uint8
	TimestampMS uint32
}

// Decode parses a raw MeshCom frame. FCS mismatches are reported via
// Frame.FCSValid rather than rejected: spec.md §4.2 mandates permissive
// handling ("FCS mismatch... does not drop the frame").
func Decode(data []byte) (*Frame, error) {
	if len(data) < 2 || data[0] != '@' {
		return nil, fmt.Errorf("meshcom: missing '@' sentinel")
	}
	subType := data[1]
	switch subType {
	case SubTypeAck, SubTypeText, SubTypePosTele:
	default:
		return nil, fmt.Errorf("meshcom: unknown sub-type %q", subType)
	}

	body := data[2:]
	if len(body) < headerSize+footerSize {
		return nil, fmt.Errorf("meshcom: frame too short (%d bytes, need at least %d)", len(body), headerSize+footerSize)
	}

	payloadType := body[0]
	msgID := binary.LittleEndian.Uint32(body[1:5])
	hopRaw := body[5]

	middle := body[headerSize : len(body)-footerSize]

	pathEnd := indexByte(middle, '>')
	if pathEnd < 0 {
		return nil, fmt.Errorf("meshcom: no '>' path terminator")
	}
	path := string(middle[:pathEnd])
	rest := middle[pathEnd+1:]

	var dstTerm byte
	switch payloadType {
	case PayloadTypeDirect:
		dstTerm = ':'
	case PayloadTypeGroup:
		dstTerm = '*'
	default:
		// Unknown payload type: fall back to scanning for either terminator.
		dstTerm = 0
	}

	dstEnd := -1
	if dstTerm != 0 {
		dstEnd = indexByte(rest, dstTerm)
	} else {
		for i, b := range rest {
			if b == ':' || b == '*' {
				dstEnd = i
				break
			}
		}
	}
	if dstEnd < 0 {
		return nil, fmt.Errorf("meshcom: no destination terminator found")
	}
	dst := string(rest[:dstEnd])
	bodyBytes := rest[dstEnd+1:]

	nul := indexByte(bodyBytes, 0)
	if nul >= 0 {
		bodyBytes = bodyBytes[:nul]
	}

	footer := body[len(body)-footerSize:]
	// footer[0] is a reserved zero byte.
	hwID := footer[1]
	loraMod := footer[2]
	fcs := binary.LittleEndian.Uint16(footer[3:5])
	fw := footer[5]
	lastHWRaw := footer[6]
	fwSub := footer[7]
	ending := footer[8]
	timestampMS := binary.LittleEndian.Uint32(footer[9:13])

	computed := CalcFCS(body[:len(body)-footerSize])

	f := &Frame{
		SubType:     subType,
		PayloadType: payloadType,
		MsgID:       msgID,
		MaxHop:      hopRaw & 0x0F,
		MeshInfo:    (hopRaw >> 4) & 0x0F,
		Path:        path,
		Dst:         dst,
		Body:        string(bodyBytes),
		HWID:        hwID,
		LoraMod:     loraMod,
		FCS:         fcs,
		FCSValid:    computed == fcs,
		Firmware:    fw,
		LastHWID:    lastHWRaw & 0x7F,
		LastSending: lastHWRaw&0x80 != 0,
		FWSub:       fwSub,
		Ending:      ending,
		TimestampMS: timestampMS,
	}
	return f, nil
}

// CalcFCS computes the frame check sequence: the byte-wise sum of the
// payload region folded into 16 bits with the two 8-bit halves swapped
// (spec.md §4.2).
func CalcFCS(payload []byte) uint16 {
	var sum uint32
	for _, b := range payload {
		sum += uint32(b)
	}
	lo := byte(sum & 0xFF)
	hi := byte((sum >> 8) & 0xFF)
	return uint16(lo)<<8 | uint16(hi)
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// Encode serializes a Frame back into wire bytes, computing a fresh FCS.
// Encode(Decode(x)) is the identity on valid records, ignoring FCS bytes
// (spec.md §8 round-trip law).
func Encode(f *Frame) []byte {
	var dstTerm byte = ':'
	if f.PayloadType == PayloadTypeGroup {
		dstTerm = '*'
	}

	body := make([]byte, 0, headerSize+len(f.Path)+1+len(f.Dst)+1+len(f.Body)+1)
	body = append(body, f.PayloadType)
	var idBuf [4]byte
	binary.LittleEndian.PutUint32(idBuf[:], f.MsgID)
	body = append(body, idBuf[:]...)
	body = append(body, (f.MeshInfo<<4)|(f.MaxHop&0x0F))
	body = append(body, []byte(f.Path)...)
	body = append(body, '>')
	body = append(body, []byte(f.Dst)...)
	body = append(body, dstTerm)
	body = append(body, []byte(f.Body)...)
	body = append(body, 0)

	fcs := CalcFCS(body)

	footer := make([]byte, footerSize)
	footer[1] = f.HWID
	footer[2] = f.LoraMod
	binary.LittleEndian.PutUint16(footer[3:5], fcs)
	footer[5] = f.Firmware
	lastHW := f.LastHWID & 0x7F
	if f.LastSending {
		lastHW |= 0x80
	}
	footer[6] = lastHW
	footer[7] = f.FWSub
	footer[8] = f.Ending
	binary.LittleEndian.PutUint32(footer[9:13], f.TimestampMS)

	out := make([]byte, 0, 2+len(body)+len(footer))
	out = append(out, '@', f.SubType)
	out = append(out, body...)
	out = append(out, footer...)
	return out
}
