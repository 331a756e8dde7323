package mdfu

import (
	"encoding/binary"
	"fmt"
)

// clientInfoTag identifies a client-info TLV record type.
type clientInfoTag uint8

const (
	tagProtocolVersion       clientInfoTag = 1
	tagBufferInfo            clientInfoTag = 2
	tagCommandTimeout        clientInfoTag = 3
	tagInterTransactionDelay clientInfoTag = 4
)

// ProtocolVersion is the client's reported MDFU protocol version.
type ProtocolVersion struct {
	Major, Minor, Patch uint8
	Internal            uint8
	HasInternal         bool
}

func (v ProtocolVersion) String() string {
	if v.HasInternal {
		return fmt.Sprintf("%d.%d.%d+%d", v.Major, v.Minor, v.Patch, v.Internal)
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0, or 1 as v is older, equal, or newer than other,
// comparing major, minor, then patch in that order. Internal is not part of
// the ordering.
func (v ProtocolVersion) Compare(other ProtocolVersion) int {
	for _, pair := range [][2]uint8{{v.Major, other.Major}, {v.Minor, other.Minor}, {v.Patch, other.Patch}} {
		if pair[0] < pair[1] {
			return -1
		}
		if pair[0] > pair[1] {
			return 1
		}
	}
	return 0
}

// ClientInfo is the decoded set of client-info TLV records.
type ClientInfo struct {
	Version               ProtocolVersion
	BufferSize            uint16
	BufferCount           uint8
	DefaultTimeout        uint16 // wire units of 100ms
	CommandTimeouts       map[CommandCode]uint16
	InterTransactionDelay uint32 // nanoseconds
}

// commandTimeoutKey0 is the wire command_code value meaning "default timeout".
const commandTimeoutKey0 = 0

// DecodeClientInfo parses the TLV stream returned by GET_CLIENT_INFO.
func DecodeClientInfo(data []byte) (ClientInfo, error) {
	ci := ClientInfo{CommandTimeouts: make(map[CommandCode]uint16)}
	seenVersion := false
	seenBuffer := false

	off := 0
	for off < len(data) {
		if off+2 > len(data) {
			return ClientInfo{}, &ErrClientInfoDecode{Reason: "truncated TLV header"}
		}
		tag := clientInfoTag(data[off])
		length := int(data[off+1])
		off += 2
		if off+length > len(data) {
			return ClientInfo{}, &ErrClientInfoDecode{Reason: "TLV length overflows remaining buffer"}
		}
		val := data[off : off+length]
		off += length

		switch tag {
		case tagProtocolVersion:
			if length != 3 && length != 4 {
				return ClientInfo{}, &ErrClientInfoDecode{Reason: fmt.Sprintf("protocol version length %d, want 3 or 4", length)}
			}
			ci.Version = ProtocolVersion{Major: val[0], Minor: val[1], Patch: val[2]}
			if length == 4 {
				ci.Version.Internal = val[3]
				ci.Version.HasInternal = true
			}
			seenVersion = true

		case tagBufferInfo:
			if length != 3 {
				return ClientInfo{}, &ErrClientInfoDecode{Reason: fmt.Sprintf("buffer info length %d, want 3", length)}
			}
			ci.BufferSize = binary.LittleEndian.Uint16(val[0:2])
			ci.BufferCount = val[2]
			seenBuffer = true

		case tagCommandTimeout:
			if length == 0 || length%3 != 0 {
				return ClientInfo{}, &ErrClientInfoDecode{Reason: fmt.Sprintf("command timeout length %d, want a positive multiple of 3", length)}
			}
			n := length / 3
			var defaultTimeout uint16
			hasDefault := false
			for i := 0; i < n; i++ {
				code := val[i*3]
				timeout := binary.LittleEndian.Uint16(val[i*3+1 : i*3+3])
				if code == commandTimeoutKey0 {
					if i != 0 {
						return ClientInfo{}, &ErrClientInfoDecode{Reason: "default command timeout (code 0) must appear first"}
					}
					defaultTimeout = timeout
					hasDefault = true
					continue
				}
				ci.CommandTimeouts[CommandCode(code)] = timeout
			}
			if hasDefault {
				ci.DefaultTimeout = defaultTimeout
				for _, cc := range []CommandCode{GetClientInfo, StartTransfer, WriteChunk, GetImageState, EndTransfer} {
					if _, ok := ci.CommandTimeouts[cc]; !ok {
						ci.CommandTimeouts[cc] = defaultTimeout
					}
				}
			}

		case tagInterTransactionDelay:
			if length != 4 {
				return ClientInfo{}, &ErrClientInfoDecode{Reason: fmt.Sprintf("inter transaction delay length %d, want 4", length)}
			}
			ci.InterTransactionDelay = binary.LittleEndian.Uint32(val)

		default:
			return ClientInfo{}, &ErrClientInfoDecode{Reason: fmt.Sprintf("unknown client info tag %d", tag)}
		}
	}

	if !seenVersion {
		return ClientInfo{}, &ErrClientInfoDecode{Reason: "missing protocol version record"}
	}
	if !seenBuffer {
		return ClientInfo{}, &ErrClientInfoDecode{Reason: "missing buffer info record"}
	}
	return ci, nil
}

// TimeoutFor returns the command-specific timeout in wire units of 100ms
// (not converted to a duration here), or the default if the command has no
// override and a default was reported.
func (ci ClientInfo) TimeoutFor(cc CommandCode) (uint16, bool) {
	t, ok := ci.CommandTimeouts[cc]
	return t, ok
}
