package serial

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// Serial API stream framing: START1 START2 LEN_MSB LEN_LSB <protobuf>.
const (
	start1          = 0x94
	start2          = 0xC3
	maxPayloadBytes = 512
	wakeBytes       = 32
)

// Meshtastic protobuf field numbers used by the bridge.
const (
	toRadioPacket     protowire.Number = 1
	toRadioWantConfig protowire.Number = 3
	toRadioDisconnect protowire.Number = 4
	toRadioHeartbeat  protowire.Number = 7
	fromRadioPacket   protowire.Number = 2
	fromRadioMyInfo   protowire.Number = 3
	fromRadioComplete protowire.Number = 7
	fromRadioRebooted protowire.Number = 8
	fromRadioMetadata protowire.Number = 13
	packetFrom        protowire.Number = 1
	packetTo          protowire.Number = 2
	packetChannel     protowire.Number = 3
	packetDecoded     protowire.Number = 4
	packetID          protowire.Number = 6
	packetHopLimit    protowire.Number = 9
	packetWantAck     protowire.Number = 10
	dataPortnum       protowire.Number = 1
	dataPayload       protowire.Number = 2
	myInfoNodeNum     protowire.Number = 1
	myInfoRebootCount protowire.Number = 8
	metadataFirmware  protowire.Number = 1
)

const (
	portTextMessageApp = 1
	defaultHopLimit    = 3
)

var ErrFrameTooLarge = errors.New("frame exceeds maximum payload size")

func encodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > maxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	frame := make([]byte, 0, len(payload)+4)
	frame = append(frame, start1, start2, byte(len(payload)>>8), byte(len(payload)))
	return append(frame, payload...), nil
}

func wakeSequence() []byte {
	b := make([]byte, wakeBytes)
	for i := range b {
		b[i] = start2
	}
	return b
}

// frameReader splits the serial byte stream into protobuf frames. Bytes
// outside a frame are the device's debug console and are passed to onDebug
// one line at a time.
type frameReader struct {
	r       *bufio.Reader
	onDebug func(line string)
	debug   []byte
}

func newFrameReader(r io.Reader, onDebug func(string)) *frameReader {
	return &frameReader{r: bufio.NewReader(r), onDebug: onDebug}
}

func (fr *frameReader) next() ([]byte, error) {
	for {
		b, err := fr.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != start1 {
			fr.consoleByte(b)
			continue
		}

		b2, err := fr.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b2 != start2 {
			fr.consoleByte(b)
			if err := fr.r.UnreadByte(); err != nil {
				return nil, err
			}
			continue
		}

		var hdr [2]byte
		if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
			return nil, err
		}
		size := int(hdr[0])<<8 | int(hdr[1])
		if size > maxPayloadBytes {
			// Corrupt header; resync on the next start byte.
			continue
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(fr.r, payload); err != nil {
			return nil, err
		}
		return payload, nil
	}
}

func (fr *frameReader) consoleByte(b byte) {
	if b == '\n' {
		if len(fr.debug) > 0 && fr.onDebug != nil {
			fr.onDebug(string(fr.debug))
		}
		fr.debug = fr.debug[:0]
		return
	}
	if b == '\r' || len(fr.debug) >= 1024 {
		return
	}
	fr.debug = append(fr.debug, b)
}

func encodeWantConfig(id uint32) []byte {
	b := protowire.AppendTag(nil, toRadioWantConfig, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(id))
}

func encodeHeartbeat() []byte {
	b := protowire.AppendTag(nil, toRadioHeartbeat, protowire.BytesType)
	return protowire.AppendBytes(b, nil)
}

func encodeDisconnect() []byte {
	b := protowire.AppendTag(nil, toRadioDisconnect, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func encodeTextPacket(id, to uint32, text string, wantAck bool) []byte {
	var data []byte
	data = protowire.AppendTag(data, dataPortnum, protowire.VarintType)
	data = protowire.AppendVarint(data, portTextMessageApp)
	data = protowire.AppendTag(data, dataPayload, protowire.BytesType)
	data = protowire.AppendString(data, text)

	var pkt []byte
	pkt = protowire.AppendTag(pkt, packetTo, protowire.Fixed32Type)
	pkt = protowire.AppendFixed32(pkt, to)
	pkt = protowire.AppendTag(pkt, packetDecoded, protowire.BytesType)
	pkt = protowire.AppendBytes(pkt, data)
	pkt = protowire.AppendTag(pkt, packetID, protowire.Fixed32Type)
	pkt = protowire.AppendFixed32(pkt, id)
	pkt = protowire.AppendTag(pkt, packetHopLimit, protowire.VarintType)
	pkt = protowire.AppendVarint(pkt, defaultHopLimit)
	if wantAck {
		pkt = protowire.AppendTag(pkt, packetWantAck, protowire.VarintType)
		pkt = protowire.AppendVarint(pkt, 1)
	}

	b := protowire.AppendTag(nil, toRadioPacket, protowire.BytesType)
	return protowire.AppendBytes(b, pkt)
}

type meshPacket struct {
	id       uint32
	from     uint32
	to       uint32
	channel  uint32
	portnum  uint64
	payload  []byte
	hasData  bool
	hopLimit uint32
}

type fromRadio struct {
	packet         *meshPacket
	myNodeNum      uint32
	rebootCount    uint32
	hasMyInfo      bool
	firmware       string
	configComplete uint32
	hasComplete    bool
	rebooted       bool
}

// fieldFunc handles one field and returns the bytes it consumed, or a
// negative protowire error code.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) int

func walk(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m := fn(num, typ, b)
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

func decodeFromRadio(b []byte) (*fromRadio, error) {
	msg := &fromRadio{}
	var inner error

	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == fromRadioPacket && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n
			}
			msg.packet, inner = decodeMeshPacket(v)
			return n
		case num == fromRadioMyInfo && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n
			}
			msg.hasMyInfo = true
			inner = walk(v, func(num protowire.Number, typ protowire.Type, b []byte) int {
				if typ != protowire.VarintType {
					return 0
				}
				x, n := protowire.ConsumeVarint(b)
				switch num {
				case myInfoNodeNum:
					msg.myNodeNum = uint32(x)
				case myInfoRebootCount:
					msg.rebootCount = uint32(x)
				}
				return n
			})
			return n
		case num == fromRadioMetadata && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n
			}
			inner = walk(v, func(num protowire.Number, typ protowire.Type, b []byte) int {
				if num != metadataFirmware || typ != protowire.BytesType {
					return 0
				}
				s, n := protowire.ConsumeString(b)
				msg.firmware = s
				return n
			})
			return n
		case num == fromRadioComplete && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			msg.configComplete = uint32(x)
			msg.hasComplete = true
			return n
		case num == fromRadioRebooted && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			msg.rebooted = x != 0
			return n
		}
		return 0
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode FromRadio: %w", err)
	}
	if inner != nil {
		return nil, fmt.Errorf("failed to decode FromRadio: %w", inner)
	}
	return msg, nil
}

func decodeMeshPacket(b []byte) (*meshPacket, error) {
	pkt := &meshPacket{}
	var inner error

	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch typ {
		case protowire.Fixed32Type:
			x, n := protowire.ConsumeFixed32(b)
			switch num {
			case packetFrom:
				pkt.from = x
			case packetTo:
				pkt.to = x
			case packetID:
				pkt.id = x
			}
			return n
		case protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			switch num {
			case packetChannel:
				pkt.channel = uint32(x)
			case packetHopLimit:
				pkt.hopLimit = uint32(x)
			}
			return n
		case protowire.BytesType:
			if num != packetDecoded {
				return 0
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n
			}
			pkt.hasData = true
			inner = walk(v, func(num protowire.Number, typ protowire.Type, b []byte) int {
				switch {
				case num == dataPortnum && typ == protowire.VarintType:
					x, n := protowire.ConsumeVarint(b)
					pkt.portnum = x
					return n
				case num == dataPayload && typ == protowire.BytesType:
					v, n := protowire.ConsumeBytes(b)
					pkt.payload = append([]byte(nil), v...)
					return n
				}
				return 0
			})
			return n
		}
		return 0
	})
	if err != nil {
		return nil, err
	}
	return pkt, inner
}
