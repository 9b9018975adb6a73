package messages

import (
	"encoding/json"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
)

// The envelope is a hand-built flatbuffer table with three fields:
// peer id (slot 0), message type (slot 1), and the zstd-compressed
// JSON payload (slot 2). Field offsets follow the vtable convention,
// 4 + 2*slot.
const (
	envelopeFieldPeerID  = 4
	envelopeFieldType    = 6
	envelopeFieldPayload = 8
)

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		panic(fmt.Sprintf("failed to create zstd encoder: %v", err))
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
	}
}

// SerializeMessage encodes a message into the compressed envelope format
// used on every transport.
func SerializeMessage(msg *Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("message is nil")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %v", err)
	}
	compressed := zstdEncoder.EncodeAll(payload, nil)

	builder := flatbuffers.NewBuilder(len(compressed) + 64)
	payloadVec := builder.CreateByteVector(compressed)

	builder.StartObject(3)
	builder.PrependUint32Slot(0, msg.PeerID, 0)
	builder.PrependByteSlot(1, byte(msg.Type), 0)
	builder.PrependUOffsetTSlot(2, payloadVec, 0)
	envelope := builder.EndObject()
	builder.Finish(envelope)

	return builder.FinishedBytes(), nil
}

// DeserializeMessage decodes a message from the compressed envelope format.
func DeserializeMessage(buf []byte) (*Message, error) {
	if len(buf) < flatbuffers.SizeUOffsetT {
		return nil, fmt.Errorf("buffer too short: %d bytes", len(buf))
	}

	tab := &flatbuffers.Table{
		Bytes: buf,
		Pos:   flatbuffers.GetUOffsetT(buf),
	}

	msg := &Message{}
	if o := flatbuffers.UOffsetT(tab.Offset(envelopeFieldPeerID)); o != 0 {
		msg.PeerID = tab.GetUint32(o + tab.Pos)
	}
	if o := flatbuffers.UOffsetT(tab.Offset(envelopeFieldType)); o != 0 {
		msg.Type = MessageType(tab.GetByte(o + tab.Pos))
	}

	o := flatbuffers.UOffsetT(tab.Offset(envelopeFieldPayload))
	if o == 0 {
		return nil, fmt.Errorf("envelope has no payload")
	}
	compressed := tab.ByteVector(o + tab.Pos)

	payload, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress payload: %v", err)
	}

	decoded := &Message{}
	if err := json.Unmarshal(payload, decoded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %v", err)
	}
	if decoded.Type != msg.Type || decoded.PeerID != msg.PeerID {
		return nil, fmt.Errorf("envelope header does not match payload")
	}

	return decoded, nil
}
