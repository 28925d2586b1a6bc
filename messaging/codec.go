package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// envelope 跨进程传输的 JSON 线格式
type envelope struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Timestamp int64             `json:"timestamp"` // unix 纳秒
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Encode 将消息编码为 JSON 信封
func Encode(msg IMessage) ([]byte, error) {
	payload, err := json.Marshal(msg.GetPayload())
	if err != nil {
		return nil, fmt.Errorf("encode payload of %s: %w", msg.GetID(), err)
	}
	ts := msg.GetTimestamp()
	if ts.IsZero() {
		ts = time.Now()
	}
	return json.Marshal(envelope{
		ID:        msg.GetID(),
		Type:      msg.GetType(),
		Timestamp: ts.UnixNano(),
		Payload:   payload,
		Metadata:  msg.GetMetadata(),
	})
}

// Decode 解码 JSON 信封，Payload 保留为 json.RawMessage，由订阅者用 DecodePayload 还原
func Decode(data []byte) (*Message, error) {
	var wire envelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if wire.Metadata == nil {
		wire.Metadata = make(map[string]string)
	}
	return &Message{
		ID:        wire.ID,
		Type:      wire.Type,
		Timestamp: time.Unix(0, wire.Timestamp).UTC(),
		Payload:   wire.Payload,
		Metadata:  wire.Metadata,
	}, nil
}

// DecodePayload 将消息负载还原到 target
//
// 进程内传输直接携带原始值，跨进程传输携带 json.RawMessage，两种情况都经 JSON 转换。
func DecodePayload(msg IMessage, target any) error {
	var raw []byte
	switch p := msg.GetPayload().(type) {
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return err
		}
		raw = b
	}
	return json.Unmarshal(raw, target)
}
