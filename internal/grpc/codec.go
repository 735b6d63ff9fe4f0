package grpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName 內容子類型, 客戶端以 grpc.CallContentSubtype(CodecName) 使用.
const CodecName = "json"

// jsonCodec 以 JSON 編碼訊息, 服務不依賴 protoc 產生的程式碼.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
