package mcp

import (
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// JSON-RPC 2.0 error codes used by the dispatch layer.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
)

// EncodeMessage serializes a JSON-RPC message to its wire format.
// This delegates to the MCP SDK's jsonrpc package.
func EncodeMessage(msg jsonrpc.Message) ([]byte, error) {
	return jsonrpc.EncodeMessage(msg)
}

// DecodeMessage deserializes JSON-RPC wire format data into a Message.
// It returns either a *jsonrpc.Request or *jsonrpc.Response based on content.
// This delegates to the MCP SDK's jsonrpc package.
func DecodeMessage(data []byte) (jsonrpc.Message, error) {
	return jsonrpc.DecodeMessage(data)
}

// WrapMessage decodes raw JSON-RPC bytes and wraps them in a Message struct
// with the current timestamp. Returns an error if decoding fails.
func WrapMessage(raw []byte) (*Message, error) {
	decoded, err := jsonrpc.DecodeMessage(raw)
	if err != nil {
		return nil, err
	}

	return &Message{
		Raw:       raw,
		Decoded:   decoded,
		Timestamp: time.Now(),
	}, nil
}

// NewResultResponse builds a raw JSON-RPC success response for the given
// request id. The id is spliced in verbatim to preserve its original format
// (number, string, or null).
func NewResultResponse(id json.RawMessage, result any) ([]byte, error) {
	resp := map[string]any{
		"jsonrpc": "2.0",
		"result":  result,
	}
	if id != nil {
		resp["id"] = id
	} else {
		resp["id"] = nil
	}
	return json.Marshal(resp)
}

// NewErrorResponse builds a raw JSON-RPC error response.
// id may be nil for parse errors where the request id is unknowable.
func NewErrorResponse(id json.RawMessage, code int, message string) []byte {
	resp := map[string]any{
		"jsonrpc": "2.0",
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
	if id != nil {
		resp["id"] = id
	} else {
		resp["id"] = nil
	}
	b, _ := json.Marshal(resp)
	return b
}
