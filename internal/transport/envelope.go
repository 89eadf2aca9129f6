package transport

import "encoding/json"

func jsonMarshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// toolsListEnvelope builds a synthetic tools/list JSON-RPC request, used
// by the HTTP convenience route that isn't itself a JSON-RPC call.
func toolsListEnvelope() []byte {
	b, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/list",
	})
	return b
}

// toolsCallEnvelope builds a synthetic tools/call JSON-RPC request from
// a convenience route's URL-carried tool name and raw argument body.
func toolsCallEnvelope(name string, args json.RawMessage) []byte {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	b, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      name,
			"arguments": args,
		},
	})
	return b
}
