// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"encoding/json"
	"fmt"

	internaljson "github.com/mcpstack/go-mcp/internal/json"
)

func assertCond(cond bool, msg string) {
	if !cond {
		panic(msg)
	}
}

// marshalParams marshals a params or result value, passing raw JSON through
// untouched and mapping nil to nil.
func marshalParams(v any) (json.RawMessage, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	}
	data, err := internaljson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling params: %w", err)
	}
	return data, nil
}

func internalUnmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return internaljson.Unmarshal(data, v)
}
