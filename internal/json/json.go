// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package json routes the module's JSON encoding through a single seam.
//
// The wire codec and the SSE write path marshal every message that crosses a
// transport, so they use segmentio's encoder, which is API-compatible with
// encoding/json but avoids its reflection overhead on repeated types.
//
// Unmarshal additionally matches struct fields case-sensitively. JSON-RPC
// 2.0 member names are case-sensitive; the standard library's fallback to
// case-insensitive matching would let "Method" smuggle a value into
// "method".

package json

import (
	segjson "github.com/segmentio/encoding/json"
)

func Marshal(v any) ([]byte, error) {
	return segjson.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	_, err := segjson.Parse(data, v, segjson.DontMatchCaseInsensitiveStructFields)
	return err
}
