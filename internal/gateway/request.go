// Package gateway - request.go shapes the client's chat request.
//
// DESIGN: The body stays raw JSON throughout; gjson reads and sjson writes
// keep every field the client sent intact, including ones this proxy has
// never heard of. Only two mutations ever happen: the tool preamble is
// inserted once up front, and tool results are appended as user turns.
package gateway

import (
	"bytes"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/toolgate/ollama-gateway/internal/tools"
)

// prepareChatRequest validates the raw client body and returns it with the
// tool preamble inserted (unchanged when the registry is empty), plus the
// model id for heartbeat frames.
func prepareChatRequest(body []byte, reg *tools.Registry) ([]byte, string, error) {
	if !gjson.ValidBytes(body) {
		return nil, "", fmt.Errorf("%w: body is not valid JSON", ErrInvalidClientRequest)
	}
	stream := gjson.GetBytes(body, "stream")
	if !stream.Exists() {
		return nil, "", fmt.Errorf("%w: Expected 'stream' field to be present.", ErrInvalidClientRequest)
	}
	if !stream.IsBool() {
		return nil, "", fmt.Errorf("%w: Expected 'stream' field to be a boolean.", ErrInvalidClientRequest)
	}
	if !stream.Bool() {
		return nil, "", fmt.Errorf("%w: Expected 'stream' field to be true.", ErrInvalidClientRequest)
	}

	model := gjson.GetBytes(body, "model").String()

	if reg.Len() == 0 {
		return body, model, nil
	}
	withPreamble, err := insertPreamble(body, tools.BuildPreamble(reg))
	if err != nil {
		return nil, "", err
	}
	return withPreamble, model, nil
}

// insertPreamble adds the system tool-preamble to the messages array,
// immediately after the first contiguous block of system messages; with no
// such block it goes to position 0.
func insertPreamble(body []byte, preamble string) ([]byte, error) {
	msgs := gjson.GetBytes(body, "messages").Array()

	at := 0
	for i := 0; i < len(msgs); i++ {
		if msgs[i].Get("role").String() != "system" {
			continue
		}
		at = i + 1
		for at < len(msgs) && msgs[at].Get("role").String() == "system" {
			at++
		}
		break
	}

	entry := []byte(`{}`)
	entry, _ = sjson.SetBytes(entry, "content", preamble)
	entry, _ = sjson.SetBytes(entry, "role", "system")

	var arr bytes.Buffer
	arr.WriteByte('[')
	for i := 0; i <= len(msgs); i++ {
		if i == at {
			if arr.Len() > 1 {
				arr.WriteByte(',')
			}
			arr.Write(entry)
		}
		if i == len(msgs) {
			break
		}
		if arr.Len() > 1 {
			arr.WriteByte(',')
		}
		arr.WriteString(msgs[i].Raw)
	}
	arr.WriteByte(']')

	out, err := sjson.SetRawBytes(body, "messages", arr.Bytes())
	if err != nil {
		return nil, fmt.Errorf("insert tool preamble: %w", err)
	}
	return out, nil
}

// appendUserTurn appends {role:"user", content:text+"\n"} to the request's
// messages. Used to feed a tool result back upstream.
func appendUserTurn(body []byte, text string) ([]byte, error) {
	entry := []byte(`{}`)
	entry, _ = sjson.SetBytes(entry, "role", "user")
	entry, _ = sjson.SetBytes(entry, "content", text+"\n")

	out, err := sjson.SetRawBytes(body, "messages.-1", entry)
	if err != nil {
		return nil, fmt.Errorf("append user turn: %w", err)
	}
	return out, nil
}
