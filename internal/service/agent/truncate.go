package agent

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

const truncateHead = 500

// truncate shortens oversized tool output to a JSON string keeping the head
// and the tail, so the stored output stays valid JSON.
func truncate(out json.RawMessage, maxLen int) json.RawMessage {
	if maxLen <= 0 || len(out) <= maxLen {
		return out
	}

	input := string(out)
	var s string
	if err := json.Unmarshal(out, &s); err == nil && len(s) > maxLen {
		input = s
	}

	head := min(truncateHead, maxLen/2)
	for head > 0 && !utf8.RuneStart(input[head]) {
		head--
	}
	tailStart := len(input) - (maxLen - head)
	for tailStart < len(input) && !utf8.RuneStart(input[tailStart]) {
		tailStart++
	}

	text := fmt.Sprintf("%s\n\n... [TRUNCATED %d bytes] ...\n\n%s",
		input[:head], tailStart-head, input[tailStart:])
	b, err := json.Marshal(text)
	if err != nil {
		return out
	}
	return b
}
