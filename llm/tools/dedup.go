package tools

import "github.com/BaSui01/recipeflow/types"

// DedupHistory collapses every run of consecutive same-role messages into the
// last message of the run. Streaming appends a growing assistant snapshot per
// text delta before the authoritative message arrives; only that final one
// survives. The compaction is lossy by intent and is not a general merge.
func DedupHistory(history []types.Message) []types.Message {
	out := make([]types.Message, 0, len(history))
	for _, msg := range history {
		if n := len(out); n > 0 && out[n-1].Role == msg.Role {
			out[n-1] = msg
			continue
		}
		out = append(out, msg)
	}
	return out
}
