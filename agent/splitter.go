package agent

import "strings"

// DefaultMaxChunkLen is the default upper bound for a single response chunk.
const DefaultMaxChunkLen = 1900

// SplitResponse splits an oversized response into ordered chunks of at most
// maxLen characters. Chunks are pure substrings of the input, so joining
// them in order reproduces the original exactly. Boundaries never land
// inside a fence marker line; fenced code blocks are kept whole when they
// fit and are otherwise split only at line breaks. Outside code blocks the
// splitter prefers sentence boundaries.
func SplitResponse(content string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultMaxChunkLen
	}
	if len(content) <= maxLen {
		return []string{content}
	}

	units := splitUnits(content, maxLen)

	var chunks []string
	var cur strings.Builder
	for _, u := range units {
		if cur.Len() > 0 && cur.Len()+len(u) > maxLen {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		// A single unit longer than maxLen is hard-split as a last resort.
		for len(u) > maxLen {
			if cur.Len() > 0 {
				chunks = append(chunks, cur.String())
				cur.Reset()
			}
			chunks = append(chunks, u[:maxLen])
			u = u[maxLen:]
		}
		cur.WriteString(u)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}

	return chunks
}

// splitUnits decomposes content into indivisible pieces: whole fenced code
// blocks when they fit within maxLen, individual lines inside oversized
// blocks, and sentences elsewhere.
func splitUnits(content string, maxLen int) []string {
	var units []string

	for _, block := range splitFencedBlocks(content) {
		switch {
		case block.fenced && len(block.text) <= maxLen:
			units = append(units, block.text)
		case block.fenced:
			units = append(units, splitKeepingSeparator(block.text, "\n")...)
		default:
			units = append(units, splitSentences(block.text)...)
		}
	}

	return units
}

type block struct {
	text   string
	fenced bool
}

// splitFencedBlocks partitions content into alternating plain and fenced
// segments. A fenced segment spans from its opening ``` line through the
// closing ``` line inclusive; an unterminated fence extends to the end.
func splitFencedBlocks(content string) []block {
	var blocks []block
	rest := content
	for {
		open := indexFence(rest, 0)
		if open < 0 {
			break
		}
		closing := indexFence(rest, open+3)
		var end int
		if closing < 0 {
			end = len(rest)
		} else {
			// Include the closing marker line.
			end = closing + 3
			if nl := strings.IndexByte(rest[end:], '\n'); nl >= 0 {
				end += nl + 1
			} else {
				end = len(rest)
			}
		}
		if open > 0 {
			blocks = append(blocks, block{text: rest[:open]})
		}
		blocks = append(blocks, block{text: rest[open:end], fenced: true})
		rest = rest[end:]
	}
	if rest != "" {
		blocks = append(blocks, block{text: rest})
	}
	return blocks
}

// indexFence finds the next ``` that starts a line at or after from.
func indexFence(s string, from int) int {
	for i := from; ; {
		j := strings.Index(s[i:], "```")
		if j < 0 {
			return -1
		}
		pos := i + j
		if pos == 0 || s[pos-1] == '\n' {
			return pos
		}
		i = pos + 3
	}
}

// splitSentences cuts text after sentence-ending punctuation followed by a
// space, and after newlines, keeping all separators so the pieces
// concatenate back to the original.
func splitSentences(text string) []string {
	var units []string
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '\n' {
			units = append(units, text[start:i+1])
			start = i + 1
			continue
		}
		if (c == '.' || c == '!' || c == '?') && i+1 < len(text) && text[i+1] == ' ' {
			units = append(units, text[start:i+2])
			start = i + 2
			i++
		}
	}
	if start < len(text) {
		units = append(units, text[start:])
	}
	return units
}

// splitKeepingSeparator splits s after every occurrence of sep, keeping the
// separator attached to the preceding piece.
func splitKeepingSeparator(s, sep string) []string {
	var parts []string
	for {
		i := strings.Index(s, sep)
		if i < 0 {
			break
		}
		parts = append(parts, s[:i+len(sep)])
		s = s[i+len(sep):]
	}
	if s != "" {
		parts = append(parts, s)
	}
	return parts
}
