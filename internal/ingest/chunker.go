package ingest

// SplitText splits text into overlapping chunks of roughly size runes with
// overlap runes carried across boundaries, preserving cross-boundary context.
// Splits prefer whitespace near the boundary so words are not cut in half.
func SplitText(text string, size, overlap int) []string {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		// Back off to the nearest whitespace within the last tenth of the
		// window, so chunks end on word boundaries when possible.
		cut := end
		for i := end; i > end-size/10 && i > start; i-- {
			if runes[i-1] == ' ' || runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[start:cut]))
		next := cut - overlap
		if next <= start {
			next = cut // overlap too large for the window; never stall
		}
		start = next
	}
	return chunks
}
