// Package chunker splits extracted document text into overlapping
// fixed-size segments for embedding.
package chunker

import "fmt"

// Split slides a window of size bytes across text, advancing by
// size - overlap each step. The final window is clamped to the end of the
// text, so no content is ever dropped. Splitting is deterministic: the
// same inputs always produce the same chunks at the same offsets.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap must satisfy 0 <= overlap < size, got overlap=%d size=%d", overlap, size)
	}

	if len(text) == 0 {
		return nil, nil
	}
	if len(text) <= size {
		return []string{text}, nil
	}

	stride := size - overlap
	chunks := make([]string, 0, (len(text)+stride-1)/stride)

	for start := 0; start < len(text); start += stride {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}
		chunks = append(chunks, text[start:end])
	}

	return chunks, nil
}
