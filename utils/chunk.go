package utils

// ChunkList splits items into consecutive groups of size; the last group holds
// the remainder. The groups share the backing array of items.
func ChunkList[T any](items []T, size int) ([][]T, error) {
	if size <= 0 {
		return nil, invalidArgument("chunk size must be positive, got %d", size)
	}

	count := len(items) / size
	if len(items)%size != 0 {
		count++
	}
	chunks := make([][]T, 0, count)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks, nil
}
