// Package batch partitions a recipient list into per-connection batches.
package batch

// Partition slices tokens into consecutive, non-overlapping batches, one
// per multiplexed connection. The candidate batch size is
// ceil(N/maxConnections); when that falls at or below
// maxStreamsPerConnection it is raised to maxStreamsPerConnection so the
// send uses fewer, fuller connections. A candidate above the stream limit
// is kept as-is: with very large recipient lists the per-connection
// concurrency is allowed to exceed the configured stream ceiling rather
// than opening more than maxConnections connections.
func Partition(tokens []string, maxConnections, maxStreamsPerConnection int) [][]string {
	if len(tokens) == 0 {
		return nil
	}
	if maxConnections < 1 {
		maxConnections = 1
	}
	if maxStreamsPerConnection < 1 {
		maxStreamsPerConnection = 1
	}

	size := (len(tokens) + maxConnections - 1) / maxConnections
	if size <= maxStreamsPerConnection {
		size = maxStreamsPerConnection
	}

	batches := make([][]string, 0, (len(tokens)+size-1)/size)
	for start := 0; start < len(tokens); start += size {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		batches = append(batches, tokens[start:end])
	}
	return batches
}
