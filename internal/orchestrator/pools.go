package orchestrator

import "fmt"

// Assign partitions members among n supervisors. Every member lands in
// exactly one slice, sizes differ by at most one, and when the count does
// not divide evenly the leftover goes one-per-supervisor from the first.
func Assign(members []string, n int) [][]string {
	if n <= 0 {
		return nil
	}
	out := make([][]string, n)
	base := len(members) / n
	rem := len(members) % n

	idx := 0
	for i := 0; i < n; i++ {
		size := base
		if i < rem {
			size++
		}
		out[i] = append([]string(nil), members[idx:idx+size]...)
		idx += size
	}
	return out
}

// unitID builds the canonical id for one unit of a tier pool.
func unitID(prefix string, i int) string {
	return fmt.Sprintf("%s_%d", prefix, i+1)
}
