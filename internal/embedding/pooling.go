package embedding

// meanPool averages the rows of hidden (seqLen x dims, row-major) whose attention
// mask is set, the pooling sentence-transformers models are trained with.
func meanPool(hidden []float32, mask []int64, dims int) []float32 {
	out := make([]float32, dims)
	if dims <= 0 {
		return out
	}
	var n float32
	for t, m := range mask {
		if m == 0 {
			continue
		}
		end := (t + 1) * dims
		if end > len(hidden) {
			break
		}
		for i, v := range hidden[t*dims : end] {
			out[i] += v
		}
		n++
	}
	if n == 0 {
		return out
	}
	for i := range out {
		out[i] /= n
	}
	return out
}
