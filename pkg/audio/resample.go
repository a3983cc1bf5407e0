package audio

// Resample converts mono samples from rate from to rate to by linear
// interpolation. The input is returned as is when the rates match, when
// either rate is not positive, or when it is empty.
func Resample(samples []float32, from, to int) []float32 {
	if from <= 0 || to <= 0 || from == to || len(samples) == 0 {
		return samples
	}
	out := make([]float32, int(int64(len(samples))*int64(to)/int64(from)))
	last := len(samples) - 1
	step := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		w := float32(pos - float64(j))
		out[i] = samples[j] + (samples[j+1]-samples[j])*w
	}
	return out
}

// ResampleStream resamples every block read from in on its own goroutine.
// Blocks that come out empty are dropped. The returned channel is closed
// after in is.
func ResampleStream(in <-chan []float32, from, to int) <-chan []float32 {
	out := make(chan []float32, cap(in))
	go func() {
		defer close(out)
		for block := range in {
			if r := Resample(block, from, to); len(r) > 0 {
				out <- r
			}
		}
	}()
	return out
}
