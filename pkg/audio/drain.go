package audio

// Drain reads from ch until it is closed, discarding all values. It lets the
// producer of an abandoned stream run to completion instead of blocking on a
// full channel.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
