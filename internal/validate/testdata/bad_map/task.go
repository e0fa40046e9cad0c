package kernels

import "example.com/app/tlp"

func Histogram(in tlp.IStream[int], n int) {
	counts := make(map[int]int)
	for i := 0; i < n; i++ {
		counts[in.Read()]++
	}
}
