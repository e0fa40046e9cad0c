package kernels

import "example.com/app/tlp"

func Walk(in tlp.IStream[int], n int) {
	for i, j := 0, n; i < j; i++ {
		_ = in.Read()
	}
	for i := 0; i != n; i++ {
		_ = in.Read()
	}
	for i := 0; i < n; i-- {
		_ = in.Read()
	}
}
