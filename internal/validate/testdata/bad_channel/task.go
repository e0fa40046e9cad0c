package kernels

import "example.com/app/tlp"

func Bridge(in tlp.IStream[int]) {
	ch := make(chan int, 1)
	ch <- in.Read()
	_ = <-ch
}
