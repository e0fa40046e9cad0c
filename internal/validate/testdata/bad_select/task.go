package kernels

import "example.com/app/tlp"

func Wait(in tlp.IStream[int], done chan struct{}) {
	select {
	case <-done:
	default:
		_ = in.Read()
	}
}
