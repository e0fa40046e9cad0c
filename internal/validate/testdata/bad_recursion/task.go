package kernels

import "example.com/app/tlp"

func Drain(in tlp.IStream[int]) {
	if in.Eos() {
		return
	}
	_ = in.Read()
	Drain(in)
}
