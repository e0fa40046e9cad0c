package kernels

import "example.com/app/tlp"

func Threshold(in tlp.IStream[int], out tlp.OStream[bool], limit int) {
	for !in.Eos() {
		if in.Peek() > limit {
			out.Write(true)
		} else {
			out.Write(false)
		}
		_ = in.Read()
	}
	out.Close()
}

func Dedup(in tlp.IStream[bool], out tlp.OStream[bool]) {
	last, seen := false, false
	for !in.Eos() {
		v := in.Read()
		if !seen || v != last {
			out.Write(v)
		}
		last, seen = v, true
	}
	out.Close()
}
