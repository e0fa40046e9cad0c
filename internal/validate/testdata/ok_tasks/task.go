package kernels

import "example.com/app/tlp"

func Scale(in tlp.IStream[int32], out tlp.OStream[int32], n int) {
	for i := 0; i < n; i++ {
		out.Write(in.Read() * 2)
	}
	for i := n; i > 0; i -= 2 {
		out.Write(0)
	}
	for !in.Eos() {
		_ = in.Read()
	}
	out.Close()
}
