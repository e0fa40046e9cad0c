package kernels

import "example.com/app/tlp"

func Spawn(out tlp.OStream[int]) {
	go func() {
		out.Write(1)
	}()
}
