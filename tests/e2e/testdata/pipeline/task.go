package kernels

import "example.com/app/tlp"

const totalCount = 5

func Source(out tlp.OStream[uint32]) {
	out.Write(totalCount)
	for i := uint32(0); i < totalCount; i++ {
		val := i
		if i == 1 {
			val = 0x19700328
		} else if i == 2 {
			val = 0x19700101
		}
		out.Write(val)
	}
	out.Close()
}

func Filter(in tlp.IStream[uint32], out tlp.OStream[uint32]) {
	_ = in.Read()
	out.Write(totalCount)
	for count := uint32(0); count < totalCount; count++ {
		val := in.Read()
		if val == 0x19700328 {
			val = 0x20050823
		} else if val == 0x19700101 {
			val = 0x20071224
		}
		out.Write(val)
	}
	out.Close()
}

func Sink(in tlp.IStream[uint32], checksum *uint32) {
	_ = in.Read()
	for count := uint32(0); count < totalCount; count++ {
		*checksum += in.Read()
	}
}

func Top(checksum *uint32) {
	pipe1 := tlp.NewStream[uint32](1)
	pipe2 := tlp.NewStream[uint32](4)
	tlp.Task().
		Invoke(Source, pipe1).
		Invoke(Filter, pipe1, pipe2).
		Invoke(Sink, pipe2, checksum)
}
