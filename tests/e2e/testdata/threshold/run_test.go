package kernels

import (
	"reflect"
	"testing"
	"time"
)

func TestThresholdThenDedup(t *testing.T) {
	in := make(chan tlpToken[int], 1)
	mid := make(chan tlpToken[bool], 2)
	out := make(chan tlpToken[bool], 1)

	go func() {
		for _, v := range []int{1, 9, 8, 2, 7} {
			time.Sleep(time.Millisecond)
			in <- tlpToken[int]{Val: v}
		}
		in <- tlpToken[int]{Eos: true}
	}()
	go Threshold(in, mid, 5)
	go Dedup(mid, out)

	var got []bool
	deadline := time.After(30 * time.Second)
	for {
		select {
		case tok := <-out:
			if tok.Eos {
				if want := []bool{false, true, false, true}; !reflect.DeepEqual(want, got) {
					t.Fatalf("output = %v, want %v", got, want)
				}
				return
			}
			got = append(got, tok.Val)
		case <-deadline:
			t.Fatalf("lowered tasks did not reach end of stream, got %v so far", got)
		}
	}
}
