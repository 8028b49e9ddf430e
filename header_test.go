package mtp

import "testing"

func TestPackHeader(t *testing.T) {
	h := packHeader(3, 5, false)
	if h != 0x53 {
		t.Errorf("Was expecting 0x53, got %x", h)
	}
	h = packHeader(3, 5, true)
	if h != 0xD3 {
		t.Errorf("Was expecting 0xD3, got %x", h)
	}
	// 17 wraps to 1 on the wire
	h = packHeader(17, 0, false)
	if h != 0x01 {
		t.Errorf("Was expecting 0x01, got %x", h)
	}
	// window is clamped to the 3 bit field
	h = packHeader(0, 12, false)
	if h != 0x70 {
		t.Errorf("Was expecting 0x70, got %x", h)
	}
}

func TestParseHeader(t *testing.T) {
	seqNum, winLen, isAck := parseHeader(0xD3)
	if seqNum != 3 || winLen != 5 || !isAck {
		t.Errorf("Got %v %v %v", seqNum, winLen, isAck)
	}
	seqNum, winLen, isAck = parseHeader(0x00)
	if seqNum != 0 || winLen != 0 || isAck {
		t.Errorf("Got %v %v %v", seqNum, winLen, isAck)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	for seq := 0; seq < SeqModulo; seq++ {
		for win := 0; win <= maxWireWindow; win++ {
			gotSeq, gotWin, gotAck := parseHeader(packHeader(seq, win, seq%2 == 0))
			if gotSeq != seq || gotWin != win || gotAck != (seq%2 == 0) {
				t.Fatalf("seq %v win %v : got %v %v %v", seq, win, gotSeq, gotWin, gotAck)
			}
		}
	}
}
