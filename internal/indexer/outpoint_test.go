package indexer

import (
	"strings"
	"testing"
)

func TestOutpointRoundTrip(t *testing.T) {
	var txid [32]byte
	for i := range txid {
		txid[i] = byte(i)
	}
	o := Outpoint{Txid: txid, Vout: 7}
	got, err := OutpointFromBytes(o.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != o {
		t.Fatalf("roundtrip mismatch: got %+v, want %+v", got, o)
	}
}

func TestOutpointStringIncludesVout(t *testing.T) {
	o := Outpoint{Vout: 3}
	if got := o.String(); !strings.HasSuffix(got, ":3") {
		t.Fatalf("got %q, want a string ending in \":3\"", got)
	}
}
