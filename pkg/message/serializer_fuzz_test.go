package message

import "testing"

func FuzzParse(f *testing.F) {
	s := MessageSerializer{}
	seed, _ := s.SerializeMessage(NewFireRequest(Fire{PeerId: 1, Speed: 12}))
	f.Add(seed)
	f.Add([]byte{})
	f.Add([]byte{uint8(MessageKind_SessionTableEvent), 1, 2, 3})

	f.Fuzz(func(t *testing.T, buf []byte) {
		msg, err := s.Parse(buf)
		if err != nil {
			return
		}
		if len(buf) != msg.Kind.WireSize() {
			t.Fatalf("decoded %s from %d bytes", msg.Kind, len(buf))
		}
		out, err := s.SerializeMessage(msg)
		if err != nil {
			t.Fatalf("re-serialize: %v", err)
		}
		if len(out) != len(buf) {
			t.Fatalf("re-serialized %d bytes, want %d", len(out), len(buf))
		}
	})
}
