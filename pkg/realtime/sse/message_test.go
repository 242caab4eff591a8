package sse

import "testing"

func TestMessage_Bytes(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{
			name: "all fields in fixed order",
			msg:  Message{Retry: "3000", Data: "hello", Event: "greeting", ID: "7"},
			want: "id: 7\nevent: greeting\ndata: hello\nretry: 3000\n\n",
		},
		{
			name: "data only",
			msg:  Message{Data: "hello"},
			want: "data: hello\n\n",
		},
		{
			name: "multi-line data",
			msg:  Message{Data: "line one\nline two\r\nline three"},
			want: "data: line one\ndata: line two\ndata: line three\n\n",
		},
		{
			name: "comment only",
			msg:  Message{Comment: "heartbeat"},
			want: ": heartbeat\n\n",
		},
		{
			name: "comment ignored next to fields",
			msg:  Message{Data: "x", Comment: "dropped"},
			want: "data: x\n\n",
		},
		{
			name: "newlines stripped from single-line fields",
			msg:  Message{ID: "1\n2", Event: "a\r\nb"},
			want: "id: 1 2\nevent: a b\n\n",
		},
		{
			name: "empty message",
			msg:  Message{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.String(); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestMessage_EmptyBytesIsNil(t *testing.T) {
	if b := (Message{}).Bytes(); b != nil {
		t.Fatalf("expected nil bytes, got %q", b)
	}
}

func TestMessage_IsCommentOnly(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{name: "comment", msg: Message{Comment: "heartbeat"}, want: true},
		{name: "comment with id", msg: Message{Comment: "c", ID: "1"}, want: false},
		{name: "comment with retry", msg: Message{Comment: "c", Retry: "10"}, want: false},
		{name: "data", msg: Message{Data: "d"}, want: false},
		{name: "empty", msg: Message{}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.IsCommentOnly(); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCounterIDGenerator(t *testing.T) {
	gen := NewCounterIDGenerator()
	for _, want := range []string{"1", "2", "3"} {
		if got := gen.NextID(&Message{}); got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}
}

func TestIDGeneratorFunc(t *testing.T) {
	gen := IDGeneratorFunc(func(msg *Message) string { return "evt-" + msg.Event })
	if got := gen.NextID(&Message{Event: "tick"}); got != "evt-tick" {
		t.Fatalf("unexpected id %q", got)
	}
}
