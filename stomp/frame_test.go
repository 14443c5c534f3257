package stomp

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestFrame_MarshalParseRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
	}{
		{
			name: "connect with plain headers",
			frame: NewFrame(CommandConnect).
				AddHeader(HdrAcceptVersion, "1.2").
				AddHeader(HdrHost, "ltnm.example.com").
				AddHeader(HdrLogin, "user").
				AddHeader(HdrPasscode, "pass"),
		},
		{
			name: "send with body and content-length",
			frame: func() *Frame {
				f := NewFrame(CommandSend).
					AddHeader(HdrDestination, "/quiet-route").
					AddHeader(HdrContentType, "application/json").
					AddHeader(HdrContentLength, "25")
				f.Body = []byte(`{"start_station_id":"a"}` + "\n")
				return f
			}(),
		},
		{
			name: "headers needing every escape",
			frame: NewFrame(CommandMessage).
				AddHeader(HdrDestination, "/passengers").
				AddHeader(HdrMessageID, "id:with:colons").
				AddHeader(HdrSubscription, "0").
				AddHeader("x-note", "line1\nline2\rback\\slash"),
		},
		{
			name: "body with NUL covered by content-length",
			frame: func() *Frame {
				f := NewFrame(CommandSend).
					AddHeader(HdrDestination, "/quiet-route").
					AddHeader(HdrContentLength, "3")
				f.Body = []byte{'a', 0, 'b'}
				return f
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire, err := tt.frame.Marshal()
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			got, err := Parse(wire)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if got.Command != tt.frame.Command {
				t.Errorf("command = %q, want %q", got.Command, tt.frame.Command)
			}
			if len(got.Headers) != len(tt.frame.Headers) {
				t.Fatalf("got %d headers, want %d", len(got.Headers), len(tt.frame.Headers))
			}
			for i, h := range tt.frame.Headers {
				if got.Headers[i] != h {
					t.Errorf("header %d = %+v, want %+v", i, got.Headers[i], h)
				}
			}
			if !bytes.Equal(got.Body, tt.frame.Body) {
				t.Errorf("body = %q, want %q", got.Body, tt.frame.Body)
			}
		})
	}
}

func TestParse_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name string
		wire string
		want error
	}{
		{
			name: "unknown command",
			wire: "FLY\nhost:h\n\n\x00",
			want: ErrUnexpectedCommand,
		},
		{
			name: "invalid escape in header value",
			wire: "SEND\ndestination:\\q\n\n\x00",
			want: ErrInvalidEscape,
		},
		{
			name: "dangling backslash",
			wire: "SEND\ndestination:a\\\n\n\x00",
			want: ErrInvalidEscape,
		},
		{
			name: "missing NUL terminator",
			wire: "SEND\ndestination:/d\n\nbody",
			want: ErrTruncated,
		},
		{
			name: "no headers terminator",
			wire: "SEND\ndestination:/d\n",
			want: ErrTruncated,
		},
		{
			name: "content-length longer than body",
			wire: "SEND\ndestination:/d\ncontent-length:10\n\nab\x00",
			want: ErrTruncated,
		},
		{
			name: "content-length not at terminator",
			wire: "SEND\ndestination:/d\ncontent-length:1\n\nab\x00",
			want: ErrLengthMismatch,
		},
		{
			name: "NUL in body without content-length",
			wire: "SEND\ndestination:/d\n\na\x00b\x00",
			want: ErrLengthMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.wire))
			if !errors.Is(err, tt.want) {
				t.Errorf("Parse error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParse_MissingHeader(t *testing.T) {
	_, err := Parse([]byte("SEND\n\n\x00"))
	var missing *MissingHeaderError
	if !errors.As(err, &missing) {
		t.Fatalf("Parse error = %v, want MissingHeaderError", err)
	}
	if missing.Name != HdrDestination {
		t.Errorf("missing header = %q, want %q", missing.Name, HdrDestination)
	}
}

func TestParse_DuplicateHeadersKeepFirst(t *testing.T) {
	wire := "MESSAGE\ndestination:/a\ndestination:/b\nmessage-id:1\nsubscription:0\n\n\x00"
	frame, err := Parse([]byte(wire))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	dest, _ := frame.Header(HdrDestination)
	if dest != "/a" {
		t.Errorf("destination = %q, want %q", dest, "/a")
	}
	count := 0
	for _, h := range frame.Headers {
		if h.Name == HdrDestination {
			count++
		}
	}
	if count != 1 {
		t.Errorf("kept %d destination headers, want 1", count)
	}
}

func TestParse_CRLFLines(t *testing.T) {
	wire := "RECEIPT\r\nreceipt-id:r7\r\n\r\n\x00"
	frame, err := Parse([]byte(wire))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	id, _ := frame.Header(HdrReceiptID)
	if id != "r7" {
		t.Errorf("receipt-id = %q, want r7", id)
	}
}

func TestMarshal_RejectsUncoveredNUL(t *testing.T) {
	f := NewFrame(CommandSend).AddHeader(HdrDestination, "/d")
	f.Body = []byte{'a', 0}
	if _, err := f.Marshal(); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("Marshal error = %v, want %v", err, ErrLengthMismatch)
	}
}

func TestMarshal_WireGrammar(t *testing.T) {
	f := NewFrame(CommandSubscribe).
		AddHeader(HdrID, "0").
		AddHeader(HdrDestination, "/passengers").
		AddHeader(HdrAck, "auto")
	wire, err := f.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := "SUBSCRIBE\nid:0\ndestination:/passengers\nack:auto\n\n\x00"
	if string(wire) != want {
		t.Errorf("wire = %q, want %q", wire, want)
	}
	if !strings.HasSuffix(string(wire), "\x00") {
		t.Error("frame must end with NUL")
	}
}
