package channel

import (
	"net/textproto"
	"testing"
)

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
	}{
		{400, true},
		{404, true},
		{422, true},
		{429, false},
		{500, false},
		{502, false},
		{503, false},
		{418, false}, // unexpected codes are retried
	}
	for _, tt := range tests {
		serr := classifyHTTPStatus(tt.status, "body")
		if serr.Permanent != tt.permanent {
			t.Errorf("status %d: permanent = %v, want %v", tt.status, serr.Permanent, tt.permanent)
		}
	}
}

func TestClassifySMTPError(t *testing.T) {
	permanent := classifySMTPError(&textproto.Error{Code: 550, Msg: "mailbox unavailable"})
	if !permanent.Permanent {
		t.Error("5xx SMTP replies are permanent")
	}

	transient := classifySMTPError(&textproto.Error{Code: 421, Msg: "try again later"})
	if transient.Permanent {
		t.Error("4xx SMTP replies are transient")
	}

	network := classifySMTPError(errTimeout{})
	if network.Permanent {
		t.Error("network errors are transient")
	}
}

type errTimeout struct{}

func (errTimeout) Error() string { return "dial tcp: i/o timeout" }

func TestSanitizeHeader(t *testing.T) {
	if got := sanitizeHeader("Subject\r\nBcc: evil@example.com"); got != "SubjectBcc: evil@example.com" {
		t.Errorf("CRLF not stripped: %q", got)
	}
}
