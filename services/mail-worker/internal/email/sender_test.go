package email

import (
	"strings"
	"testing"
)

func TestBuildMessage(t *testing.T) {
	msg := buildMessage(address("Hourbook", "no-reply@hourbook.local"), address("", "diego@example.com"), "Agendamento cancelado", "linha 1\nlinha 2")

	if !strings.Contains(msg, "From: Hourbook <no-reply@hourbook.local>\r\n") {
		t.Fatalf("missing from header:\n%s", msg)
	}
	if !strings.Contains(msg, "To: diego@example.com\r\n") {
		t.Fatalf("missing to header:\n%s", msg)
	}
	if !strings.Contains(msg, "Subject: Agendamento cancelado\r\n") {
		t.Fatalf("ascii subject must not be encoded:\n%s", msg)
	}
	if !strings.HasSuffix(msg, "linha 1\r\nlinha 2\r\n") {
		t.Fatalf("body lines must use CRLF:\n%q", msg)
	}
}

func TestAddress_EncodesNonASCII(t *testing.T) {
	got := address("Mário", "mario@example.com")
	if !strings.HasPrefix(got, "=?utf-8?q?") || !strings.HasSuffix(got, " <mario@example.com>") {
		t.Fatalf("unexpected encoded address %q", got)
	}
}
