package helpers

import (
	"net/http/httptest"
	"testing"
)

func TestSha1(t *testing.T) {
	message := "Sha1(%q) = %s should be %s"

	src := "http://example.com/"
	expected := "9c17e047f58f9220a7008d4f18152fee4d111d14"
	if got := Sha1([]byte(src)); got != expected {
		t.Errorf(message, src, got, expected)
	}

	if got := Sha1(nil); got != "da39a3ee5e6b4b0d3255bfef95601890afd80709" {
		t.Errorf(message, "", got, "da39a3ee5e6b4b0d3255bfef95601890afd80709")
	}
}

func TestDSN(t *testing.T) {
	c := DBConfig{Host: "db", Port: 5432, Database: "pagecache", Username: "u", Password: "p"}
	expected := "user=u dbname=pagecache host=db port=5432 password=p sslmode=disable"
	if got := c.DSN(); got != expected {
		t.Errorf("DSN() = %s should be %s", got, expected)
	}
}

func TestGetRequestIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	if ip := GetRequestIP(r); ip.String() != "192.0.2.1" {
		t.Errorf("GetRequestIP() = %s should be 192.0.2.1", ip)
	}
}
