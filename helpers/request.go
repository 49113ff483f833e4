package helpers

import (
	"net"
	"net/http"
)

// GetRequestIP returns the IP address of the remote end of the request
func GetRequestIP(request *http.Request) net.IP {
	host, _, _ := net.SplitHostPort(request.RemoteAddr)
	return net.ParseIP(host)
}
