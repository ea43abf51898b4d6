package netutil

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

func FirstUsableIPv4() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, iface := range ifaces {
		if iface.Flags&(net.FlagUp|net.FlagLoopback) != net.FlagUp {
			continue
		}
		addrs, _ := iface.Addrs()
		for _, a := range addrs {
			if ipn, ok := a.(*net.IPNet); ok && ipn.IP.To4() != nil {
				ip := ipn.IP.To4()
				if !ip.IsLoopback() {
					return ip.String(), nil
				}
			}
		}
	}
	return "", fmt.Errorf("no IPv4 found")
}

// BaseURL returns the URL a remote mpv uses to reach our HTTP server. An
// explicit public URL wins; otherwise the first LAN address is used.
func BaseURL(publicURL string, port int) (string, error) {
	if publicURL != "" {
		u, err := url.Parse(publicURL)
		if err != nil {
			return "", fmt.Errorf("invalid public url %q: %w", publicURL, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
			return "", fmt.Errorf("invalid public url %q: need http(s)://host[:port]", publicURL)
		}
		return strings.TrimRight(publicURL, "/"), nil
	}

	ip, err := FirstUsableIPv4()
	if err != nil {
		return "", err
	}
	return "http://" + net.JoinHostPort(ip, strconv.Itoa(port)), nil
}
