package pac

import (
	"log/slog"
	"net"
	"strings"
)

// ipIsInNet reports whether ipStr lies in the network given by pattern and
// mask ("10.0.0.0", "255.0.0.0"). A CIDR pattern with an empty mask is
// accepted as well.
func ipIsInNet(ipStr, patternStr, maskStr string) bool {
	ip := net.ParseIP(strings.Trim(ipStr, "[]"))
	if ip == nil {
		slog.Debug("PAC isInNet: failed to parse IP address", "ip", ipStr)
		return false
	}

	if maskStr == "" {
		if _, ipNet, err := net.ParseCIDR(patternStr); err == nil {
			return ipNet.Contains(ip)
		}
	}

	patternIP := net.ParseIP(patternStr)
	maskIP := net.ParseIP(maskStr)
	if patternIP == nil || maskIP == nil {
		slog.Warn("PAC isInNet: failed to parse pattern or mask", "pattern", patternStr, "mask", maskStr)
		return false
	}

	if ip4, pattern4, mask4 := ip.To4(), patternIP.To4(), maskIP.To4(); ip4 != nil && pattern4 != nil && mask4 != nil {
		mask := net.IPMask(mask4)
		return ip4.Mask(mask).Equal(pattern4.Mask(mask))
	}
	if ip.To4() == nil && patternIP.To4() == nil && maskIP.To4() == nil {
		mask := net.IPMask(maskIP.To16())
		return ip.To16().Mask(mask).Equal(patternIP.To16().Mask(mask))
	}

	slog.Debug("PAC isInNet: address family mismatch", "ip", ipStr, "pattern", patternStr, "mask", maskStr)
	return false
}

// findMyIP returns the first usable IPv4 interface address, then the first
// global IPv6 one, falling back to 127.0.0.1.
func findMyIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		slog.Warn("PAC myIpAddress: failed to get interface addresses", "error", err)
		return "127.0.0.1"
	}

	var firstIPv6Global string
	for _, address := range addrs {
		ipnet, ok := address.(*net.IPNet)
		if !ok || ipnet.IP == nil {
			continue
		}
		ip := ipnet.IP
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() || ip.IsMulticast() {
			continue
		}
		if ip4 := ip.To4(); ip4 != nil {
			return ip4.String()
		}
		if firstIPv6Global == "" && ip.IsGlobalUnicast() {
			firstIPv6Global = ip.String()
		}
	}

	if firstIPv6Global != "" {
		return firstIPv6Global
	}
	slog.Warn("PAC myIpAddress: no suitable interface address, falling back to 127.0.0.1")
	return "127.0.0.1"
}
