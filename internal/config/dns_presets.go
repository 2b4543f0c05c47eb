package config

// DefaultDNSPresets returns the built-in DoH/DoT resolver catalog. Supplements
// the DNS candidate source with the concrete presets the original
// implementation ships (original_source/.../ip_pool/config.rs preset table).
func DefaultDNSPresets() map[string]DNSResolverPreset {
	return map[string]DNSResolverPreset{
		"cf-doh": {
			Server:      "https://cloudflare-dns.com/dns-query",
			Type:        string(DNSProtocolDoH),
			Description: "Cloudflare DNS over HTTPS",
		},
		"cf-dot": {
			Server:      "1.1.1.1:853",
			Type:        string(DNSProtocolDoT),
			SNI:         "cloudflare-dns.com",
			Description: "Cloudflare DNS over TLS",
		},
		"google-doh": {
			Server:      "https://dns.google/dns-query",
			Type:        string(DNSProtocolDoH),
			Description: "Google Public DNS over HTTPS",
		},
		"aliyun": {
			Server:      "223.5.5.5:53",
			Type:        string(DNSProtocolUDP),
			Description: "Alibaba Cloud public DNS",
		},
	}
}
