package services

import (
	"context"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"
)

// HealthStatus is the backend's /health response.
type HealthStatus struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	IP         string    `json:"ip"`
	HostID     string    `json:"hostId"`
	Region     string    `json:"region,omitempty"`
	Country    string    `json:"country,omitempty"`
	IsDomestic *bool     `json:"isDomestic,omitempty"`
}

// Healthy reports whether the backend said "ok".
func (h *HealthStatus) Healthy() bool {
	return strings.EqualFold(h.Status, "ok") || strings.EqualFold(h.Status, "healthy")
}

// Region is where a host is served from.
type Region struct {
	IP         string `json:"ip"`
	HostID     string `json:"hostId"`
	Domestic   bool   `json:"isDomestic"`
	Country    string `json:"country"`
	RegionName string `json:"region"`
}

// domesticBlocks are the first octets of address space allocated in mainland China.
var domesticBlocks = []int{
	1, 14, 27, 36, 39, 42, 49, 58, 59, 60, 61,
	101, 103, 106, 110, 111, 112, 113, 114, 115, 116, 117, 118, 119, 120, 121, 122, 123, 124, 125, 126,
	171, 175, 180, 182, 183,
	202, 203, 210, 211, 218, 219, 220, 221, 222, 223,
}

var privatePrefixes = []string{"192.168.", "10.", "172.", "127.0.0.1", "localhost"}

// IsDomesticIP classifies ip by its first octet. Private and loopback addresses count as domestic.
func IsDomesticIP(ip string) bool {
	for _, p := range privatePrefixes {
		if strings.HasPrefix(ip, p) {
			return true
		}
	}

	first, _, ok := strings.Cut(ip, ".")
	if !ok {
		return false
	}
	octet, err := strconv.Atoi(first)
	if err != nil {
		return false
	}
	return slices.Contains(domesticBlocks, octet)
}

// RegionFor builds the region for an address and host.
func RegionFor(ip, hostID string) Region {
	if IsDomesticIP(ip) {
		return Region{IP: ip, HostID: hostID, Domestic: true, Country: "CN", RegionName: "domestic"}
	}
	return Region{IP: ip, HostID: hostID, Country: "US", RegionName: "international"}
}

// unknownRegion is reported when the host cannot be resolved.
func unknownRegion() Region {
	return Region{IP: "unknown", HostID: "unknown", Country: "US", RegionName: "international"}
}

// HealthService reports backend reachability and where requests are served from.
type HealthService struct {
	api    *APIService
	lookup func(ctx context.Context, host string) ([]string, error)
}

func NewHealthService(api *APIService) *HealthService {
	return &HealthService{api: api, lookup: net.DefaultResolver.LookupHost}
}

// Check calls /health on the short tier.
func (s *HealthService) Check(ctx context.Context) (*HealthStatus, error) {
	resp, err := s.api.Health(ctx)
	if err != nil {
		return nil, err
	}

	var status HealthStatus
	if err := resp.Decode(&status); err != nil {
		return nil, err
	}
	if status.Region == "" && status.IP != "" {
		r := RegionFor(status.IP, status.HostID)
		status.Region = r.RegionName
		status.Country = r.Country
		status.IsDomestic = &r.Domestic
	}
	return &status, nil
}

// DetectRegion resolves the backend host and classifies its first address.
// Lookup failures fall back to an international region with unknown address.
func (s *HealthService) DetectRegion(ctx context.Context) Region {
	host := hostOf(s.api.BaseURL())
	if host == "" {
		return unknownRegion()
	}
	if ip := net.ParseIP(host); ip != nil {
		return RegionFor(ip.String(), host)
	}
	if host == "localhost" {
		return RegionFor(host, host)
	}

	addrs, err := s.lookup(ctx, host)
	if err != nil || len(addrs) == 0 {
		s.api.logger.Debug("region lookup failed", "host", host, "err", err)
		return unknownRegion()
	}
	return RegionFor(addrs[0], host)
}

func hostOf(baseURL string) string {
	rest := baseURL
	if _, after, ok := strings.Cut(rest, "://"); ok {
		rest = after
	}
	rest, _, _ = strings.Cut(rest, "/")
	if h, _, err := net.SplitHostPort(rest); err == nil {
		return h
	}
	return strings.Trim(rest, "[]")
}
