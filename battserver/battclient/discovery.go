package battclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the DNS-SD type the daemon registers.
const ServiceType = "_battid._tcp"

type Service struct {
	Instance string
	Chips    []string
	Addr     string
}

// URL returns the base URL of the daemon.
func (s Service) URL() string {
	return "http://" + s.Addr
}

func serviceFromEntry(m *zeroconf.ServiceEntry) (Service, bool) {
	var addr string
	if len(m.AddrIPv4) > 0 {
		addr = m.AddrIPv4[0].String()
	} else if len(m.AddrIPv6) > 0 {
		addr = "[" + m.AddrIPv6[0].String() + "]"
	} else {
		return Service{}, false
	}

	s := Service{
		Instance: m.Instance,
		Addr:     addr + fmt.Sprintf(":%d", m.Port),
	}

	for _, m := range m.Text {
		kv := strings.SplitN(m, "=", 2)
		if len(kv) == 2 && strings.ToLower(kv[0]) == "chips" && kv[1] != "" {
			s.Chips = strings.Split(kv[1], ",")
		}
	}

	return s, true
}

// Discover browses the local network for daemons until ctx is done. When
// instance is not empty only that daemon is returned, as soon as it is seen.
func Discover(ctx context.Context, instance string) ([]Service, error) {
	/* The resolver is not reused as we are likely switching between networks
	   while using this */
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, ServiceType, "local.", results); err != nil {
		return nil, err
	}

	var services []Service
	seen := make(map[string]bool)

	for m := range results {
		s, ok := serviceFromEntry(m)
		if !ok || seen[s.Instance] {
			continue
		}

		if instance != "" {
			if s.Instance == instance {
				return []Service{s}, nil
			}
			continue
		}

		seen[s.Instance] = true
		services = append(services, s)
	}

	if instance != "" {
		return nil, fmt.Errorf("service %q not found", instance)
	}

	return services, nil
}
