package platform

import (
	"fmt"
	"sort"
	"sync"
)

var (
	platformOnce sync.Once
	platforms    map[string]*Platform
)

func buildPlatforms() {
	platforms = make(map[string]*Platform)
	for _, p := range []*Platform{
		NewARMv6(),
		NewARMv6M(),
		NewARMv6MSim(),
		NewARMv7M(),
		NewARMv8A(),
		NewAVR(),
	} {
		platforms[p.Name()] = p
	}
}

// ForName returns the platform description with the given tag.
func ForName(name string) (*Platform, error) {
	platformOnce.Do(buildPlatforms)
	p, ok := platforms[name]
	if !ok {
		return nil, fmt.Errorf("unknown platform %q", name)
	}
	return p, nil
}

// Names returns the known platform tags in sorted order.
func Names() []string {
	platformOnce.Do(buildPlatforms)
	names := make([]string, 0, len(platforms))
	for name := range platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
