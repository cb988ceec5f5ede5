package device

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// knownDeviceEntry is one value in known_devices.yaml, keyed by slug:
//
//	my_beacon:
//	  name: My Beacon
//	  mac: BLE_IBC_E2C56DB5DFFB48D2B060D0F5A71096E00001
//	  track: true
//	  consider_home: 180
//	  icon:
//	  picture:
type knownDeviceEntry struct {
	Name         string      `yaml:"name"`
	MAC          string      `yaml:"mac"`
	Track        *bool       `yaml:"track"`
	ConsiderHome *timePeriod `yaml:"consider_home"`
	Icon         string      `yaml:"icon"`
	Picture      string      `yaml:"picture"`
}

// timePeriod accepts either a number of seconds or "HH:MM[:SS]".
type timePeriod time.Duration

func (p *timePeriod) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("consider_home: expected scalar, got node kind %d", node.Kind)
	}
	d, err := parseTimePeriod(node.Value)
	if err != nil {
		return fmt.Errorf("consider_home: %w", err)
	}
	*p = timePeriod(d)
	return nil
}

func parseTimePeriod(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time period %q", s)
	}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid time period %q", s)
		}
		total += time.Duration(n) * units[i]
	}
	return total, nil
}

// ParseKnownDevices decodes a known_devices.yaml document.
//
// Entries without a mac are skipped. Entries that fail validation are
// dropped and reported in the returned error (wrapping ErrInvalidKnownDevices
// and ErrInvalidKnownDevice) while the valid entries are still returned. A
// document that does not parse wraps only ErrInvalidKnownDevices. Devices are
// sorted by slug.
func ParseKnownDevices(data []byte) ([]KnownDevice, error) {
	var doc map[string]knownDeviceEntry
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKnownDevices, err)
	}

	slugs := make([]string, 0, len(doc))
	for slug := range doc {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	devices := make([]KnownDevice, 0, len(doc))
	var errs []error
	for _, slug := range slugs {
		entry := doc[slug]
		if strings.TrimSpace(entry.MAC) == "" {
			continue
		}

		d := KnownDevice{
			MAC:     strings.TrimSpace(entry.MAC),
			Name:    entry.Name,
			Icon:    entry.Icon,
			Picture: entry.Picture,
		}
		if d.Name == "" {
			d.Name = slug
		}
		if entry.Track != nil {
			d.Track = *entry.Track
		}
		if entry.ConsiderHome != nil {
			d.ConsiderHome = time.Duration(*entry.ConsiderHome)
		}

		if err := ValidateKnownDevice(&d); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", slug, err))
			continue
		}
		devices = append(devices, d)
	}

	if len(errs) > 0 {
		return devices, fmt.Errorf("%w: %w", ErrInvalidKnownDevices, errors.Join(errs...))
	}
	return devices, nil
}

// LoadKnownDevicesFile reads and parses a known_devices.yaml file.
// A missing file yields an empty list and no error.
func LoadKnownDevicesFile(path string) ([]KnownDevice, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading known devices file: %w", err)
	}
	return ParseKnownDevices(data)
}
