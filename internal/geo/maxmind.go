package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/maxminddb-golang"
)

// Info is the location data attached to ingested pixel events.
type Info struct {
	CountryCode string
	Country     string
	Region      string
	City        string
}

// Resolver looks up request IPs in a MaxMind GeoLite2 city database. A nil
// Resolver is valid and resolves nothing, so deployments without a
// database file skip enrichment cleanly.
type Resolver struct {
	reader *maxminddb.Reader
}

// cityRecord maps the subset of the GeoLite2 city schema we read.
type cityRecord struct {
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Subdivisions []struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"subdivisions"`
}

// NewResolver opens a MaxMind database file. An empty path returns a nil
// resolver with no error.
func NewResolver(dbPath string) (*Resolver, error) {
	if dbPath == "" {
		return nil, nil
	}

	reader, err := maxminddb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}

	return &Resolver{reader: reader}, nil
}

// Lookup returns location info for an IP address. A nil resolver or an
// unparseable IP yields nil without error; enrichment is best effort.
func (r *Resolver) Lookup(ip string) (*Info, error) {
	if r == nil || r.reader == nil {
		return nil, nil
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, nil
	}

	var record cityRecord
	if err := r.reader.Lookup(parsed, &record); err != nil {
		return nil, fmt.Errorf("failed to look up IP: %w", err)
	}

	info := &Info{
		CountryCode: record.Country.ISOCode,
		Country:     record.Country.Names["en"],
		City:        record.City.Names["en"],
	}
	if len(record.Subdivisions) > 0 {
		info.Region = record.Subdivisions[0].Names["en"]
	}

	return info, nil
}

// Close closes the underlying database.
func (r *Resolver) Close() error {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.reader.Close()
}
