// Package geo is the geographic enrichment collaborator: it annotates
// assembled snapshots with per-pod country codes and a region
// distribution. The scoring core never reads these fields.
package geo

import (
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/maxminddb-golang"

	"PodAtlas/internal/logger"
	"PodAtlas/internal/snapshot"
)

// countryRecord is the slice of the MMDB record we read.
type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

// Resolver looks up country codes in a local MMDB database.
type Resolver struct {
	db *maxminddb.Reader // db is nil when no database is configured
}

// Open loads the MMDB database at path. An empty path yields a
// disabled resolver whose lookups return "".
func Open(path string) (*Resolver, error) {
	if path == "" {
		return &Resolver{}, nil
	}

	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s:\n%w", path, err)
	}

	return &Resolver{db: db}, nil
}

// Country returns the ISO 3166-1 alpha-2 country code for a pod
// address, or "" when unknown. Lookup failures are tolerated, never
// propagated.
func (r *Resolver) Country(address string) string {
	if r.db == nil {
		return ""
	}

	ip := net.ParseIP(hostOnly(address))
	if ip == nil {
		return ""
	}

	var record countryRecord
	if err := r.db.Lookup(ip, &record); err != nil {
		logger.Debug("geoip lookup failed", "address", address, "error", err)
		return ""
	}

	return record.Country.ISOCode
}

// Annotate fills per-pod countries and the region distribution of a
// freshly assembled snapshot. It runs before the snapshot is published
// and is the only writer of these fields.
func (r *Resolver) Annotate(snap *snapshot.Snapshot) {
	if r.db == nil || snap == nil {
		return
	}

	regions := make(map[string]int)

	for i := range snap.Pods {
		country := r.Country(snap.Pods[i].Address)
		snap.Pods[i].Country = country

		if country != "" {
			regions[country]++
		}
	}

	if len(regions) > 0 {
		snap.Stats.Regions = regions
	}
}

// Close releases the database.
func (r *Resolver) Close() error {
	if r.db == nil {
		return nil
	}

	return r.db.Close()
}

// hostOnly strips an optional port from a pod address.
func hostOnly(address string) string {
	if !strings.Contains(address, ":") {
		return address
	}

	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return address
	}

	return host
}
