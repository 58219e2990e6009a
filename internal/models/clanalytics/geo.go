package clanalytics

import (
	"fmt"
	"net/netip"

	"github.com/oschwald/geoip2-golang/v2"
)

// GeoResolver donne le pays et la ville d'une adresse IP
type GeoResolver interface {
	Lookup(ip string) (country, city string)
	Close() error
}

type geoIP struct {
	reader *geoip2.Reader
}

// OpenGeoIP ouvre une base GeoLite2-City, nil si aucun chemin n'est configuré
func OpenGeoIP(path string) (GeoResolver, error) {
	if path == "" {
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ouverture base geoip %s: %w", path, err)
	}
	return &geoIP{reader: reader}, nil
}

func (g *geoIP) Lookup(ip string) (string, string) {
	addr, err := netip.ParseAddr(ip)
	if err != nil || addr.IsLoopback() || addr.IsPrivate() {
		return "", ""
	}
	record, err := g.reader.City(addr)
	if err != nil || record == nil {
		return "", ""
	}
	return record.Country.ISOCode, record.City.Names.English
}

func (g *geoIP) Close() error {
	return g.reader.Close()
}
