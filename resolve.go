package nrfmodem

import (
	"net/netip"
)

// MaxHostnameLen is the longest hostname the resolver accepts.
const MaxHostnameLen = 256

// Resolve returns one address for hostname. A literal address is returned
// as is without touching the resolver. Otherwise the first record of the
// preferred family wins (FamilyEither prefers IPv4); when there is none the
// last record returned is used.
func Resolve(r Resolver, hostname string, family Family) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(hostname); err == nil {
		return addr, nil
	}
	for i := 0; i < len(hostname); i++ {
		if hostname[i] >= 0x80 {
			return netip.Addr{}, ErrHostnameNotASCII
		}
	}
	if len(hostname) > MaxHostnameLen {
		return netip.Addr{}, ErrHostnameTooLong
	}
	if r == nil {
		return netip.Addr{}, ErrConfigRequired
	}

	want := family
	if want == FamilyEither {
		want = FamilyV4
	}
	records, err := r.LookupHost(hostname, want)
	if err != nil {
		return netip.Addr{}, err
	}
	return pickAddr(records, want)
}

func pickAddr(records []AddrRecord, want Family) (netip.Addr, error) {
	var found netip.Addr
	for _, rec := range records {
		if rec.Family != FamilyV4 && rec.Family != FamilyV6 {
			continue
		}
		found = rec.Addr
		if rec.Family == want {
			break
		}
	}
	if !found.IsValid() {
		return netip.Addr{}, ErrAddressNotFound
	}
	return found, nil
}

// Resolve looks hostname up through the configured resolver. The cellular
// link must already be up, typically through a connected LinkChannel.
func (m *Modem) Resolve(hostname string, family Family) (netip.Addr, error) {
	m.Lock()
	defer m.Unlock()

	addr, err := Resolve(m.resolver, hostname, family)
	if err != nil {
		m.logger.Debug("resolve failed", "host", hostname, "family", family.String(), "error", err)
		return addr, err
	}
	m.logger.Debug("resolved", "host", hostname, "addr", addr.String())
	return addr, nil
}
