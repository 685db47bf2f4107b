package inspectcore

import (
	"net"
	"net/netip"

	"github.com/oschwald/maxminddb-golang"
	"github.com/phemmer/go-iptrie"
	"go.uber.org/zap"
)

// GeoIPRecord mirrors the subset of a MaxMind country database record the
// tagger needs.
type GeoIPRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

// IPReputationSet is a read-only CIDR trie of known IP categories (for
// example a bad-reputation or known-proxy list), consulted by the Tagger
// to attach the set's flat tag when the client address is a member.
type IPReputationSet struct {
	trie *iptrie.Trie
	tag  string
}

// NewIPReputationSet builds a trie from a list of bare IP addresses or
// CIDRs and associates it with the flat tag to attach on membership. This
// performs no disk I/O - loading the list from a file is the embedder's
// concern (spec.md §1 Non-goals: persistence of configuration).
func NewIPReputationSet(tag string, entries []string) *IPReputationSet {
	trie := iptrie.NewTrie()
	for _, entry := range entries {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			prefix, err = netip.ParsePrefix(appendCIDR(entry))
			if err != nil {
				continue
			}
		}
		trie.Insert(prefix, nil)
	}
	return &IPReputationSet{trie: trie, tag: tag}
}

// Contains reports whether ip falls within the set.
func (s *IPReputationSet) Contains(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	_, _, ok := s.trie.Get(addr)
	return ok
}

// Tagger applies global tagging rules to a request record, attaching the
// client-IP tag, IP reputation-set tags, GeoIP country tags, and
// header-heuristic tags (spec.md §4.D). It produces no ASN tags. The five
// qualified urlmap/acl/waf tags are inserted separately by the pipeline
// once the URL-map match is known.
type Tagger struct {
	logger     *zap.Logger
	geoIP      *maxminddb.Reader
	reputation []*IPReputationSet
	// HeaderHeuristics maps a header name to the flat tag inserted when
	// that header is present on the request (a simple stand-in for the
	// richer heuristic rule language the embedder may configure).
	HeaderHeuristics map[string]string
}

// NewTagger constructs a Tagger. geoIP may be nil, in which case no
// "country:" tags are produced.
func NewTagger(logger *zap.Logger, geoIP *maxminddb.Reader, reputation []*IPReputationSet) *Tagger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tagger{
		logger:           logger,
		geoIP:            geoIP,
		reputation:       reputation,
		HeaderHeuristics: make(map[string]string),
	}
}

// Tag produces the tag set for a request, prior to the five urlmap/acl/waf
// qualified tags the pipeline appends once the URL-map is resolved.
func (t *Tagger) Tag(req *RequestRecord) *TagSet {
	tags := NewTagSet()

	tags.InsertQualified(TagFamilyIP, req.ClientIP)

	for _, set := range t.reputation {
		if set.Contains(req.ClientIP) {
			tags.Insert(set.tag)
		}
	}

	if t.geoIP != nil {
		if country, ok := t.lookupCountry(req.ClientIP); ok {
			tags.InsertQualified(TagFamilyCountry, country)
		}
	}

	for header, tag := range t.HeaderHeuristics {
		if _, present := req.Headers.Get(header); present {
			tags.Insert(tag)
		}
	}

	return tags
}

func (t *Tagger) lookupCountry(ip string) (string, bool) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "", false
	}
	var record GeoIPRecord
	if err := t.geoIP.Lookup(net.IP(addr.AsSlice()), &record); err != nil {
		t.logger.Debug("geoip lookup failed", zap.String("ip", ip), zap.Error(err))
		return "", false
	}
	if record.Country.ISOCode == "" {
		return "", false
	}
	return record.Country.ISOCode, true
}

// TagRequest applies t and then stamps the five URL-map-derived qualified
// tags described in spec.md §4.D.
func TagRequest(t *Tagger, req *RequestRecord, hostMapName string, um *URLMap) *TagSet {
	tags := t.Tag(req)
	tags.InsertQualified(TagFamilyURLMap, hostMapName)
	tags.InsertQualified(TagFamilyURLMapEntry, um.Name)
	tags.InsertQualified(TagFamilyACLID, um.ACLProfile.ID)
	tags.InsertQualified(TagFamilyACLName, um.ACLProfile.Name)
	tags.InsertQualified(TagFamilyWAFID, um.WAFProfile.Name)
	return tags
}
