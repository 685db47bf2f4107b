package inspectcore

import (
	"regexp"
	"sync"
)

// SignatureDB is the process-shared, read-locked signature database the
// WAF Scanner consults (spec.md §4.H, §5: "shared mutable state ... the
// signature database"). A single writer may call Swap to install a new
// set of signatures; readers take the RLock for the duration of one scan.
type SignatureDB struct {
	mu         sync.RWMutex
	signatures []Signature
	compiled   *SignatureCache
}

// NewSignatureDB builds a database from signatures, compiling none of the
// patterns eagerly - the cache fills lazily as sections are scanned.
func NewSignatureDB(signatures []Signature) *SignatureDB {
	return &SignatureDB{signatures: signatures, compiled: NewSignatureCache()}
}

// Swap atomically replaces the signature set.
func (db *SignatureDB) Swap(signatures []Signature) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.signatures = signatures
	db.compiled = NewSignatureCache()
}

// scan tries every signature against value, returning the first match's id
// and score, or ok=false. Scanning a fixed signature list in its declared
// order keeps match order deterministic given a deterministic field order
// upstream (spec.md §9 "non-determinism risk").
func (db *SignatureDB) scan(value string) (id string, score int, ok bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, sig := range db.signatures {
		re, found := db.compiled.Get(sig.ID)
		if !found {
			compiled, err := regexp.Compile(sig.Pattern)
			if err != nil {
				continue
			}
			db.compiled.Set(sig.ID, compiled)
			re = compiled
		}
		if re.MatchString(value) {
			return sig.ID, sig.Score, true
		}
	}
	return "", 0, false
}

// WAFScanner evaluates a request against a WAF profile and a signature
// database (spec.md §4.H).
type WAFScanner struct {
	db *SignatureDB
}

// NewWAFScanner builds a scanner over db. A nil db always fails closed,
// matching the "signature database unavailable" policy (spec.md §7).
func NewWAFScanner(db *SignatureDB) *WAFScanner {
	return &WAFScanner{db: db}
}

// section pairs a request's named field container with the profile
// restriction that governs it.
type section struct {
	name      string
	container *FieldContainer
}

// Scan inspects every in-scope section of req against profile, returning
// a block Decision as soon as a structural or name restriction fails, a
// block Decision when the signature score summed over all scanned fields
// reaches profile.Threshold (a positive threshold), and PassDecision()
// otherwise. Structural restrictions (max_count,
// max_length) are checked before any pattern matching; a name-specific
// restriction's regex, when present, is checked in place of signature
// matching for that name. Fields are scanned in sorted-key order via
// FieldContainer.Range to keep match order deterministic (spec.md §9).
// The second and third return values expose the accumulated score and
// matched signature ids for callers that need the real scan state (for
// example debugScan's trace), independent of the pass/block verdict.
func (s *WAFScanner) Scan(req *RequestRecord, profile *WAFProfile) (Decision, int, []string) {
	if s.db == nil {
		return genericBlockDecision("waf-unavailable"), 0, nil
	}

	path := NewFieldContainer()
	path.Add("path", req.Path)

	sections := []section{
		{name: "headers", container: req.Headers},
		{name: "cookies", container: req.Cookies},
		{name: "args", container: req.Args},
		{name: "path", container: path},
	}

	totalScore := 0
	var hits []string

	for _, sec := range sections {
		restriction := profile.Sections[sec.name]
		if restriction == nil {
			continue
		}

		if restriction.MaxCount > 0 && sec.container.Len() > restriction.MaxCount {
			return wafDecision("", sec.name, "max_count exceeded"), totalScore, hits
		}

		var blockDecision *Decision
		sec.container.Range(func(name, value string) bool {
			if restriction.MaxLength > 0 && len(value) > restriction.MaxLength {
				d := wafDecision("", sec.name, "max_length exceeded")
				blockDecision = &d
				return false
			}

			if nr, ok := restriction.Names[name]; ok && nr.Pattern != nil {
				if !nr.Pattern.MatchString(value) {
					d := wafDecision(name, sec.name, "name restriction violated")
					blockDecision = &d
					return false
				}
				return true
			}

			if restriction.IgnoreAlphanum && isAlphanumeric(value) {
				return true
			}

			if id, score, ok := s.db.scan(value); ok {
				totalScore += score
				hits = append(hits, id)
			}
			return true
		})
		if blockDecision != nil {
			return *blockDecision, totalScore, hits
		}
	}

	if totalScore >= profile.Threshold && profile.Threshold > 0 {
		return wafDecision(lastOrEmpty(hits), "", hits), totalScore, hits
	}
	return PassDecision(), totalScore, hits
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return len(s) > 0
}

func lastOrEmpty(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1]
}
