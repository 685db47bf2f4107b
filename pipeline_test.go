package inspectcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func buildPipeline(t *testing.T, snap *Snapshot, limiter *RateLimitEvaluator, db *SignatureDB, gh Grasshopper) *Pipeline {
	t.Helper()
	store := NewConfigStore(snap)
	tagger := NewTagger(nil, nil, nil)
	if limiter == nil {
		limiter = NewRateLimitEvaluator(NewMemoryCounterStore(), 0, nil)
	}
	if db == nil {
		db = NewSignatureDB(nil)
	}
	return NewPipeline(store, tagger, limiter, NewWAFScanner(db), gh, nil)
}

func metaFor(authority, path, xff string) map[string]string {
	m := map[string]string{":authority": authority, ":path": path, ":method": "GET"}
	if xff != "" {
		m["x-forwarded-for"] = xff
	}
	return m
}

// S1: no host-map matches -> Pass.
func TestPipeline_S1_NoHostMapMatchPasses(t *testing.T) {
	snap := NewSnapshot([]*HostMap{
		{Name: "other", AuthorityExact: "other.x", URLMaps: []*URLMap{}},
	})
	p := buildPipeline(t, snap, nil, nil, nil)
	req := BuildRequest(metaFor("api.x", "/", "1.1.1.1"), RequestMetadata{}, "9.9.9.9:1")

	dec := p.Inspect(context.Background(), req)
	assert.True(t, dec.Pass)
}

// S2: host-map matches, ACL allow includes tag ip:1.1.1.1 -> Pass (bypass).
func TestPipeline_S2_ACLAllowBypasses(t *testing.T) {
	um := &URLMap{
		Name:       "root",
		PathExact:  "/",
		ACLProfile: &ACLProfile{ID: "acl1", Name: "acl1", Allow: []string{"ip:1.1.1.1"}},
		WAFProfile: &WAFProfile{},
	}
	snap := NewSnapshot([]*HostMap{
		{Name: "api", AuthorityExact: "api.x", URLMaps: []*URLMap{um}},
	})
	p := buildPipeline(t, snap, nil, nil, nil)
	req := BuildRequest(metaFor("api.x", "/", "1.1.1.1"), RequestMetadata{}, "9.9.9.9:1")

	dec := p.Inspect(context.Background(), req)
	assert.True(t, dec.Pass)
}

// S3: limit rule threshold 1, two identical requests -> pass then block.
func TestPipeline_S3_SecondRequestHitsLimit(t *testing.T) {
	rule := &RateLimitRule{ID: "r1", KeyFields: []string{"ip"}, Window: 60, Threshold: 1, Block: true}
	um := &URLMap{
		Name:       "root",
		PathExact:  "/",
		ACLProfile: &ACLProfile{ID: "acl1", Name: "acl1"},
		WAFProfile: &WAFProfile{},
		Limits:     []*RateLimitRule{rule},
	}
	snap := NewSnapshot([]*HostMap{
		{Name: "api", AuthorityExact: "api.x", URLMaps: []*URLMap{um}},
	})
	p := buildPipeline(t, snap, nil, nil, nil)
	req := BuildRequest(metaFor("api.x", "/", "2.2.2.2"), RequestMetadata{}, "9.9.9.9:1")

	first := p.Inspect(context.Background(), req)
	assert.True(t, first.Pass)

	second := p.Inspect(context.Background(), req)
	assert.False(t, second.Pass)
	assert.Equal(t, "limit", second.Action.Reason.Initiator)
}

// S4: deny_bot matches, grasshopper absent -> block code 3.
func TestPipeline_S4_BotDeniedNoGrasshopperBlocksCodeThree(t *testing.T) {
	um := &URLMap{
		Name:       "root",
		PathExact:  "/",
		ACLProfile: &ACLProfile{ID: "acl1", Name: "acl1", DenyBot: []string{"bot:curl"}},
		WAFProfile: &WAFProfile{},
	}
	snap := NewSnapshot([]*HostMap{
		{Name: "api", AuthorityExact: "api.x", URLMaps: []*URLMap{um}},
	})
	p := buildPipeline(t, snap, nil, nil, nil)
	p.Tagger.HeaderHeuristics["user-agent-curl"] = "bot:curl"

	meta := metaFor("api.x", "/", "2.2.2.2")
	meta["user-agent-curl"] = "curl/8"
	req := BuildRequest(meta, RequestMetadata{}, "9.9.9.9:1")

	dec := p.Inspect(context.Background(), req)
	assert.False(t, dec.Pass)
	assert.Equal(t, 3, *dec.Action.Reason.Code)
}

// S5: same as S4 but grasshopper present and user-agent present -> challenge issued.
func TestPipeline_S5_BotDeniedWithGrasshopperIssuesChallenge(t *testing.T) {
	um := &URLMap{
		Name:       "root",
		PathExact:  "/",
		ACLProfile: &ACLProfile{ID: "acl1", Name: "acl1", DenyBot: []string{"bot:curl"}},
		WAFProfile: &WAFProfile{},
	}
	snap := NewSnapshot([]*HostMap{
		{Name: "api", AuthorityExact: "api.x", URLMaps: []*URLMap{um}},
	})
	gh := &fakeGrasshopper{validToken: "nope", issueResult: Decision{Action: &Action{Status: 401, Content: "challenge"}}}
	p := buildPipeline(t, snap, nil, nil, gh)
	p.Tagger.HeaderHeuristics["user-agent-curl"] = "bot:curl"

	meta := metaFor("api.x", "/", "2.2.2.2")
	meta["user-agent-curl"] = "curl/8"
	meta["user-agent"] = "curl/8"
	req := BuildRequest(meta, RequestMetadata{}, "9.9.9.9:1")

	dec := p.Inspect(context.Background(), req)
	assert.False(t, dec.Pass)
	assert.Equal(t, 401, dec.Action.Status)
}

// S6: a base64-shadowed header reaches the WAF and matches an "admin" signature.
func TestPipeline_S6_WAFMatchesBase64Shadow(t *testing.T) {
	um := &URLMap{
		Name:       "root",
		PathExact:  "/",
		ACLProfile: &ACLProfile{ID: "acl1", Name: "acl1"},
		WAFProfile: &WAFProfile{
			Threshold: 10,
			Sections:  map[string]*SectionRestriction{"headers": {}},
		},
	}
	snap := NewSnapshot([]*HostMap{
		{Name: "api", AuthorityExact: "api.x", URLMaps: []*URLMap{um}},
	})
	db := NewSignatureDB([]Signature{{ID: "admin", Pattern: `(?i)admin`, Score: 10}})
	p := buildPipeline(t, snap, nil, db, nil)

	meta := metaFor("api.x", "/", "3.3.3.3")
	meta["x"] = "YWRtaW4=" // base64 for "admin"
	req := BuildRequest(meta, RequestMetadata{}, "9.9.9.9:1")

	dec := p.Inspect(context.Background(), req)
	assert.False(t, dec.Pass)
	assert.Equal(t, "waf", dec.Action.Reason.Initiator)
}

func TestPipeline_MissingConfigPassesWithDiagnostic(t *testing.T) {
	p := buildPipeline(t, nil, nil, nil, nil)
	req := BuildRequest(metaFor("api.x", "/", "1.1.1.1"), RequestMetadata{}, "9.9.9.9:1")

	dec := p.Inspect(context.Background(), req)
	assert.True(t, dec.Pass)
}

func TestPipeline_CancelledContextPasses(t *testing.T) {
	um := &URLMap{
		Name:       "root",
		PathExact:  "/",
		ACLProfile: &ACLProfile{ID: "acl1", Name: "acl1"},
		WAFProfile: &WAFProfile{},
	}
	snap := NewSnapshot([]*HostMap{
		{Name: "api", AuthorityExact: "api.x", URLMaps: []*URLMap{um}},
	})
	p := buildPipeline(t, snap, nil, nil, nil)
	req := BuildRequest(metaFor("api.x", "/", "1.1.1.1"), RequestMetadata{}, "9.9.9.9:1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dec := p.Inspect(ctx, req)
	assert.True(t, dec.Pass)
}
