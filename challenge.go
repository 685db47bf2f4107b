package inspectcore

import "strings"

// Grasshopper is the external browser-verification capability the
// Challenge Coordinator invokes through a narrow interface (spec.md §4.G,
// §9 "polymorphism over grasshopper"). A nil Grasshopper is a legal,
// expected configuration: every call site checks for it explicitly.
type Grasshopper interface {
	// ParseRBZID validates a challenge token against a user-agent, returning
	// whether the token proves a passed challenge.
	ParseRBZID(token, userAgent string) (bool, error)
	// IssueChallenge produces the Decision that sets a challenge cookie and
	// serves an interstitial page to the given user-agent.
	IssueChallenge(userAgent string, tags []string) Decision
}

// ChallengeVerifyURI is the well-known request path the Challenge
// Coordinator watches for phase-02 verification callbacks.
const ChallengeVerifyURI = "/rbzid-challenge/verify"

// verifyPhase02 runs before tagging (spec.md §4.G phase 02): if the
// request URI is the challenge verification path and both an "rbzid"
// cookie and a "user-agent" header are present, the token (hyphen-for-
// equals re-encoded) is handed to the capability. A valid token yields a
// Decision that clears the challenge and redirects, short-circuiting the
// remaining stages; ok is false whenever no verification applies.
func verifyPhase02(req *RequestRecord, gh Grasshopper) (Decision, bool) {
	if gh == nil || req.URI != ChallengeVerifyURI {
		return Decision{}, false
	}
	rbzid, present := req.Cookies.Get("rbzid")
	if !present {
		return Decision{}, false
	}
	ua, present := req.Headers.Get("user-agent")
	if !present {
		return Decision{}, false
	}

	token := strings.ReplaceAll(rbzid, "-", "=")
	valid, err := gh.ParseRBZID(token, ua)
	if err != nil || !valid {
		return Decision{}, false
	}

	return Decision{
		Action: &Action{
			Kind:    ActionMonitor,
			Status:  302,
			Headers: map[string]string{"Set-Cookie": "rbzid=; Max-Age=0", "Location": "/"},
			Content: "",
			Reason:  ReasonDocument{Initiator: "challenge", Reason: "verified"},
		},
	}, true
}

// issueChallenge implements the bot-denied branch of §4.F. It returns
// (decision, true) whenever the pipeline must stop here: no capability
// configured (block, code 3), or a user-agent-less request (block, code
// 3), or a freshly-issued phase-01 challenge. It returns (_, false) when
// the request already carries a verified rbzid, in which case the bot
// denial is considered resolved and the pipeline falls through to WAF.
func issueChallenge(req *RequestRecord, tags *TagSet, botTags []string, blocking bool, gh Grasshopper) (Decision, bool) {
	if gh == nil {
		return aclDecision(blocking, 3, botTags), true
	}

	if challengeVerified(req, gh) {
		return Decision{}, false
	}

	ua, present := req.Headers.Get("user-agent")
	if !present {
		return aclDecision(blocking, 3, botTags), true
	}
	return gh.IssueChallenge(ua, tags.Slice()), true
}

// challengeVerified reports whether the request already carries a valid
// rbzid proof, mirroring challenge_verified in the original pipeline.
func challengeVerified(req *RequestRecord, gh Grasshopper) bool {
	rbzid, present := req.Cookies.Get("rbzid")
	if !present {
		return false
	}
	ua, present := req.Headers.Get("user-agent")
	if !present {
		return false
	}
	valid, err := gh.ParseRBZID(strings.ReplaceAll(rbzid, "-", "="), ua)
	return err == nil && valid
}
