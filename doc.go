// Package inspectcore implements the inline request-inspection core of a
// web application firewall and bot-mitigation engine.
//
// Given a request descriptor and an immutable configuration snapshot, the
// core pipeline runs URL-map matching, tagging, rate-limit evaluation,
// ACL resolution with bot/human challenge branching, and WAF signature
// scanning, and returns a terminal Decision synchronously. It is designed
// to run on an L7 proxy's hot request path with microsecond-scale overhead.
//
// The core does not bind to any specific proxy runtime, does not load or
// reload configuration from disk, and does not implement the cryptographic
// challenge minting/verification service itself (see the Grasshopper
// interface) - those are external collaborators by design.
package inspectcore
