// Package surface drives the presentation surface lifecycle around the arbiter.
//
// The producer side is Proposer: it checks that an overlay can be shown,
// proposes the display and launches a surface for the returned ticket. The
// consumer side is Surface: the launched surface attaches with its ticket,
// persists what it claimed so it can be recreated, and finishes by releasing.
package surface
