// Package unit models one controlled air handler: its externally visible
// state, the limits its gateway advertises, and validation of outgoing
// commands against those limits.
//
// State is plain data mutated only by the gateway dispatcher; external
// readers get copies. The ONOFF/MODE interplay is the subtle part: on
// the wire "off" is a power flag orthogonal to the operating mode, while
// the externally exposed model folds power into the mode. State keeps
// the last real mode so that switching back on restores it, regardless
// of the order the gateway emits ONOFF and MODE notifications.
package unit
