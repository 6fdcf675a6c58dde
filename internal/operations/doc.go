// Package operations holds one Operation per administrative command.
//
// An Operation encodes its request from the arguments it was created with,
// decodes a successful response into a typed result, and decides how a
// failure is represented to the caller. Operations are created per call and
// discarded afterwards; none of them touch the network.
package operations
