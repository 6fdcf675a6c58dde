// Package audit implements the append-only trail of administrative device
// commands.
//
// Each entry records who ran which command against which device, how it
// ended and how long it took. Entries are JSON lines written through a
// rotating file.
package audit
