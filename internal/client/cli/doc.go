// Package cli is the blefs command line front end.
//
// Commands run one-shot from the process arguments or interactively from a
// shell started when no command is given. Each command opens its own
// connection to the device through a session and records the outcome in the
// local history database when one is configured.
package cli
