// Package cli provides the command-line interface for reflector.
//
// Running reflector without a subcommand starts the operator: it compiles
// the topology, writes the nginx and sing-box configurations into the tmp
// directory and supervises both processes. With --signal reload it instead
// asks a running operator to reload its topology.
//
// Subcommands:
//   - validate: check a topology document and summarize what it compiles to
//   - links: print client share links for every inbound user
//   - keygen: generate a REALITY key pair
//   - version: show build information
//
// Flags fall back to REFLECTOR_CONFIG, REFLECTOR_TMP and REFLECTOR_DEBUG
// when not given on the command line.
package cli
