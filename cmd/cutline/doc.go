// Command cutline is the command-line client for the cutline daemon.
//
// Every command other than `config` and `daemon run` talks to a running
// daemon over its HTTP API. The API address and token come from the loaded
// configuration and may be overridden with --api and --token. Pass --json to
// any listing or report command for machine-readable output.
package main
