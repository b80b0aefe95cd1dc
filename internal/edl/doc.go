// Package edl defines the edit decision list instruction format recorded by
// the edit log and handed to renderers.
//
// An EDL is an ordered list of opaque {type, params} instructions. The core
// never interprets params; it only validates that each instruction is well
// formed and that its params survive a JSON round trip, since JSON is the
// storage and renderer wire format. Operators may author instruction files in
// JSON or YAML.
package edl
