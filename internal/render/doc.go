// Package render turns an edit decision list into a media artifact.
//
// A Renderer receives the project's source reference, the ordered EDL ops
// for the version being rendered, and an output directory, and returns the
// path of the file it produced. Renderers report progress through a
// callback and must honour context cancellation: the render queue cancels
// the context when a job is superseded or exceeds its attempt timeout.
//
// CLI shells out to an external EDL renderer binary. Finisher wraps another
// Renderer and re-encodes export artifacts through Drapto.
package render
