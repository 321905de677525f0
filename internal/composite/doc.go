// Package composite produces the final dubbed video.
//
// A composition replaces the source audio with the synthesized track, burns
// timed subtitle cues into the bottom of the frame and, for free plans, a
// semi-transparent watermark across the top. The ffmpeg invocation is built
// as a Plan and executed through a Runner so the call trace can be inspected
// without the binary.
package composite
