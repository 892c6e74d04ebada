// Package motion implements the camera-motion estimation engine: given an
// ordered, bounded sequence of video frames (the working zone), it detects
// per-frame interest points, matches them between adjacent frames with
// robust outlier rejection, fits a chain of planar homographies, optionally
// refines the chain jointly to reduce accumulated drift, and assembles
// persistent multi-frame point tracks.
//
// The Pipeline type is the composition root: it owns all derived state
// (feature sets, match sets, the transform chain, tracks) and exposes it to
// consumers through read-only accessors. Stage implementations are plugged
// in through small interfaces so tests can substitute synthetic stages.
//
// Processing is an offline analysis pass, not live odometry: the frame
// count is known before a run starts, exactly one run may be active at a
// time, and cancellation is cooperative between frame/pair units.
package motion
