// Package jobmanager runs the commands spawned inside warden containers.
//
// Each Job is a shell process started in its own process group, optionally
// attached to a container cgroup and confined to the container's work
// directory. Combined stdout and stderr is captured once and can be read by
// any number of readers, so a link issued after the job exits still sees
// the full output.
//
// The Manager owns every Job, keyed by UUID, and tears them all down on
// Shutdown.
package jobmanager
