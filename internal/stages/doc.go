// Package stages binds the pipeline components to queue jobs.
//
// Each handler reads the artifact of the stage before it from the media
// store, runs one component and persists its own artifact as its last
// action, recording the path on the job. Handlers never change a job's
// status; sequencing belongs to the workflow manager.
package stages
