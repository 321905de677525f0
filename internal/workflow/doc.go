// Package workflow is the pipeline orchestrator.
//
// The Manager runs a pool of workers. Each worker claims one job from the
// queue and drives it through its remaining stages (extract, transcribe,
// translate, synthesize, composite) in order, persisting the resting status
// after every stage so an interrupted job resumes from its last completed
// artifact. Workers heartbeat while a stage runs; a reclaimer returns jobs
// whose worker went silent to the queue.
//
// Stage handlers never change job status. Sequencing, cancellation checks,
// failure classification, transient redelivery and queue-level notifications
// all live here.
package workflow
