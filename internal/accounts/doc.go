// Package accounts stores users, their plan and their role.
//
// The pipeline only ever reads a user's plan, through GetPlan, to decide
// whether the final video carries the free-plan watermark. Everything that
// mutates accounts (registration, plan upgrades from a billing provider,
// role changes) enters through this package's Store from the CLI or the
// HTTP transport.
package accounts
