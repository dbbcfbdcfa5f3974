// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// Services are pure Go with no CGO. Edit distance comes from
// agnivade/levenshtein and rebuild scheduling from robfig/cron.
package services
