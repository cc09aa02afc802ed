// Package rate enforces login attempt budgets and step-up resend
// cooldowns with Redis counters. Counters carry a TTL so a quiet
// account naturally resets.
package rate
