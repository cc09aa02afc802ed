// Package internal holds helpers shared by the engine that are not
// part of the public API surface: random token/OTP generation, code
// hashing, and destination masking.
package internal
