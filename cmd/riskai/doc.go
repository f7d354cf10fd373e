// Riskai analyzes code, tests and requirements with an LLM backend.
//
// It runs a set of analysis agents over the submitted inputs, merges their
// findings into one report, and caches bugs, vulnerabilities, recommendations
// and requirement verdicts by content fingerprint so that resubmitting the
// same code (modulo comments and whitespace) reuses earlier findings.
//
// Usage:
//
//	riskai serve                          # run the HTTP API
//	riskai analyze --code main.go         # analyze a code file
//	riskai analyze --code - < main.go     # analyze code from stdin
//	riskai requirements reqs.md           # assess requirements quality
//	riskai cache show                     # cache statistics
//	riskai config init                    # write a default config file
package main
