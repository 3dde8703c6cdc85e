//go:build e2e

// Package e2e provides end-to-end tests for the interop harness.
//
// These tests are isolated from the standard test suite via build tags.
// They require real browsers: Chrome is auto-downloaded by Rod if not
// present; Firefox and WebKit come from the Playwright install and their
// tests skip when it is missing.
//
// Running E2E tests:
//
//	go test -tags=e2e ./e2e/...
//
// Running all tests except E2E:
//
//	go test ./...
//
// E2E tests use:
//   - the peer server from cmd/peer-server/server, started in-process
//   - rodriver and pwdriver through the interop coordinator
//
// Test isolation:
// Each test starts its own server on a random port and launches its own
// browser instances.
package e2e
