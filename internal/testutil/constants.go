// Package testutil provides shared test helpers, fakes and fixtures.
package testutil

// TestSigningKey is HMAC key material for audit store tests only (32 bytes).
const TestSigningKey = "test-signing-key-1234567890123456"

// TestCustomerID is the customer used across pipeline and server tests.
const TestCustomerID = "CUST-001"
