// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing tool definitions, invocation
// contexts and recording handlers. They are not intended for production usage.
package testutil
