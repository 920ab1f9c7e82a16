// Package testutil contains helper builders and step-function fixtures used
// across tests to reduce boilerplate when constructing conversations and
// exercising retry, timeout and concurrency behavior. These helpers are not
// intended for production usage.
package testutil
