// Package host provides the external collaborators the timelock dispatches to when it runs as a service: a value Ledger and a Dispatcher routing outbound calls to registered handlers, such as webhooks.
package host
