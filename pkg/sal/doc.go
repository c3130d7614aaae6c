// Package sal is the system abstraction layer burrow reaches nodes, hosts
// and gateways through.
//
// The interfaces describe the calls the core makes. Agent implements all of
// them as JSON over HTTP against the node agent; saltest implements them in
// memory. Every call takes a context, and Timeouts holds the bound applied
// to each class of call.
package sal
