/*
Package events provides an in-process publish/subscribe broker for state
changes such as a namespace being created, a host being reserved or a
gateway being promoted.

Components take a Publisher and call Emit, which is a no-op for a nil
publisher. The daemon wires a Broker and logs every event it carries.
Delivery is best effort: a subscriber whose buffer is full misses the event.
*/
package events
