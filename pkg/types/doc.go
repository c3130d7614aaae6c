/*
Package types defines the records and error kinds shared by every burrow
package.

Records fall into four groups:

  - Placement: NamespaceRequest, Backend, FreeDisk, BackendSpec and the
    durable Placement result
  - Reservation: HostPool, Lease and the tri-state InstallStatus
  - Gateways: GatewayPair, GatewayHealth and the PairState and
    FailoverAction enums
  - Agent payloads: BackendInfo, HostService, GatewayInfo and TlogHandle

Enumerations are typed strings with a Valid or Supported method where the
input comes from users.

# Errors

The Err* sentinels in errors.go name the kinds of failure callers branch on.
They are always wrapped with context and matched with errors.Is.
ErrorKind and KindError translate a kind to and from the short name the HTTP
API puts on the wire.
*/
package types
