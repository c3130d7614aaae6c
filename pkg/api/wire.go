package api

import (
	"github.com/cuemby/burrow/pkg/types"
)

// ErrorResponse is the body of every non-2xx answer. Kind carries the wire
// name of the error kind so clients can rebuild it with types.KindError.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// ShardsRequest asks for Count namespaces on distinct backends
type ShardsRequest struct {
	Request types.NamespaceRequest `json:"request"`
	Count   int                    `json:"count"`
}

// MountPathResponse answers a mount path lookup
type MountPathResponse struct {
	MountPath string `json:"mount_path"`
}

// CreatePoolRequest creates a pool with an initial member list
type CreatePoolRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// MemberRequest names one pool member
type MemberRequest struct {
	Host string `json:"host"`
}

// HostResponse names a host chosen from a pool
type HostResponse struct {
	Host string `json:"host"`
}

// CreateLeaseRequest creates an empty lease against a pool
type CreateLeaseRequest struct {
	Name         string `json:"name"`
	Pool         string `json:"pool"`
	BootImageURL string `json:"boot_image_url"`
}

// LeaseResponse is a lease record with its install status
type LeaseResponse struct {
	Lease       *types.Lease        `json:"lease"`
	Status      types.InstallStatus `json:"status"`
	StatusError string              `json:"status_error,omitempty"`
}

// BootRequest points a lease's host at a new boot image
type BootRequest struct {
	URL string `json:"url"`
}

// PowerResponse reports a host's power state
type PowerResponse struct {
	On bool `json:"on"`
}

// CreatePairRequest creates a gateway pair
type CreatePairRequest struct {
	Name    string `json:"name"`
	Active  string `json:"active"`
	Passive string `json:"passive"`
}

// TickResponse reports the action a failover tick took
type TickResponse struct {
	Action types.FailoverAction `json:"action"`
}
