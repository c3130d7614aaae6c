package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cuemby/burrow/pkg/reservation"
	"github.com/cuemby/burrow/pkg/scheduler"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/go-chi/chi/v5"
)

// Namespaces

func (s *Server) listNamespaces(w http.ResponseWriter, r *http.Request) {
	placements, err := s.cfg.Store.ListAllocations()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if placements == nil {
		placements = []*types.Placement{}
	}
	writeJSON(w, http.StatusOK, placements)
}

func (s *Server) createNamespace(w http.ResponseWriter, r *http.Request) {
	var req types.NamespaceRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	placement, err := s.cfg.Planner.PlanAndCreate(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, placement)
}

func (s *Server) createShards(w http.ResponseWriter, r *http.Request) {
	var req ShardsRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	placements, err := s.cfg.Planner.PlanShards(r.Context(), req.Request, req.Count)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, placements)
}

func (s *Server) deleteNamespace(w http.ResponseWriter, r *http.Request) {
	backend, namespace := chi.URLParam(r, "backend"), chi.URLParam(r, "namespace")
	if err := s.cfg.Planner.DeleteNamespace(r.Context(), backend, namespace); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) mountPath(w http.ResponseWriter, r *http.Request) {
	size, err := strconv.ParseInt(r.URL.Query().Get("size"), 10, 64)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: size must be an integer number of GiB", types.ErrValidation))
		return
	}
	path, err := s.cfg.Planner.MountPathFor(r.Context(), types.DiskClass(r.URL.Query().Get("class")), size)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MountPathResponse{MountPath: path})
}

// Pools

func (s *Server) listPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.cfg.Reservations.Pools()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if pools == nil {
		pools = []*types.HostPool{}
	}
	writeJSON(w, http.StatusOK, pools)
}

func (s *Server) createPool(w http.ResponseWriter, r *http.Request) {
	var req CreatePoolRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.cfg.Reservations.CreatePool(r.Context(), req.Name, req.Members); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writePool(w, r, req.Name, http.StatusCreated)
}

func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	s.writePool(w, r, chi.URLParam(r, "pool"), http.StatusOK)
}

func (s *Server) writePool(w http.ResponseWriter, r *http.Request, name string, status int) {
	pool, err := s.cfg.Store.GetPool(name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, pool)
}

func (s *Server) deletePool(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Reservations.DeletePool(chi.URLParam(r, "pool")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) pool(w http.ResponseWriter, r *http.Request) (*reservation.Pool, bool) {
	pool, err := s.cfg.Reservations.Pool(chi.URLParam(r, "pool"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return pool, true
}

func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.pool(w, r)
	if !ok {
		return
	}
	var req MemberRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := pool.Add(r.Context(), req.Host); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writePool(w, r, pool.Name(), http.StatusOK)
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.pool(w, r)
	if !ok {
		return
	}
	if err := pool.Remove(chi.URLParam(r, "host")); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writePool(w, r, pool.Name(), http.StatusOK)
}

func (s *Server) validatePool(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.pool(w, r)
	if !ok {
		return
	}
	if err := pool.Validate(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) unreservedHost(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.pool(w, r)
	if !ok {
		return
	}
	host, err := pool.UnreservedHost(r.Context(), r.URL.Query().Get("caller"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HostResponse{Host: host})
}

// Leases

func (s *Server) listLeases(w http.ResponseWriter, r *http.Request) {
	leases, err := s.cfg.Reservations.Leases()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if leases == nil {
		leases = []*types.Lease{}
	}
	writeJSON(w, http.StatusOK, leases)
}

func (s *Server) createLease(w http.ResponseWriter, r *http.Request) {
	var req CreateLeaseRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	lease, err := s.cfg.Reservations.CreateLease(req.Name, req.Pool, req.BootImageURL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeLease(w, r, lease, http.StatusCreated)
}

func (s *Server) lease(w http.ResponseWriter, r *http.Request) (*reservation.Lease, bool) {
	lease, err := s.cfg.Reservations.Lease(chi.URLParam(r, "lease"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return lease, true
}

func (s *Server) getLease(w http.ResponseWriter, r *http.Request) {
	lease, ok := s.lease(w, r)
	if !ok {
		return
	}
	s.writeLease(w, r, lease, http.StatusOK)
}

func (s *Server) writeLease(w http.ResponseWriter, r *http.Request, lease *reservation.Lease, status int) {
	record, err := lease.Record()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := LeaseResponse{Lease: record}
	resp.Status, err = lease.Status()
	if err != nil {
		resp.StatusError = err.Error()
	}
	writeJSON(w, status, resp)
}

func (s *Server) deleteLease(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Reservations.DeleteLease(r.Context(), chi.URLParam(r, "lease")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// leaseAction adapts a lease operation to a handler answering with the lease
func (s *Server) leaseAction(fn func(*reservation.Lease, context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lease, ok := s.lease(w, r)
		if !ok {
			return
		}
		if err := fn(lease, r.Context()); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeLease(w, r, lease, http.StatusOK)
	}
}

func (s *Server) powerStatus(w http.ResponseWriter, r *http.Request) {
	lease, ok := s.lease(w, r)
	if !ok {
		return
	}
	on, err := lease.PowerStatus(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PowerResponse{On: on})
}

func (s *Server) configureBoot(w http.ResponseWriter, r *http.Request) {
	lease, ok := s.lease(w, r)
	if !ok {
		return
	}
	var req BootRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := lease.ConfigureBootTarget(r.Context(), req.URL); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeLease(w, r, lease, http.StatusOK)
}

// Gateway pairs

func (s *Server) listPairs(w http.ResponseWriter, r *http.Request) {
	pairs, err := s.cfg.Failover.Pairs()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if pairs == nil {
		pairs = []*types.GatewayPair{}
	}
	writeJSON(w, http.StatusOK, pairs)
}

func (s *Server) createPair(w http.ResponseWriter, r *http.Request) {
	var req CreatePairRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	pair, err := s.cfg.Failover.CreatePair(req.Name, req.Active, req.Passive)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pair)
}

func (s *Server) getPair(w http.ResponseWriter, r *http.Request) {
	c, err := s.cfg.Failover.Controller(chi.URLParam(r, "pair"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pair, err := c.Pair()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) deletePair(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Failover.DeletePair(chi.URLParam(r, "pair")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) tickPair(w http.ResponseWriter, r *http.Request) {
	c, err := s.cfg.Failover.Controller(chi.URLParam(r, "pair"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	action, err := c.Tick(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TickResponse{Action: action})
}

func (s *Server) monitorShards(w http.ResponseWriter, r *http.Request) {
	c, err := s.cfg.Failover.Controller(chi.URLParam(r, "pair"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := c.MonitorShards(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Recurring actions

func (s *Server) listActions(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Scheduler == nil {
		writeJSON(w, http.StatusOK, []scheduler.ActionInfo{})
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Scheduler.Actions())
}

func (s *Server) runAction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if s.cfg.Scheduler == nil {
		s.writeError(w, r, fmt.Errorf("%w: action %s", types.ErrNotFound, name))
		return
	}
	if err := s.cfg.Scheduler.RunOnce(name); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
