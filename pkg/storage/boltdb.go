package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/cuemby/burrow/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketPools        = []byte("pools")
	bucketLeases       = []byte("leases")
	bucketGatewayPairs = []byte("gateway_pairs")
	bucketAllocations  = []byte("allocations")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "burrow.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketPools,
			bucketLeases,
			bucketGatewayPairs,
			bucketAllocations,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) put(bucket []byte, key string, v interface{}) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func (s *BoltStore) get(bucket []byte, kind, key string, v interface{}) error {
	return s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%w: %s %s", types.ErrNotFound, kind, key)
		}
		return json.Unmarshal(data, v)
	})
}

func (s *BoltStore) delete(bucket []byte, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
}

// Pool operations
func (s *BoltStore) CreatePool(pool *types.HostPool) error {
	return s.put(bucketPools, pool.Name, pool)
}

func (s *BoltStore) GetPool(name string) (*types.HostPool, error) {
	var pool types.HostPool
	if err := s.get(bucketPools, "pool", name, &pool); err != nil {
		return nil, err
	}
	return &pool, nil
}

func (s *BoltStore) ListPools() ([]*types.HostPool, error) {
	var pools []*types.HostPool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPools)
		return b.ForEach(func(k, v []byte) error {
			var pool types.HostPool
			if err := json.Unmarshal(v, &pool); err != nil {
				return err
			}
			pools = append(pools, &pool)
			return nil
		})
	})
	return pools, err
}

func (s *BoltStore) UpdatePool(pool *types.HostPool) error {
	return s.CreatePool(pool) // Same as create (upsert)
}

func (s *BoltStore) DeletePool(name string) error {
	return s.delete(bucketPools, name)
}

// Lease operations
func (s *BoltStore) CreateLease(lease *types.Lease) error {
	return s.put(bucketLeases, lease.Name, lease)
}

func (s *BoltStore) GetLease(name string) (*types.Lease, error) {
	var lease types.Lease
	if err := s.get(bucketLeases, "lease", name, &lease); err != nil {
		return nil, err
	}
	return &lease, nil
}

func (s *BoltStore) ListLeases() ([]*types.Lease, error) {
	var leases []*types.Lease
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLeases)
		return b.ForEach(func(k, v []byte) error {
			var lease types.Lease
			if err := json.Unmarshal(v, &lease); err != nil {
				return err
			}
			leases = append(leases, &lease)
			return nil
		})
	})
	return leases, err
}

func (s *BoltStore) ListLeasesByPool(pool string) ([]*types.Lease, error) {
	leases, err := s.ListLeases()
	if err != nil {
		return nil, err
	}

	var filtered []*types.Lease
	for _, lease := range leases {
		if lease.PoolName == pool {
			filtered = append(filtered, lease)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateLease(lease *types.Lease) error {
	return s.CreateLease(lease)
}

func (s *BoltStore) DeleteLease(name string) error {
	return s.delete(bucketLeases, name)
}

// Gateway pair operations
func (s *BoltStore) CreateGatewayPair(pair *types.GatewayPair) error {
	return s.put(bucketGatewayPairs, pair.Name, pair)
}

func (s *BoltStore) GetGatewayPair(name string) (*types.GatewayPair, error) {
	var pair types.GatewayPair
	if err := s.get(bucketGatewayPairs, "gateway pair", name, &pair); err != nil {
		return nil, err
	}
	return &pair, nil
}

func (s *BoltStore) ListGatewayPairs() ([]*types.GatewayPair, error) {
	var pairs []*types.GatewayPair
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGatewayPairs)
		return b.ForEach(func(k, v []byte) error {
			var pair types.GatewayPair
			if err := json.Unmarshal(v, &pair); err != nil {
				return err
			}
			pairs = append(pairs, &pair)
			return nil
		})
	})
	return pairs, err
}

func (s *BoltStore) UpdateGatewayPair(pair *types.GatewayPair) error {
	return s.CreateGatewayPair(pair)
}

func (s *BoltStore) DeleteGatewayPair(name string) error {
	return s.delete(bucketGatewayPairs, name)
}

// Allocation operations, keyed backend/namespace
func (s *BoltStore) SaveAllocation(placement *types.Placement) error {
	return s.put(bucketAllocations, placement.Key(), placement)
}

func (s *BoltStore) GetAllocation(backend, namespace string) (*types.Placement, error) {
	var placement types.Placement
	key := backend + "/" + namespace
	if err := s.get(bucketAllocations, "allocation", key, &placement); err != nil {
		return nil, err
	}
	return &placement, nil
}

func (s *BoltStore) ListAllocations() ([]*types.Placement, error) {
	var placements []*types.Placement
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAllocations)
		return b.ForEach(func(k, v []byte) error {
			var placement types.Placement
			if err := json.Unmarshal(v, &placement); err != nil {
				return err
			}
			placements = append(placements, &placement)
			return nil
		})
	})
	return placements, err
}

func (s *BoltStore) DeleteAllocation(backend, namespace string) error {
	return s.delete(bucketAllocations, backend+"/"+namespace)
}

// Maintenance

// BucketStats is the record count of one bucket, with the keys whose values
// no longer decode as JSON
type BucketStats struct {
	Bucket  string
	Records int
	Corrupt []string
}

// Inspect counts the records in every bucket and flags undecodable ones
func (s *BoltStore) Inspect() ([]BucketStats, error) {
	var stats []BucketStats
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketPools, bucketLeases, bucketGatewayPairs, bucketAllocations} {
			st := BucketStats{Bucket: string(bucket)}
			err := tx.Bucket(bucket).ForEach(func(k, v []byte) error {
				st.Records++
				if !json.Valid(v) {
					st.Corrupt = append(st.Corrupt, string(k))
				}
				return nil
			})
			if err != nil {
				return err
			}
			stats = append(stats, st)
		}
		return nil
	})
	return stats, err
}

// Backup writes a consistent snapshot of the database to w
func (s *BoltStore) Backup(w io.Writer) (int64, error) {
	var n int64
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		n, err = tx.WriteTo(w)
		return err
	})
	if err != nil {
		return n, fmt.Errorf("failed to back up database: %w", err)
	}
	return n, nil
}
