package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/temps/internal/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketDeployments  = []byte("deployments")
	bucketJobs         = []byte("deployment_jobs")
	bucketContainers   = []byte("deployment_containers")
	bucketEnvironments = []byte("environments")
	bucketRoutes       = []byte("routes")
	bucketCertificates = []byte("domains")
)

// BoltStore implements Store on top of a single bbolt database file, one
// bucket per entity, JSON-encoded values keyed by entity ID.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the control-plane database under
// dataDir and ensures every bucket exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "temps.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{
			bucketDeployments,
			bucketJobs,
			bucketContainers,
			bucketEnvironments,
			bucketRoutes,
			bucketCertificates,
		} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
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

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func put(db *bolt.DB, bucket []byte, key string, v interface{}) error {
	return db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func get(db *bolt.DB, bucket []byte, key string, v interface{}) error {
	return db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("not found: %s", key)
		}
		return json.Unmarshal(data, v)
	})
}

func del(db *bolt.DB, bucket []byte, key string) error {
	return db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
}

// Deployments

func (s *BoltStore) CreateDeployment(d *types.Deployment) error {
	return put(s.db, bucketDeployments, d.ID, d)
}

func (s *BoltStore) GetDeployment(id string) (*types.Deployment, error) {
	var d types.Deployment
	if err := get(s.db, bucketDeployments, id, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *BoltStore) ListDeployments() ([]*types.Deployment, error) {
	var out []*types.Deployment
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDeployments).ForEach(func(k, v []byte) error {
			var d types.Deployment
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			out = append(out, &d)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateDeployment(d *types.Deployment) error {
	return s.CreateDeployment(d)
}

func (s *BoltStore) DeleteDeployment(id string) error {
	return del(s.db, bucketDeployments, id)
}

// DeploymentJobs

func (s *BoltStore) CreateJob(j *types.DeploymentJob) error {
	return put(s.db, bucketJobs, j.ID, j)
}

func (s *BoltStore) GetJob(id string) (*types.DeploymentJob, error) {
	var j types.DeploymentJob
	if err := get(s.db, bucketJobs, id, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *BoltStore) ListJobsByDeployment(deploymentID string) ([]*types.DeploymentJob, error) {
	var out []*types.DeploymentJob
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).ForEach(func(k, v []byte) error {
			var j types.DeploymentJob
			if err := json.Unmarshal(v, &j); err != nil {
				return err
			}
			if j.DeploymentID == deploymentID {
				out = append(out, &j)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateJob(j *types.DeploymentJob) error {
	return s.CreateJob(j)
}

func (s *BoltStore) DeleteJobsByDeployment(deploymentID string) error {
	jobs, err := s.ListJobsByDeployment(deploymentID)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if err := del(s.db, bucketJobs, j.ID); err != nil {
			return err
		}
	}
	return nil
}

// DeploymentContainers

func (s *BoltStore) CreateContainer(c *types.DeploymentContainer) error {
	return put(s.db, bucketContainers, c.ID, c)
}

func (s *BoltStore) GetContainer(id string) (*types.DeploymentContainer, error) {
	var c types.DeploymentContainer
	if err := get(s.db, bucketContainers, id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *BoltStore) ListContainersByDeployment(deploymentID string) ([]*types.DeploymentContainer, error) {
	var out []*types.DeploymentContainer
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContainers).ForEach(func(k, v []byte) error {
			var c types.DeploymentContainer
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			if c.DeploymentID == deploymentID {
				out = append(out, &c)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateContainer(c *types.DeploymentContainer) error {
	return s.CreateContainer(c)
}

func (s *BoltStore) DeleteContainer(id string) error {
	return del(s.db, bucketContainers, id)
}

// Environments

func (s *BoltStore) CreateEnvironment(e *types.Environment) error {
	return put(s.db, bucketEnvironments, e.ID, e)
}

func (s *BoltStore) GetEnvironment(id string) (*types.Environment, error) {
	var e types.Environment
	if err := get(s.db, bucketEnvironments, id, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *BoltStore) ListEnvironments() ([]*types.Environment, error) {
	var out []*types.Environment
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEnvironments).ForEach(func(k, v []byte) error {
			var e types.Environment
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, &e)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateEnvironment(e *types.Environment) error {
	return s.CreateEnvironment(e)
}

// Routes are keyed by "<source>/<domain>" since domain uniqueness is only
// guaranteed after priority resolution (spec §3), not per-source.

func routeKey(domain string, source types.RouteSource) string {
	return string(source) + "/" + domain
}

func (s *BoltStore) CreateRoute(r *types.RouteRecord) error {
	return put(s.db, bucketRoutes, routeKey(r.Domain, r.Source), r)
}

func (s *BoltStore) ListRoutes() ([]*types.RouteRecord, error) {
	var out []*types.RouteRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoutes).ForEach(func(k, v []byte) error {
			var r types.RouteRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, &r)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeleteRoute(domain string, source types.RouteSource) error {
	return del(s.db, bucketRoutes, routeKey(domain, source))
}

// Certificates

func (s *BoltStore) CreateCertificate(c *types.DomainCertificate) error {
	return put(s.db, bucketCertificates, c.Domain, c)
}

func (s *BoltStore) GetCertificate(domain string) (*types.DomainCertificate, error) {
	var c types.DomainCertificate
	if err := get(s.db, bucketCertificates, domain, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *BoltStore) ListCertificates() ([]*types.DomainCertificate, error) {
	var out []*types.DomainCertificate
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCertificates).ForEach(func(k, v []byte) error {
			var c types.DomainCertificate
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			out = append(out, &c)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateCertificate(c *types.DomainCertificate) error {
	return s.CreateCertificate(c)
}
