package childstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/nexusvol/control-plane/pkg/types"
)

// Config holds the etcd client and breaker tunables.
type Config struct {
	Endpoints      []string
	DialTimeout    time.Duration
	RequestTimeout time.Duration

	BreakerFailureThreshold int
	BreakerOpenWindow       time.Duration
}

// DefaultConfig mirrors the teacher's storage defaults, sized for a local
// etcd instance.
func DefaultConfig(endpoints []string) Config {
	return Config{
		Endpoints:               endpoints,
		DialTimeout:             5 * time.Second,
		RequestTimeout:          3 * time.Second,
		BreakerFailureThreshold: 5,
		BreakerOpenWindow:       30 * time.Second,
	}
}

const keyPrefix = "/nexus/children/"

func key(nexusUUID string) string {
	return keyPrefix + nexusUUID
}

// record is the wire format of the child-health value, spec.md §4.11: {
// clean_shutdown: bool, children: [{uuid: string, healthy: bool}] }.
type record struct {
	CleanShutdown bool          `json:"clean_shutdown"`
	Children      []childHealth `json:"children"`
}

type childHealth struct {
	UUID    string `json:"uuid"`
	Healthy bool   `json:"healthy"`
}

// Store implements pkg/volume.ChildStore against a networked etcd cluster.
type Store struct {
	client  *clientv3.Client
	cfg     Config
	breaker *breaker
}

// New dials etcd and builds a Store. The caller must call Close.
func New(cfg Config) (*Store, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("dial etcd: %w", err)
	}
	return &Store{
		client:  cli,
		cfg:     cfg,
		breaker: newBreaker(cfg.BreakerFailureThreshold, cfg.BreakerOpenWindow),
	}, nil
}

// Close releases the underlying etcd client.
func (s *Store) Close() error {
	return s.client.Close()
}

var errBreakerOpen = fmt.Errorf("childstore circuit breaker open")

// FilterReplicas implements pkg/volume.ChildStore, exactly per spec.md
// §4.11: a missing key passes every replica through unchanged (first boot);
// a malformed or incomplete record fails closed; a clean shutdown keeps
// every replica matching a healthy child; an unclean shutdown keeps at most
// one, chosen deterministically by the order children appear in the record.
func (s *Store) FilterReplicas(ctx context.Context, nexusUUID string, replicas []types.Replica) ([]types.Replica, error) {
	if !s.breaker.allow() {
		return nil, errBreakerOpen
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	resp, err := s.client.Get(reqCtx, key(nexusUUID))
	if err != nil {
		s.breaker.recordFailure()
		return nil, fmt.Errorf("get child-health record for %s: %w", nexusUUID, err)
	}
	s.breaker.recordSuccess()

	if len(resp.Kvs) == 0 {
		return replicas, nil
	}

	rec, err := decodeRecord(resp.Kvs[0].Value)
	if err != nil {
		return nil, fmt.Errorf("malformed child-health record for %s: %w", nexusUUID, err)
	}
	return filterByRecord(rec, replicas), nil
}

// decodeRecord parses the persisted JSON value, rejecting a record missing
// a required field rather than guessing a default.
func decodeRecord(data []byte) (record, error) {
	var raw struct {
		CleanShutdown *bool `json:"clean_shutdown"`
		Children      *[]struct {
			UUID    *string `json:"uuid"`
			Healthy *bool   `json:"healthy"`
		} `json:"children"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return record{}, err
	}
	if raw.CleanShutdown == nil || raw.Children == nil {
		return record{}, fmt.Errorf("record missing clean_shutdown or children")
	}
	rec := record{CleanShutdown: *raw.CleanShutdown}
	for _, c := range *raw.Children {
		if c.UUID == nil || *c.UUID == "" || c.Healthy == nil {
			return record{}, fmt.Errorf("child missing uuid or healthy")
		}
		rec.Children = append(rec.Children, childHealth{UUID: *c.UUID, Healthy: *c.Healthy})
	}
	return rec, nil
}

// filterByRecord applies the already-decoded record to a replica set. An
// unclean shutdown keeps at most one replica, chosen deterministically by
// the order children appear in rec.Children; a clean shutdown keeps every
// replica matching a healthy child.
func filterByRecord(rec record, replicas []types.Replica) []types.Replica {
	if !rec.CleanShutdown {
		for _, c := range rec.Children {
			if !c.Healthy {
				continue
			}
			for _, r := range replicas {
				if r.RealUUID() == c.UUID {
					return []types.Replica{r}
				}
			}
		}
		return nil
	}

	healthy := make(map[string]bool, len(rec.Children))
	for _, c := range rec.Children {
		if c.Healthy {
			healthy[c.UUID] = true
		}
	}
	matched := make([]types.Replica, 0, len(replicas))
	for _, r := range replicas {
		if healthy[r.RealUUID()] {
			matched = append(matched, r)
		}
	}
	return matched
}

// DestroyNexus deletes the persisted record for uuid. A missing key is
// success, matching etcd's own delete-on-absent semantics.
func (s *Store) DestroyNexus(ctx context.Context, uuid string) error {
	if !s.breaker.allow() {
		return errBreakerOpen
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	_, err := s.client.Delete(reqCtx, key(uuid))
	if err != nil {
		s.breaker.recordFailure()
		return fmt.Errorf("delete child-health record for %s: %w", uuid, err)
	}
	s.breaker.recordSuccess()
	return nil
}
