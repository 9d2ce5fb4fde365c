package volume

import (
	"context"

	"github.com/nexusvol/control-plane/pkg/types"
)

// ChildStore is the persistent-store dependency the FSA's step 3 (gating
// the first nexus assembly) consumes, implemented by pkg/childstore. It is
// declared here, narrow, rather than importing pkg/childstore directly, so
// that pkg/childstore may depend on pkg/types/pkg/apierror only and this
// package stays free to be tested with a fake.
type ChildStore interface {
	// FilterReplicas returns the subset of replicas allowed to participate
	// in the first nexus assembly for nexusUUID, per spec.md §4.11.
	FilterReplicas(ctx context.Context, nexusUUID string, replicas []types.Replica) ([]types.Replica, error)
	// DestroyNexus deletes the persisted child-health record for uuid.
	// Missing key is success.
	DestroyNexus(ctx context.Context, uuid string) error
}
