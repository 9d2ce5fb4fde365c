package csi

import (
	"context"
	"sort"
	"strconv"
	"strings"

	csipb "github.com/container-storage-interface/spec/lib/go/csi"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// CreateVolume implements csi.ControllerServer per spec.md §4.12.
func (s *Server) CreateVolume(ctx context.Context, req *csipb.CreateVolumeRequest) (*csipb.CreateVolumeResponse, error) {
	if !s.ready() {
		return nil, status.Error(codes.Unavailable, "server not ready")
	}

	uuid, err := parseVolumeName(req.GetName())
	if err != nil {
		return nil, err
	}
	if err := validateAccessModes(req.GetVolumeCapabilities()); err != nil {
		return nil, err
	}
	if req.GetVolumeContentSource() != nil {
		return nil, status.Error(codes.InvalidArgument, "volume content source is not supported")
	}

	mustNodes, err := requisiteNodes(req.GetAccessibilityRequirements())
	if err != nil {
		return nil, err
	}

	spec, volumeContext, err := parseCreateParameters(req.GetParameters())
	if err != nil {
		return nil, err
	}
	spec.RequiredBytes = req.GetCapacityRange().GetRequiredBytes()
	spec.LimitBytes = req.GetCapacityRange().GetLimitBytes()
	spec.RequiredNodes = mustNodes

	vol, err := s.mgr.CreateVolume(ctx, uuid, spec)
	if err != nil {
		return nil, toStatusErr(err)
	}

	return &csipb.CreateVolumeResponse{
		Volume: &csipb.Volume{
			VolumeId:      uuid,
			CapacityBytes: vol.Size,
			VolumeContext: volumeContext,
		},
	}, nil
}

// DeleteVolume implements csi.ControllerServer.
func (s *Server) DeleteVolume(ctx context.Context, req *csipb.DeleteVolumeRequest) (*csipb.DeleteVolumeResponse, error) {
	if !s.ready() {
		return nil, status.Error(codes.Unavailable, "server not ready")
	}
	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "volume id missing")
	}
	if err := s.mgr.DestroyVolume(ctx, req.GetVolumeId()); err != nil {
		return nil, toStatusErr(err)
	}
	return &csipb.DeleteVolumeResponse{}, nil
}

// ControllerPublishVolume implements csi.ControllerServer. The publish
// protocol is inherited from the volume's own spec rather than taken from
// the request: CSI's publish call carries no protocol parameter of its own.
func (s *Server) ControllerPublishVolume(ctx context.Context, req *csipb.ControllerPublishVolumeRequest) (*csipb.ControllerPublishVolumeResponse, error) {
	if !s.ready() {
		return nil, status.Error(codes.Unavailable, "server not ready")
	}
	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "volume id missing")
	}
	if req.GetReadonly() {
		return nil, status.Error(codes.InvalidArgument, "readonly publish is not supported")
	}

	node, err := parseNodeID(req.GetNodeId())
	if err != nil {
		return nil, err
	}

	vol, ok := s.mgr.Get(req.GetVolumeId())
	if !ok {
		return nil, status.Errorf(codes.NotFound, "volume %s not found", req.GetVolumeId())
	}

	deviceURI, err := s.mgr.Publish(ctx, req.GetVolumeId(), node, vol.Spec.Protocol)
	if err != nil {
		return nil, toStatusErr(err)
	}

	return &csipb.ControllerPublishVolumeResponse{
		PublishContext: map[string]string{"uri": deviceURI},
	}, nil
}

// ControllerUnpublishVolume implements csi.ControllerServer. A missing
// volume is reported as success per spec.md §4.12.
func (s *Server) ControllerUnpublishVolume(ctx context.Context, req *csipb.ControllerUnpublishVolumeRequest) (*csipb.ControllerUnpublishVolumeResponse, error) {
	if !s.ready() {
		return nil, status.Error(codes.Unavailable, "server not ready")
	}
	if err := s.mgr.Unpublish(ctx, req.GetVolumeId()); err != nil {
		if status.Code(toStatusErr(err)) == codes.NotFound {
			return &csipb.ControllerUnpublishVolumeResponse{}, nil
		}
		return nil, toStatusErr(err)
	}
	return &csipb.ControllerUnpublishVolumeResponse{}, nil
}

// ValidateVolumeCapabilities implements csi.ControllerServer.
func (s *Server) ValidateVolumeCapabilities(ctx context.Context, req *csipb.ValidateVolumeCapabilitiesRequest) (*csipb.ValidateVolumeCapabilitiesResponse, error) {
	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "volume id missing")
	}
	if _, ok := s.mgr.Get(req.GetVolumeId()); !ok {
		return nil, status.Errorf(codes.NotFound, "volume %s not found", req.GetVolumeId())
	}
	if err := validateAccessModes(req.GetVolumeCapabilities()); err != nil {
		return &csipb.ValidateVolumeCapabilitiesResponse{Message: err.Error()}, nil
	}
	return &csipb.ValidateVolumeCapabilitiesResponse{
		Confirmed: &csipb.ValidateVolumeCapabilitiesResponse_Confirmed{
			VolumeCapabilities: req.GetVolumeCapabilities(),
			VolumeContext:      req.GetVolumeContext(),
		},
	}, nil
}

// ListVolumes implements csi.ControllerServer's tokenised listing: the
// token is the index into a stable, uuid-sorted snapshot taken at call time.
func (s *Server) ListVolumes(ctx context.Context, req *csipb.ListVolumesRequest) (*csipb.ListVolumesResponse, error) {
	if !s.ready() {
		return nil, status.Error(codes.Unavailable, "server not ready")
	}

	vols := s.mgr.List()
	sort.Slice(vols, func(i, j int) bool { return vols[i].UUID < vols[j].UUID })

	start := 0
	if tok := req.GetStartingToken(); tok != "" {
		n, err := strconv.Atoi(tok)
		if err != nil || n < 0 || n > len(vols) {
			return nil, status.Errorf(codes.InvalidArgument, "invalid starting token %q", tok)
		}
		start = n
	}

	end := len(vols)
	if max := int(req.GetMaxEntries()); max > 0 && start+max < end {
		end = start + max
	}

	entries := make([]*csipb.ListVolumesResponse_Entry, 0, end-start)
	for _, v := range vols[start:end] {
		entries = append(entries, &csipb.ListVolumesResponse_Entry{
			Volume: &csipb.Volume{VolumeId: v.UUID, CapacityBytes: v.Size},
		})
	}

	var next string
	if end < len(vols) {
		next = strconv.Itoa(end)
	}
	return &csipb.ListVolumesResponse{Entries: entries, NextToken: next}, nil
}

// GetCapacity implements csi.ControllerServer, aggregating free capacity
// across admissible pools, optionally restricted to one node named in the
// request's accessible topology.
func (s *Server) GetCapacity(ctx context.Context, req *csipb.GetCapacityRequest) (*csipb.GetCapacityResponse, error) {
	if !s.ready() {
		return nil, status.Error(codes.Unavailable, "server not ready")
	}

	node := ""
	if t := req.GetAccessibleTopology(); t != nil {
		node = t.GetSegments()[topologyKey]
	}

	total, err := s.reg.GetCapacity(node)
	if err != nil {
		return nil, toStatusErr(err)
	}
	return &csipb.GetCapacityResponse{AvailableCapacity: total}, nil
}

// ControllerGetCapabilities implements csi.ControllerServer, advertising
// exactly the capability set spec.md §6 names.
func (s *Server) ControllerGetCapabilities(ctx context.Context, req *csipb.ControllerGetCapabilitiesRequest) (*csipb.ControllerGetCapabilitiesResponse, error) {
	rpc := func(t csipb.ControllerServiceCapability_RPC_Type) *csipb.ControllerServiceCapability {
		return &csipb.ControllerServiceCapability{
			Type: &csipb.ControllerServiceCapability_Rpc{
				Rpc: &csipb.ControllerServiceCapability_RPC{Type: t},
			},
		}
	}
	return &csipb.ControllerGetCapabilitiesResponse{
		Capabilities: []*csipb.ControllerServiceCapability{
			rpc(csipb.ControllerServiceCapability_RPC_CREATE_DELETE_VOLUME),
			rpc(csipb.ControllerServiceCapability_RPC_PUBLISH_UNPUBLISH_VOLUME),
			rpc(csipb.ControllerServiceCapability_RPC_LIST_VOLUMES),
			rpc(csipb.ControllerServiceCapability_RPC_GET_CAPACITY),
		},
	}, nil
}

// CreateSnapshot, DeleteSnapshot, ListSnapshots, and ControllerExpandVolume
// are deliberately unimplemented (spec.md §6); the embedded
// UnimplementedControllerServer would already return UNIMPLEMENTED for
// them, but they are spelled out here since the spec names them explicitly
// as part of the surface.

func (s *Server) CreateSnapshot(ctx context.Context, req *csipb.CreateSnapshotRequest) (*csipb.CreateSnapshotResponse, error) {
	return nil, status.Error(codes.Unimplemented, "snapshots are not supported")
}

func (s *Server) DeleteSnapshot(ctx context.Context, req *csipb.DeleteSnapshotRequest) (*csipb.DeleteSnapshotResponse, error) {
	return nil, status.Error(codes.Unimplemented, "snapshots are not supported")
}

func (s *Server) ListSnapshots(ctx context.Context, req *csipb.ListSnapshotsRequest) (*csipb.ListSnapshotsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "snapshots are not supported")
}

func (s *Server) ControllerExpandVolume(ctx context.Context, req *csipb.ControllerExpandVolumeRequest) (*csipb.ControllerExpandVolumeResponse, error) {
	return nil, status.Error(codes.Unimplemented, "volume expansion is not supported")
}

// parseVolumeName validates the pvc-<uuid> naming convention and extracts
// the uuid that becomes the volume id.
func parseVolumeName(name string) (string, error) {
	const prefix = "pvc-"
	if !strings.HasPrefix(name, prefix) || len(name) <= len(prefix) {
		return "", status.Errorf(codes.InvalidArgument, "volume name %q does not match pvc-<uuid>", name)
	}
	return strings.TrimPrefix(name, prefix), nil
}
