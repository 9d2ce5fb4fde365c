package csi

import (
	"strconv"
	"time"

	csipb "github.com/container-storage-interface/spec/lib/go/csi"
	"gopkg.in/yaml.v3"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nexusvol/control-plane/pkg/types"
)

// parseCreateParameters implements spec.md §4.12's CreateVolume parameter
// table: repl, local, protocol, ioTimeout are recognised and validated;
// every other key is preserved verbatim to be echoed back as volume_context.
func parseCreateParameters(params map[string]string) (types.VolumeSpec, map[string]string, error) {
	spec := types.VolumeSpec{ReplicaCount: 1, Protocol: types.ProtocolNvmf}
	leftover := make(map[string]string, len(params))

	var ioTimeoutSeen bool
	for k, v := range params {
		switch k {
		case "repl":
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return types.VolumeSpec{}, nil, status.Errorf(codes.InvalidArgument, "invalid repl parameter %q", v)
			}
			spec.ReplicaCount = n
		case "local":
			var b bool
			if err := yaml.Unmarshal([]byte(v), &b); err != nil {
				return types.VolumeSpec{}, nil, status.Errorf(codes.InvalidArgument, "invalid local parameter %q", v)
			}
			spec.Local = b
		case "protocol":
			switch types.VolumeProtocol(v) {
			case types.ProtocolNvmf, types.ProtocolIscsi:
				spec.Protocol = types.VolumeProtocol(v)
			default:
				return types.VolumeSpec{}, nil, status.Errorf(codes.InvalidArgument, "invalid protocol parameter %q", v)
			}
		case "ioTimeout":
			secs, err := strconv.Atoi(v)
			if err != nil || secs < 0 {
				return types.VolumeSpec{}, nil, status.Errorf(codes.InvalidArgument, "invalid ioTimeout parameter %q", v)
			}
			d := time.Duration(secs) * time.Second
			spec.IOTimeout = &d
			ioTimeoutSeen = true
		default:
			leftover[k] = v
		}
	}

	if ioTimeoutSeen && spec.Protocol != types.ProtocolNvmf {
		return types.VolumeSpec{}, nil, status.Error(codes.InvalidArgument, "ioTimeout is only valid with the nvmf protocol")
	}
	return spec, leftover, nil
}

// validateAccessModes enforces spec.md §4.12: every capability must request
// SINGLE_NODE_WRITER.
func validateAccessModes(caps []*csipb.VolumeCapability) error {
	if len(caps) == 0 {
		return status.Error(codes.InvalidArgument, "volume capabilities are required")
	}
	for _, c := range caps {
		if c.GetAccessMode().GetMode() != csipb.VolumeCapability_AccessMode_SINGLE_NODE_WRITER {
			return status.Errorf(codes.InvalidArgument, "unsupported access mode %v", c.GetAccessMode().GetMode())
		}
	}
	return nil
}

// requisiteNodes extracts the node names named in
// accessibility_requirements.requisite, rejecting any topology key other
// than kubernetes.io/hostname. Entries in preferred are ignored.
func requisiteNodes(req *csipb.TopologyRequirement) ([]string, error) {
	if req == nil {
		return nil, nil
	}
	var nodes []string
	for _, t := range req.GetRequisite() {
		for k, v := range t.GetSegments() {
			if k != topologyKey {
				return nil, status.Errorf(codes.InvalidArgument, "unsupported topology key %q", k)
			}
			nodes = append(nodes, v)
		}
	}
	return nodes, nil
}

// parseNodeID extracts the node name from a mayastor://<nodeName> node id.
func parseNodeID(nodeID string) (string, error) {
	const prefix = "mayastor://"
	if len(nodeID) <= len(prefix) || nodeID[:len(prefix)] != prefix {
		return "", status.Errorf(codes.InvalidArgument, "unsupported node id %q", nodeID)
	}
	return nodeID[len(prefix):], nil
}
