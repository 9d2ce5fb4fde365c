package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"k8s.io/apimachinery/pkg/runtime/schema"

	csipb "github.com/container-storage-interface/spec/lib/go/csi"

	"github.com/nexusvol/control-plane/pkg/childstore"
	"github.com/nexusvol/control-plane/pkg/csi"
	"github.com/nexusvol/control-plane/pkg/ha"
	"github.com/nexusvol/control-plane/pkg/log"
	"github.com/nexusvol/control-plane/pkg/metrics"
	"github.com/nexusvol/control-plane/pkg/operator"
	"github.com/nexusvol/control-plane/pkg/registry"
	"github.com/nexusvol/control-plane/pkg/statscollector"
	"github.com/nexusvol/control-plane/pkg/volume"
	"github.com/nexusvol/control-plane/pkg/watcher"
)

var (
	poolGVR = schema.GroupVersionResource{Group: "openebs.io", Version: "v1alpha1", Resource: "mayastorpools"}
	nodeGVR = schema.GroupVersionResource{Group: "openebs.io", Version: "v1alpha1", Resource: "mayastornodes"}
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control plane: registry, volume FSA, CR operators, and the CSI controller gRPC endpoint",
	RunE:  runServe,
}

func init() {
	flags := serveCmd.Flags()

	flags.String("node-id", "nexus-controller-1", "Unique ID of this control-plane replica in the raft quorum")
	flags.String("raft-bind-addr", "127.0.0.1:9290", "Address this replica advertises for raft traffic")
	flags.String("raft-data-dir", "./nexus-controller-data", "Directory for this replica's raft log/stable/snapshot stores")
	flags.Bool("bootstrap", true, "Bootstrap a brand-new single-node raft cluster instead of joining an existing one")

	flags.StringSlice("etcd-endpoints", []string{"127.0.0.1:2379"}, "etcd endpoints backing the persistent child-health store (C11)")

	flags.String("kubeconfig", "", "Path to a kubeconfig file; empty uses in-cluster config")
	flags.String("master", "", "Kubernetes API server URL; empty uses in-cluster config")
	flags.String("namespace", "", "Namespace to watch MayastorPool/MayastorNode custom resources in; empty watches cluster-wide")

	flags.String("csi-endpoint", "unix:///var/lib/nexus-controller/csi.sock", "CSI controller gRPC endpoint")

	flags.String("metrics-addr", "127.0.0.1:9090", "Address for the /metrics, /healthz and /readyz HTTP endpoints")
}

func runServe(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	nodeID, _ := flags.GetString("node-id")
	raftBindAddr, _ := flags.GetString("raft-bind-addr")
	raftDataDir, _ := flags.GetString("raft-data-dir")
	bootstrap, _ := flags.GetBool("bootstrap")
	etcdEndpoints, _ := flags.GetStringSlice("etcd-endpoints")
	kubeconfig, _ := flags.GetString("kubeconfig")
	master, _ := flags.GetString("master")
	namespace, _ := flags.GetString("namespace")
	csiEndpoint, _ := flags.GetString("csi-endpoint")
	metricsAddr, _ := flags.GetString("metrics-addr")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("raft", false, "starting")
	metrics.RegisterComponent("childstore", false, "starting")
	metrics.RegisterComponent("watcher", false, "starting")
	metrics.RegisterComponent("csi", false, "starting")

	elector, err := startElector(ha.Config{NodeID: nodeID, BindAddr: raftBindAddr, DataDir: raftDataDir}, bootstrap)
	if err != nil {
		return fmt.Errorf("start leader election: %w", err)
	}
	defer elector.Shutdown()
	metrics.RegisterComponent("raft", true, "started")

	store, err := childstore.New(childstore.DefaultConfig(etcdEndpoints))
	if err != nil {
		return fmt.Errorf("connect to child-health store: %w", err)
	}
	defer store.Close()
	metrics.RegisterComponent("childstore", true, "connected")

	dynClient, err := buildDynamicClient(kubeconfig, master)
	if err != nil {
		return fmt.Errorf("build kubernetes client: %w", err)
	}

	reg := registry.New(ctx, registry.DefaultNodeConfig())
	mgr := volume.NewManager(ctx, reg, store, volume.DefaultConfig())
	go mgr.Run(ctx)
	defer mgr.Close()

	poolCache := watcher.New(dynClient, poolGVR, namespace, watcher.DefaultConfig())
	if err := poolCache.Start(ctx); err != nil {
		return fmt.Errorf("start pool watcher: %w", err)
	}
	nodeCache := watcher.New(dynClient, nodeGVR, namespace, watcher.DefaultConfig())
	if err := nodeCache.Start(ctx); err != nil {
		return fmt.Errorf("start node watcher: %w", err)
	}
	metrics.RegisterComponent("watcher", true, "synced")

	poolOperator := operator.NewPoolOperator(poolCache, reg, operator.DefaultPoolConfig())
	poolOperator.Start(ctx)
	defer poolOperator.Stop()

	nodeOperator := operator.NewNodeOperator(nodeCache, reg)
	nodeOperator.Start(ctx)
	defer nodeOperator.Stop()

	stats := statscollector.New(reg, mgr, statscollector.DefaultPeriod)
	stats.Start()
	defer stats.Stop()

	// Only the raft leader serves CSI RPCs; followers answer UNAVAILABLE
	// without naming the current leader (spec.md §2, §4.12, §7).
	ready := func() bool { return elector.IsLeader() }

	csiServer := csi.New(mgr, reg, ready)
	lis, err := csiListener(csiEndpoint)
	if err != nil {
		return fmt.Errorf("listen on csi endpoint: %w", err)
	}
	grpcServer := grpc.NewServer()
	csipb.RegisterControllerServer(grpcServer, csiServer)
	csipb.RegisterIdentityServer(grpcServer, csiServer)

	grpcErrCh := make(chan error, 1)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			grpcErrCh <- fmt.Errorf("csi grpc server: %w", err)
		}
	}()
	metrics.RegisterComponent("csi", true, fmt.Sprintf("listening on %s", csiEndpoint))
	log.WithComponent("nexus-controller").Info().Str("endpoint", csiEndpoint).Msg("csi controller listening")

	httpServer := &http.Server{Addr: metricsAddr}
	http.Handle("/metrics", metrics.Handler())
	http.Handle("/healthz", metrics.HealthHandler())
	http.Handle("/readyz", metrics.ReadyHandler())
	http.Handle("/livez", metrics.LivenessHandler())
	httpErrCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpErrCh <- fmt.Errorf("metrics http server: %w", err)
		}
	}()
	log.WithComponent("nexus-controller").Info().Str("addr", metricsAddr).Msg("metrics/health endpoints listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.WithComponent("nexus-controller").Info().Msg("shutting down")
	case err := <-grpcErrCh:
		log.WithComponent("nexus-controller").Error().Err(err).Msg("csi server failed")
	case err := <-httpErrCh:
		log.WithComponent("nexus-controller").Error().Err(err).Msg("metrics server failed")
	}

	grpcServer.GracefulStop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	return nil
}

// startElector bootstraps a new single-node raft cluster or joins an
// existing one depending on the operator's intent, mirroring the teacher's
// cluster init / manager join split (cmd/warren cluster init vs manager join).
func startElector(cfg ha.Config, bootstrap bool) (*ha.Elector, error) {
	if bootstrap {
		return ha.Bootstrap(cfg)
	}
	return ha.Join(cfg)
}
