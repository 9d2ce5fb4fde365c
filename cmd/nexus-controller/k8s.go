package main

import (
	"fmt"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// buildDynamicClient resolves a kubeconfig the same way every out-of-tree
// CSI sidecar does: explicit --kubeconfig/--master flags when set, falling
// back to in-cluster config when the process is itself running as a pod.
func buildDynamicClient(kubeconfig, master string) (dynamic.Interface, error) {
	cfg, err := buildRESTConfig(kubeconfig, master)
	if err != nil {
		return nil, err
	}
	return dynamic.NewForConfig(cfg)
}

func buildRESTConfig(kubeconfig, master string) (*rest.Config, error) {
	if kubeconfig != "" || master != "" {
		cfg, err := clientcmd.BuildConfigFromFlags(master, kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("build kubeconfig-based config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("build in-cluster config: %w", err)
	}
	return cfg, nil
}
