package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cuemby/burrow/pkg/client"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply resources from a YAML file",
	Long: `Apply burrow resources from a YAML file. A file may hold several
documents separated by "---". Resources that already exist are left alone,
except pools, which gain any listed member they lack.

Examples:
  # Create a pool and a lease installed from it
  burrow apply -f rack.yaml

Supported kinds: Pool, Lease, GatewayPair, Namespace.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(applyCmd)
}

// Resource is one YAML document
type Resource struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Metadata   ResourceMetadata `yaml:"metadata"`
	Spec       yaml.Node        `yaml:"spec"`
}

type ResourceMetadata struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

// PoolSpec is the spec of a Pool resource
type PoolSpec struct {
	Members []string `yaml:"members"`
}

// LeaseSpec is the spec of a Lease resource
type LeaseSpec struct {
	Pool    string `yaml:"pool"`
	BootURL string `yaml:"bootURL"`
	Install bool   `yaml:"install"`
}

// GatewayPairSpec is the spec of a GatewayPair resource
type GatewayPairSpec struct {
	Active  string `yaml:"active"`
	Passive string `yaml:"passive"`
}

// NamespaceSpec is the spec of a Namespace resource
type NamespaceSpec struct {
	DiskType string `yaml:"diskType"`
	Mode     string `yaml:"mode"`
	Size     int64  `yaml:"size"`
	Password string `yaml:"password"`
	Public   bool   `yaml:"public"`
}

// parseResources reads every document in r
func parseResources(r io.Reader) ([]Resource, error) {
	dec := yaml.NewDecoder(r)
	var out []Resource
	for {
		var res Resource
		err := dec.Decode(&res)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		if res.Kind == "" && res.Metadata.Name == "" {
			continue
		}
		if res.Metadata.Name == "" {
			return nil, fmt.Errorf("%s resource without metadata.name", res.Kind)
		}
		out = append(out, res)
	}
	return out, nil
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	resources, err := parseResources(f)
	if err != nil {
		return err
	}

	c, ctx, cancel, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer cancel()
	defer c.Close()

	out := cmd.OutOrStdout()
	for _, res := range resources {
		var msg string
		switch res.Kind {
		case "Pool":
			msg, err = applyPool(ctx, c, &res)
		case "Lease":
			msg, err = applyLease(ctx, c, &res)
		case "GatewayPair":
			msg, err = applyGatewayPair(ctx, c, &res)
		case "Namespace":
			msg, err = applyNamespace(ctx, c, &res)
		default:
			err = fmt.Errorf("unsupported resource kind: %s", res.Kind)
		}
		if err != nil {
			return fmt.Errorf("%s %s: %w", res.Kind, res.Metadata.Name, err)
		}
		fmt.Fprintln(out, msg)
	}
	return nil
}

func applyPool(ctx context.Context, c *client.Client, res *Resource) (string, error) {
	var spec PoolSpec
	if err := res.Spec.Decode(&spec); err != nil {
		return "", fmt.Errorf("invalid spec: %w", err)
	}
	name := res.Metadata.Name

	existing, err := c.GetPool(ctx, name)
	if errors.Is(err, types.ErrNotFound) {
		if _, err := c.CreatePool(ctx, name, spec.Members); err != nil {
			return "", err
		}
		return fmt.Sprintf("✓ Pool created: %s", name), nil
	}
	if err != nil {
		return "", err
	}

	have := make(map[string]bool, len(existing.Members))
	for _, m := range existing.Members {
		have[m] = true
	}
	added := 0
	for _, m := range spec.Members {
		if have[m] {
			continue
		}
		if _, err := c.AddPoolMember(ctx, name, m); err != nil {
			return "", err
		}
		have[m] = true
		added++
	}
	return fmt.Sprintf("✓ Pool updated: %s (%d members added)", name, added), nil
}

func applyLease(ctx context.Context, c *client.Client, res *Resource) (string, error) {
	var spec LeaseSpec
	if err := res.Spec.Decode(&spec); err != nil {
		return "", fmt.Errorf("invalid spec: %w", err)
	}
	name := res.Metadata.Name

	lease, err := c.GetLease(ctx, name)
	if errors.Is(err, types.ErrNotFound) {
		lease, err = c.CreateLease(ctx, name, spec.Pool, spec.BootURL)
	}
	if err != nil {
		return "", err
	}
	if spec.Install && lease.Status != types.StatusInstalled {
		if lease, err = c.LeaseAction(ctx, name, "install"); err != nil {
			return "", err
		}
		return fmt.Sprintf("✓ Lease installed: %s on %s", name, lease.Lease.HostName), nil
	}
	return fmt.Sprintf("✓ Lease applied: %s (%s)", name, lease.Status), nil
}

func applyGatewayPair(ctx context.Context, c *client.Client, res *Resource) (string, error) {
	var spec GatewayPairSpec
	if err := res.Spec.Decode(&spec); err != nil {
		return "", fmt.Errorf("invalid spec: %w", err)
	}
	name := res.Metadata.Name

	if pair, err := c.GetGatewayPair(ctx, name); err == nil {
		return fmt.Sprintf("Gateway pair already exists: %s (active=%s, skipping)", name, pair.Active), nil
	} else if !errors.Is(err, types.ErrNotFound) {
		return "", err
	}
	if _, err := c.CreateGatewayPair(ctx, name, spec.Active, spec.Passive); err != nil {
		return "", err
	}
	return fmt.Sprintf("✓ Gateway pair created: %s", name), nil
}

func applyNamespace(ctx context.Context, c *client.Client, res *Resource) (string, error) {
	var spec NamespaceSpec
	if err := res.Spec.Decode(&spec); err != nil {
		return "", fmt.Errorf("invalid spec: %w", err)
	}
	name := res.Metadata.Name

	placements, err := c.ListNamespaces(ctx)
	if err != nil {
		return "", err
	}
	for _, p := range placements {
		if p.Namespace == name {
			return fmt.Sprintf("Namespace already exists: %s on %s (skipping)", name, p.Backend), nil
		}
	}

	p, err := c.CreateNamespace(ctx, spec.request(name))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✓ Namespace created: %s on %s (%s)", name, p.Backend, p.Phase), nil
}

func (s NamespaceSpec) request(name string) types.NamespaceRequest {
	req := types.NamespaceRequest{
		DiskClass:     types.DiskClass(s.DiskType),
		Mode:          types.ZDBMode(s.Mode),
		SizeGiB:       s.Size,
		Password:      s.Password,
		Public:        s.Public,
		RequestedName: name,
	}
	if req.DiskClass == "" {
		req.DiskClass = types.DiskClassHDD
	}
	if req.Mode == "" {
		req.Mode = types.ZDBModeUser
	}
	return req
}
