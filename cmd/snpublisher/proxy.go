package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"snpublisher/pkg/proxy"
)

// proxyCmd groups proxy pool diagnostics
var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Proxy pool diagnostics",
	Long: `Inspect and exercise the proxy pool without touching the platform.

Useful for verifying provider credentials, list files, and geo targeting
before starting a publishing run.`,
}

// proxyCheckCmd acquires one proxy and validates its egress location
var proxyCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Acquire a proxy and verify its egress location",
	Example: `  # Verify the pool produces a working, correctly located proxy
  snpublisher proxy check`,
	RunE: runProxyCheck,
}

// proxyRotateCmd performs several forced rotations to demonstrate IP uniqueness
var proxyRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Force one or more rotations and print the bound IPs",
	RunE:  runProxyRotate,
}

var rotateCount int

func init() {
	rootCmd.AddCommand(proxyCmd)
	proxyCmd.AddCommand(proxyCheckCmd)
	proxyCmd.AddCommand(proxyRotateCmd)

	proxyRotateCmd.Flags().IntVarP(&rotateCount, "count", "n", 3, "number of rotations to perform")
}

func runProxyCheck(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

	pool, err := proxy.NewPool(&cfg.Proxy, nil, log)
	if err != nil {
		return fmt.Errorf("failed to build proxy pool: %w", err)
	}

	bound, err := pool.Acquire(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to acquire proxy: %w", err)
	}

	fmt.Printf("Bound proxy: %s\n", bound.Descriptor.Host)
	fmt.Printf("  IP:       %s\n", bound.IP)
	fmt.Printf("  Location: %s, %s\n", bound.City, bound.Country)
	fmt.Printf("  Session:  %s\n", bound.Descriptor.Session)

	if err := pool.ValidateActive(cmd.Context()); err != nil {
		return fmt.Errorf("egress validation failed: %w", err)
	}

	fmt.Println("Egress location verified")
	return nil
}

func runProxyRotate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

	pool, err := proxy.NewPool(&cfg.Proxy, nil, log)
	if err != nil {
		return fmt.Errorf("failed to build proxy pool: %w", err)
	}

	fmt.Printf("Pool size: %d descriptors\n", pool.Size())

	for i := 0; i < rotateCount; i++ {
		bound, err := pool.Acquire(cmd.Context())
		if err != nil {
			return fmt.Errorf("rotation %d failed: %w", i+1, err)
		}
		fmt.Printf("  rotation %d: %s (%s, %s)\n", i+1, bound.IP, bound.City, bound.Country)
	}
	return nil
}
