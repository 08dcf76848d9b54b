package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"netonboard/internal/codec"
	"netonboard/internal/domain"
)

// onboardFlags carries the per-device hints of the onboard command.
type onboardFlags struct {
	site        string
	role        string
	platform    string
	protocol    string
	port        int
	credentials string
	timeout     time.Duration

	file        string
	inputFormat string
	output      string
	noColor     bool
}

var onboard = &onboardFlags{}

var onboardCmd = &cobra.Command{
	Use:   "onboard [address...]",
	Short: "Onboard devices once and print the results",
	Example: `  netonboard onboard 192.0.2.10 --site HQ
  netonboard onboard --file inventory.yaml --input-format ansible-inventory -o yaml`,
	RunE: func(cmd *cobra.Command, addrs []string) error {
		return runOnboard(cmd.Context(), addrs)
	},
}

func init() {
	f := onboardCmd.Flags()
	f.StringVar(&onboard.site, "site", "", "site to place the devices in")
	f.StringVar(&onboard.role, "role", "", "device role")
	f.StringVar(&onboard.platform, "platform", "", "driver to use instead of autodetection")
	f.StringVar(&onboard.protocol, "protocol", "", "management protocol - ssh, snmp")
	f.IntVar(&onboard.port, "port", 0, "management port")
	f.StringVar(&onboard.credentials, "credentials", "", "credentials reference")
	f.DurationVar(&onboard.timeout, "timeout", 0, "per-attempt connect timeout")
	f.StringVarP(&onboard.file, "file", "f", "", "read requests from a batch file")
	f.StringVar(&onboard.inputFormat, "input-format", "yaml", "batch file format - yaml, json, ansible-inventory")
	f.StringVarP(&onboard.output, "output", "o", "text", "output format - text, json, yaml, ansible-inventory")
	f.BoolVar(&onboard.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(onboardCmd)
}

func (o *onboardFlags) requests(addrs []string) ([]domain.OnboardingRequest, error) {
	var reqs []domain.OnboardingRequest

	if o.file != "" {
		importer, err := codec.ImporterFor(o.inputFormat)
		if err != nil {
			return nil, err
		}
		fh, err := os.Open(o.file)
		if err != nil {
			return nil, err
		}
		defer fh.Close()

		if reqs, err = importer.Parse(fh); err != nil {
			return nil, fmt.Errorf("%s: %w", o.file, err)
		}
	}

	for _, addr := range addrs {
		reqs = append(reqs, domain.OnboardingRequest{Address: addr})
	}

	// flags fill what the batch left unset
	for i := range reqs {
		r := &reqs[i]
		if r.Site == "" {
			r.Site = o.site
		}
		if r.Role == "" {
			r.Role = o.role
		}
		if r.Platform == "" {
			r.Platform = o.platform
		}
		if r.Protocol == "" {
			r.Protocol = domain.Protocol(o.protocol)
		}
		if r.Port == 0 {
			r.Port = o.port
		}
		if r.CredentialsRef == "" {
			r.CredentialsRef = o.credentials
		}
		if r.Timeout == 0 {
			r.Timeout = o.timeout
		}
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}

	if len(reqs) == 0 {
		return nil, fmt.Errorf("no devices given; pass addresses or --file")
	}
	return reqs, nil
}

func runOnboard(ctx context.Context, addrs []string) error {
	reqs, err := onboard.requests(addrs)
	if err != nil {
		return err
	}

	colorize := !onboard.noColor && !color.NoColor
	exporter, err := codec.ExporterFor(onboard.output, colorize)
	if err != nil {
		return err
	}

	a, err := newApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results := make([]*domain.OnboardingResult, len(reqs))
	errs := make([]error, len(reqs))

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req domain.OnboardingRequest) {
			defer wg.Done()
			results[i], errs[i] = a.controller.Run(ctx, req)
		}(i, req)
	}
	wg.Wait()

	var failed int
	for i, res := range results {
		if errs[i] != nil {
			return errs[i]
		}
		if !res.Succeeded() {
			failed++
		}
	}

	if err := exporter.Export(results, os.Stdout); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d devices failed", failed, len(results))
	}
	return nil
}
