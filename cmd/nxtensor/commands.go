package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/couchcryptid/nxtensor/internal/partition"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Preprocess labels, extract every channel and assemble the tensor",
		RunE: func(_ *cobra.Command, _ []string) error {
			rt, err := newApp()
			if err != nil {
				return err
			}
			return rt.serve(rt.pipeline.Run)
		},
	}
}

func newPreprocessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preprocess",
		Short: "Partition the label tables and print the resulting work units",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newApp()
			if err != nil {
				return err
			}
			return rt.serve(func(ctx context.Context) error {
				units, err := rt.pipeline.Preprocess(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for g, u := range units {
					s := partition.Count(u)
					fmt.Fprintf(out, "granularity %s: %d units, %d events\n", g, s.Units, s.Events)
					labels := make([]string, 0, len(s.ByLabel))
					for l := range s.ByLabel {
						labels = append(labels, l)
					}
					sort.Strings(labels)
					for _, l := range labels {
						fmt.Fprintf(out, "  %-16s %d\n", l, s.ByLabel[l])
					}
				}
				return nil
			})
		},
	}
}

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract",
		Short: "Preprocess labels and extract the blocks of every channel",
		RunE: func(_ *cobra.Command, _ []string) error {
			rt, err := newApp()
			if err != nil {
				return err
			}
			return rt.serve(func(ctx context.Context) error {
				units, err := rt.pipeline.Preprocess(ctx)
				if err != nil {
					return err
				}
				return rt.pipeline.Extract(ctx, units)
			})
		},
	}
}

func newAssembleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assemble",
		Short: "Build channels and stack the tensor from previously extracted blocks",
		RunE: func(_ *cobra.Command, _ []string) error {
			rt, err := newApp()
			if err != nil {
				return err
			}
			return rt.serve(rt.pipeline.Assemble)
		},
	}
}
