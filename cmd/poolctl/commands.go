package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newStatusCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show process and supergroup counts for the pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := flags.newClient()
			st, err := c.Status(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("processes: %d\nsupergroups: %d\nspawning: %v\n", st.ProcessCount, st.SupergroupCount, st.IsSpawning)
			return nil
		},
	}
}

func newInspectCommand(flags *GlobalFlags) *cobra.Command {
	var secrets bool
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Dump the pool's supergroup/group/process tree as XML",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := flags.newClient()
			out, err := c.Inspect(context.Background(), secrets)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}
	cmd.Flags().BoolVar(&secrets, "secrets", false, "include union station keys and other sensitive fields")
	return cmd
}

func newDetachProcessCommand(flags *GlobalFlags) *cobra.Command {
	var gupid string
	cmd := &cobra.Command{
		Use:   "detach-process",
		Short: "Detach a single process from its group without restarting it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if gupid == "" {
				return fmt.Errorf("--gupid is required")
			}
			return flags.newClient().DetachProcess(context.Background(), gupid)
		},
	}
	cmd.Flags().StringVar(&gupid, "gupid", "", "gupid of the process to detach")
	return cmd
}

func newDisableProcessCommand(flags *GlobalFlags) *cobra.Command {
	var gupid string
	cmd := &cobra.Command{
		Use:   "disable-process",
		Short: "Disable a process, waiting for in-flight requests to drain",
		RunE: func(cmd *cobra.Command, args []string) error {
			if gupid == "" {
				return fmt.Errorf("--gupid is required")
			}
			resp, err := flags.newClient().DisableProcess(context.Background(), gupid)
			if err != nil {
				return err
			}
			fmt.Println(resp.Result)
			return nil
		},
	}
	cmd.Flags().StringVar(&gupid, "gupid", "", "gupid of the process to disable")
	return cmd
}

func newDetachSupergroupCommand(flags *GlobalFlags) *cobra.Command {
	var name, secret string
	cmd := &cobra.Command{
		Use:   "detach-supergroup",
		Short: "Detach an entire supergroup by app group name or secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case name != "" && secret != "":
				return fmt.Errorf("specify exactly one of --name or --secret")
			case name != "":
				return flags.newClient().DetachSupergroupByName(context.Background(), name)
			case secret != "":
				return flags.newClient().DetachSupergroupBySecret(context.Background(), secret)
			default:
				return fmt.Errorf("specify exactly one of --name or --secret")
			}
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "app group name of the supergroup to detach")
	cmd.Flags().StringVar(&secret, "secret", "", "secret of the supergroup to detach")
	return cmd
}

func newRestartCommand(flags *GlobalFlags) *cobra.Command {
	var appRoot, scope string
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart all groups or supergroups for an app root",
		RunE: func(cmd *cobra.Command, args []string) error {
			if appRoot == "" {
				return fmt.Errorf("--app-root is required")
			}
			if scope != "groups" && scope != "supergroups" {
				return fmt.Errorf("--scope must be \"groups\" or \"supergroups\"")
			}
			return flags.newClient().Restart(context.Background(), appRoot, scope)
		},
	}
	cmd.Flags().StringVar(&appRoot, "app-root", "", "app root to restart")
	cmd.Flags().StringVar(&scope, "scope", "groups", "restart scope: groups or supergroups")
	return cmd
}

func newSetMaxCommand(flags *GlobalFlags) *cobra.Command {
	var max int
	cmd := &cobra.Command{
		Use:   "set-max",
		Short: "Change the pool's process admission cap",
		RunE: func(cmd *cobra.Command, args []string) error {
			if max <= 0 {
				return fmt.Errorf("--max must be positive")
			}
			return flags.newClient().SetMax(context.Background(), max)
		},
	}
	cmd.Flags().IntVar(&max, "max", 0, "new maximum process count")
	_ = cmd.MarkFlagRequired("max")
	return cmd
}
