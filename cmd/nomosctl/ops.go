package main

import (
	"fmt"

	nomos "github.com/misaret/nomos-go"
	"github.com/spf13/cobra"
)

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <level> <sub-level> <key>",
		Short: "Print the value stored under key",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, subLevel, err := namespace(args)
			if err != nil {
				return err
			}
			renew, _ := cmd.Flags().GetDuration("renew")

			client, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			v, ok := client.Get(level, subLevel, args[2], durationSeconds(renew))
			if !ok {
				return fmt.Errorf("%s: %w", args[2], errNotFound)
			}
			_, err = cmd.OutOrStdout().Write(append(v, '\n'))
			return err
		},
	}
	cmd.Flags().Duration("renew", 0, "Reset the entry's TTL while reading it")
	return cmd
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <level> <sub-level> <key> <value>",
		Short: "Store a value",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, subLevel, err := namespace(args)
			if err != nil {
				return err
			}
			expire, _ := cmd.Flags().GetDuration("expire")

			client, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			if !client.Put(level, subLevel, args[2], durationSeconds(expire), []byte(args[3])) {
				return fmt.Errorf("put %s failed", args[2])
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
	cmd.Flags().Duration("expire", 0, "Entry TTL; 0 keeps it until deleted")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <level> <sub-level> <key>",
		Short: "Remove a value",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, subLevel, err := namespace(args)
			if err != nil {
				return err
			}
			client, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			if !client.Delete(level, subLevel, args[2]) {
				return fmt.Errorf("delete %s failed", args[2])
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
}

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check every configured server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			results := client.Ping()
			endpoints := client.Endpoints()
			failed := 0
			for _, e := range endpoints {
				if err := results[e]; err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tDOWN\t%v\n", e, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tUP\n", e)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d servers unreachable", failed, len(endpoints))
			}
			return nil
		},
	}
}

func newRouteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "route <level> <sub-level> <key>...",
		Short: "Show the canonical key and owning server without contacting it",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, subLevel, err := namespace(args)
			if err != nil {
				return err
			}
			client, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			for _, k := range args[2:] {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", k, nomos.CanonicalKey(k), client.Route(level, subLevel, k))
			}
			return nil
		},
	}
}
