// Command oxidepm is the CLI client: every subcommand dials oxidepmd's
// unix socket, sends one ipc.Request, and prints the ipc.Response.
//
// Grounded on the teacher's cmd/provisr/main.go for the flat cobra root +
// one subcommand per verb shape, and on
// original_source/crates/oxidepm/src/cli.rs for the verb/flag surface
// (narrowed to this module's scope: no git-clone target, no TUI/web/notify
// subcommands - those are REDESIGN FLAGS/Non-goals territory, not part of
// spec §6's CLI surface).
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oxidepm/oxidepm/internal/appspec"
	"github.com/oxidepm/oxidepm/internal/config"
	"github.com/oxidepm/oxidepm/internal/daemondir"
	"github.com/oxidepm/oxidepm/internal/ipc"
)

func main() {
	root := &cobra.Command{
		Use:           "oxidepm",
		Short:         "oxidepm: control the local oxidepmd process manager",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newStartCmd(),
		newSelectorCmd("stop", "stop the selected app(s)", ipc.ReqStop),
		newSelectorCmd("restart", "restart the selected app(s)", ipc.ReqRestart),
		newSelectorCmd("delete", "stop and forget the selected app(s)", ipc.ReqDelete),
		newSelectorCmd("reload", "zero-downtime reload the selected app(s)", ipc.ReqReload),
		newSelectorCmd("flush", "truncate logs for the selected app(s)", ipc.ReqFlush),
		newStatusCmd(),
		newShowCmd(),
		newDescribeCmd(),
		newLogsCmd(),
		newPingCmd(),
		newSaveCmd(),
		newResurrectCmd(),
		newKillCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "oxidepm:", err)
		os.Exit(1)
	}
}

func dial() (*ipc.Conn, error) {
	path, err := daemondir.SocketPath()
	if err != nil {
		return nil, err
	}
	return ipc.Dial(path)
}

func call(req *ipc.Request) (*ipc.Response, error) {
	conn, err := dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	resp, err := conn.Call(req)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return resp, nil
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

// newSelectorCmd builds the common shape shared by every verb that takes a
// single selector argument and reports back a count.
func newSelectorCmd(use, short string, reqType ipc.RequestType) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <selector>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call(&ipc.Request{Type: reqType, Selector: args[0]})
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}
}

func newStartCmd() *cobra.Command {
	var (
		configPath string
		cwd        string
		envKVs     []string
		envFile    string
		envInherit bool
		mode       string
		instances  int
		tags       []string
		restartDelayMs int
		maxRestarts    int
		killTimeoutMs  int
		noAutorestart  bool
	)
	cmd := &cobra.Command{
		Use:   "start <name> [-- command args...]",
		Short: "start an app, or every app in a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				specs, err := config.LoadSpecs(configPath)
				if err != nil {
					return err
				}
				for _, spec := range specs {
					resp, err := call(&ipc.Request{Type: ipc.ReqStart, Spec: spec})
					if err != nil {
						return fmt.Errorf("start %s: %w", spec.Name, err)
					}
					printJSON(resp)
				}
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("start requires a name, or --config")
			}
			name := args[0]
			rest := args[1:]

			env, err := config.ParseEnvFlags(envKVs)
			if err != nil {
				return err
			}
			if envFile != "" {
				fileEnv, err := config.LoadEnvFile(envFile)
				if err != nil {
					return err
				}
				for k, v := range fileEnv {
					if _, ok := env[k]; !ok {
						env[k] = v
					}
				}
			}

			appMode := appspec.ModeRawCommand
			if mode != "" {
				appMode = appspec.Mode(mode)
			}
			if !appspec.ValidMode(appMode) {
				return fmt.Errorf("invalid --mode %q", mode)
			}

			command := name
			var cmdArgs []string
			if len(rest) > 0 {
				command = rest[0]
				cmdArgs = rest[1:]
			}

			spec := &appspec.AppSpec{
				Name:       name,
				Mode:       appMode,
				Command:    command,
				Args:       cmdArgs,
				Cwd:        cwd,
				Env:        env,
				EnvInherit: envInherit,
				RestartPolicy: appspec.RestartPolicy{
					AutoRestart:    !noAutorestart,
					MaxRestarts:    maxRestarts,
					RestartDelayMs: restartDelayMs,
				},
				KillTimeoutMs: killTimeoutMs,
				Instances:     instances,
				Tags:          tags,
			}
			if spec.Instances == 0 {
				spec.Instances = 1
			}
			resp, err := call(&ipc.Request{Type: ipc.ReqStart, Spec: spec})
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "load and start every app declared in this config file")
	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory")
	cmd.Flags().StringArrayVar(&envKVs, "env", nil, "KEY=VALUE, repeatable")
	cmd.Flags().StringVar(&envFile, "env-file", "", "path to a .env file")
	cmd.Flags().BoolVar(&envInherit, "env-inherit", false, "inherit the daemon's own environment")
	cmd.Flags().StringVar(&mode, "mode", "", "app mode (default: raw-command)")
	cmd.Flags().IntVar(&instances, "instances", 1, "cluster instance count")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag, repeatable")
	cmd.Flags().IntVar(&restartDelayMs, "restart-delay", 0, "restart delay in milliseconds")
	cmd.Flags().IntVar(&maxRestarts, "max-restarts", 0, "max restarts within the crash window (0: unlimited)")
	cmd.Flags().IntVar(&killTimeoutMs, "kill-timeout", 0, "graceful shutdown timeout in milliseconds")
	cmd.Flags().BoolVar(&noAutorestart, "no-autorestart", false, "disable automatic restart on crash")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "list every known app and its run state",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call(&ipc.Request{Type: ipc.ReqStatus})
			if err != nil {
				return err
			}
			printJSON(resp.Apps)
			return nil
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <selector>",
		Short: "show the selected app's spec and run state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call(&ipc.Request{Type: ipc.ReqShow, Selector: args[0]})
			if err != nil {
				return err
			}
			printJSON(resp.App)
			return nil
		},
	}
}

func newDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <selector>",
		Short: "print the selected app's static configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call(&ipc.Request{Type: ipc.ReqDescribe, Selector: args[0]})
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}
}

func newLogsCmd() *cobra.Command {
	var (
		lines  int
		follow bool
		stdout bool
		stderr bool
	)
	cmd := &cobra.Command{
		Use:   "logs <selector>",
		Short: "show or follow an app's logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &ipc.Request{Type: ipc.ReqLogs, Selector: args[0], Lines: lines, Follow: follow, Stdout: stdout, Stderr: stderr}
			if !follow {
				resp, err := call(req)
				if err != nil {
					return err
				}
				for _, l := range resp.Lines {
					fmt.Println(l)
				}
				return nil
			}
			conn, err := dial()
			if err != nil {
				return err
			}
			defer conn.Close()
			return conn.CallStreaming(req, func(resp *ipc.Response) bool {
				if resp.IsError() {
					fmt.Fprintln(os.Stderr, resp.Message)
					return false
				}
				for _, l := range resp.Lines {
					fmt.Println(l)
				}
				if resp.Line != "" {
					fmt.Println(resp.Line)
				}
				return true
			})
		},
	}
	cmd.Flags().IntVar(&lines, "lines", 50, "number of trailing lines")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "stream new log lines as they arrive")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "stdout only")
	cmd.Flags().BoolVar(&stderr, "stderr", false, "stderr only")
	return cmd
}

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "check whether the daemon is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := call(&ipc.Request{Type: ipc.ReqPing})
			if err != nil {
				return err
			}
			fmt.Println("pong")
			return nil
		},
	}
}

func newSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "snapshot every running app to the resurrect file",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call(&ipc.Request{Type: ipc.ReqSave})
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}
}

func newResurrectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resurrect",
		Short: "restart every app saved in the resurrect file",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call(&ipc.Request{Type: ipc.ReqResurrect})
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}
}

func newKillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill",
		Short: "save state and shut down the daemon itself",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call(&ipc.Request{Type: ipc.ReqKill})
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}
}
