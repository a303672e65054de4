package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"ratupdater/internal/app"
	"ratupdater/internal/failure"
	"ratupdater/internal/updater"
)

type ExitCoder interface {
	ExitCode() int
}

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }

const exitRollbackFailed = 3

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ex ExitCoder
		if errors.As(err, &ex) {
			os.Exit(ex.ExitCode())
		}
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath   string
	rootPath     string
	jsonOutput   bool
	update       bool
	start        bool
	recover      bool
	pauseOnError bool
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}

	newSvc := func(cmd *cobra.Command) (*app.Service, error) {
		out := cmd.OutOrStdout()
		if f.jsonOutput {
			out = cmd.ErrOrStderr()
		}
		return app.New(app.Options{ConfigPath: f.configPath, RootPath: f.rootPath, Out: out})
	}

	cmd := &cobra.Command{
		Use:           "ratupdater",
		Short:         "Install, update and launch RatScanner",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !f.update && !f.start && !f.recover {
				return cmd.Help()
			}
			err := runActions(cmd, f, newSvc)
			if err != nil && f.pauseOnError {
				waitForEnter(cmd.InOrStdin(), cmd.ErrOrStderr(), err)
			}
			return err
		},
	}
	cmd.PersistentFlags().StringVar(&f.configPath, "config", "", "path to config file")
	cmd.PersistentFlags().StringVar(&f.rootPath, "root-path", "", "install directory (default: directory of this executable)")
	cmd.PersistentFlags().BoolVar(&f.jsonOutput, "json", false, "output JSON")
	cmd.Flags().BoolVar(&f.update, "update", false, "download and install the latest RatScanner")
	cmd.Flags().BoolVar(&f.start, "start", false, "launch RatScanner")
	cmd.Flags().BoolVar(&f.recover, "recover", false, "restore the previous installation from the backup directory")
	cmd.Flags().BoolVar(&f.pauseOnError, "pause-on-error", false, "wait for Enter before exiting after an error")

	cmd.AddCommand(newDoctorCmd(newSvc, &f.jsonOutput))
	cmd.AddCommand(newKeepCmd(newSvc, &f.jsonOutput))
	cmd.AddCommand(newVersionCmd(&f.jsonOutput))
	return cmd
}

// runActions performs the requested actions in the order recover, update,
// start and stops at the first failure.
func runActions(cmd *cobra.Command, f *rootFlags, newSvc func(*cobra.Command) (*app.Service, error)) error {
	svc, err := newSvc(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	payload := map[string]any{"root": svc.Root}
	if f.recover {
		restored, err := svc.Recover()
		if err != nil {
			return err
		}
		payload["restored"] = restored
		if !f.jsonOutput {
			fmt.Printf("restored %d entries into %s\n", len(restored), svc.Root)
		}
	}
	if f.update {
		res, err := svc.Update(ctx)
		payload["update"] = res
		if err != nil {
			return describeUpdateFailure(cmd.ErrOrStderr(), res, err)
		}
		if !f.jsonOutput {
			fmt.Println(updater.Describe(res))
		}
	}
	if f.start {
		if err := svc.Start(); err != nil {
			return err
		}
		payload["started"] = svc.Config.Layout.Executable
	}
	if f.jsonOutput {
		return print(true, payload, "")
	}
	return nil
}

func describeUpdateFailure(stderr io.Writer, res updater.Result, err error) error {
	switch res.State {
	case updater.StateRecovered:
		fmt.Fprintf(stderr, "update failed; previous installation restored (%d entries)\n", len(res.Restored))
	case updater.StateRecoveryFailed:
		fmt.Fprintln(stderr, "update failed and the previous installation could not be restored; run with --recover once the cause is fixed")
		return &exitError{code: exitRollbackFailed, err: err}
	}
	var rb *failure.RollbackError
	if errors.As(err, &rb) {
		return &exitError{code: exitRollbackFailed, err: err}
	}
	return err
}

func waitForEnter(in io.Reader, out io.Writer, err error) {
	fmt.Fprintf(out, "error: %v\npress Enter to exit\n", err)
	_, _ = bufio.NewReader(in).ReadString('\n')
}

func newDoctorCmd(newSvc func(*cobra.Command) (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "doctor",
		Aliases: []string{"diag", "checkup"},
		Short:   "Inspect the install directory",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()
			report := svc.DoctorRun()
			if *jsonOutput {
				if err := print(true, report, ""); err != nil {
					return err
				}
			} else {
				if report.Healthy {
					fmt.Printf("healthy: %s\n", report.Root)
				} else {
					fmt.Printf("unhealthy: %s\n", report.Root)
				}
				for _, f := range report.Findings {
					fmt.Printf("- [%s] %s: %s\n", f.Level, f.Code, f.Message)
				}
			}
			if !report.Healthy {
				return &exitError{code: 2, err: errors.New("DOC_UNHEALTHY: install directory has errors")}
			}
			return nil
		},
	}
}

func newKeepCmd(newSvc func(*cobra.Command) (*app.Service, error), jsonOutput *bool) *cobra.Command {
	keepCmd := &cobra.Command{Use: "keep", Short: "Manage paths that updates never move"}

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List kept paths",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()
			keep := svc.KeepList()
			if *jsonOutput {
				return print(true, keep, "")
			}
			if len(keep) == 0 {
				fmt.Println("no kept paths")
				return nil
			}
			for _, k := range keep {
				fmt.Printf("- %s\n", k)
			}
			return nil
		},
	}

	addCmd := &cobra.Command{
		Use:   "add <path>...",
		Short: "Keep paths",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()
			for _, p := range args {
				if err := svc.KeepAdd(p); err != nil {
					return err
				}
			}
			return print(*jsonOutput, map[string][]string{"keep": svc.KeepList()}, "keeping "+strings.Join(args, ", "))
		},
	}

	removeCmd := &cobra.Command{
		Use:     "remove <path>...",
		Aliases: []string{"rm"},
		Short:   "Stop keeping paths",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()
			for _, p := range args {
				if err := svc.KeepRemove(p); err != nil {
					return err
				}
			}
			return print(*jsonOutput, map[string][]string{"keep": svc.KeepList()}, "no longer keeping "+strings.Join(args, ", "))
		},
	}

	keepCmd.AddCommand(listCmd, addCmd, removeCmd)
	return keepCmd
}

func print(jsonOutput bool, payload any, message string) error {
	if jsonOutput {
		blob, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(blob))
		return nil
	}
	if message != "" {
		fmt.Println(message)
	}
	return nil
}
