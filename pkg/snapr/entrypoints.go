package snapr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Freaky/zfsnapr/pkg/safepath"
	"github.com/Freaky/zfsnapr/pkg/snaprun"
	"github.com/function61/gokit/jsonfile"
	"github.com/function61/gokit/logex"
	"github.com/function61/gokit/osutil"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func Entrypoints() []*cobra.Command {
	return []*cobra.Command{
		mountEntrypoint(),
		umountEntrypoint(),
		executeEntrypoint(),
		planEntrypoint(),
	}
}

func mountEntrypoint() *cobra.Command {
	flags := &configFlags{}

	cmd := &cobra.Command{
		Use:   "mount [target]",
		Short: "Mounts a recursive read-only snapshot of the system under the target directory",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func() error {
				session, err := newSessionFromCLI(cmd, flags, args[0])
				if err != nil {
					return err
				}

				return session.Mount(osutil.CancelOnInterruptOrTerminate(logex.StandardLogger()))
			}())
		},
	}

	flags.register(cmd)

	return cmd
}

func umountEntrypoint() *cobra.Command {
	flags := &configFlags{}

	cmd := &cobra.Command{
		Use:   "umount [target]",
		Short: "Unmounts a previously mounted target and destroys its snapshots",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func() error {
				session, err := newSessionFromCLI(cmd, flags, args[0])
				if err != nil {
					return err
				}

				// teardown runs to completion even on SIGINT
				return session.Umount(context.Background())
			}())
		},
	}

	flags.register(cmd)

	return cmd
}

func executeEntrypoint() *cobra.Command {
	flags := &configFlags{}

	cmd := &cobra.Command{
		Use:   "execute [target] [command] [args...]",
		Short: "Mounts, runs a command, unmounts, and exits with the command's status",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			session, err := newSessionFromCLI(cmd, flags, args[0])
			osutil.ExitIfError(err)

			exitCode, err := session.Execute(
				osutil.CancelOnInterruptOrTerminate(logex.StandardLogger()),
				args[1:])
			if err != nil {
				logex.StandardLogger().Printf("execute: %v", err)
			}

			os.Exit(exitCode)
		},
	}

	flags.register(cmd)

	return cmd
}

func planEntrypoint() *cobra.Command {
	flags := &configFlags{}

	cmd := &cobra.Command{
		Use:   "plan [target]",
		Short: "Shows which datasets would be mounted where, without mounting anything",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func() error {
				session, err := newSessionFromCLI(cmd, flags, args[0])
				if err != nil {
					return err
				}

				plan, err := session.Plan(osutil.CancelOnInterruptOrTerminate(logex.StandardLogger()))
				if err != nil {
					return err
				}

				return printPlan(plan)
			}())
		},
	}

	flags.register(cmd)

	return cmd
}

func printPlan(plan []MountEntry) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		// tab-separated for scripting
		for _, entry := range plan {
			fmt.Printf("%s\t%s\t%s\n", entry.Dataset.Name, entry.Dataset.Mountpoint, entry.Target)
		}

		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetHeader([]string{"Dataset", "Mountpoint", "Target"})

	for _, entry := range plan {
		table.Append([]string{entry.Dataset.Name, entry.Dataset.Mountpoint.String(), entry.Target.String()})
	}

	table.Render()

	return nil
}

type configFlags struct {
	cfg        Config
	configFile string
}

func (f *configFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.cfg.Root, "root", "r", "", "Only include datasets mounted at or under this path")
	cmd.Flags().StringArrayVarP(&f.cfg.Excludes, "exclude", "e", nil, "Exclude datasets mounted at or under this path (repeatable)")
	cmd.Flags().StringArrayVarP(&f.cfg.Pools, "pool", "p", nil, "Only snapshot these pools (repeatable; default all)")
	cmd.Flags().BoolVar(&f.cfg.Exec, "exec", false, "Allow executing binaries from the mounts")
	cmd.Flags().BoolVar(&f.cfg.Suid, "suid", false, "Allow setuid semantics on the mounts")
	cmd.Flags().BoolVar(&f.cfg.Devfs, "devfs", false, "Mount a device filesystem at <target>/dev")
	cmd.Flags().StringArrayVar(&f.cfg.Tmpfs, "tmpfs", nil, "Mount an empty tmpfs at this target-relative path (repeatable)")
	cmd.Flags().StringArrayVar(&f.cfg.Passthrough, "passthrough", nil, "Bind-mount this host path read-write into the target (repeatable)")
	cmd.Flags().StringVar(&f.configFile, "config", "", "JSON file supplying configuration defaults")
}

// resolve merges the optional JSON defaults file under the flags: scalar
// flags win when explicitly set, list flags accumulate on top of the file's.
func (f *configFlags) resolve(cmd *cobra.Command) (Config, error) {
	cfg := f.cfg

	if f.configFile != "" {
		fileCfg := Config{}
		if err := jsonfile.Read(f.configFile, &fileCfg, true); err != nil {
			return Config{}, err
		}

		flags := cmd.Flags()
		if !flags.Changed("root") {
			cfg.Root = fileCfg.Root
		}
		if !flags.Changed("exec") {
			cfg.Exec = fileCfg.Exec
		}
		if !flags.Changed("suid") {
			cfg.Suid = fileCfg.Suid
		}
		if !flags.Changed("devfs") {
			cfg.Devfs = fileCfg.Devfs
		}
		cfg.Excludes = append(fileCfg.Excludes, cfg.Excludes...)
		cfg.Pools = append(fileCfg.Pools, cfg.Pools...)
		cfg.Tmpfs = append(fileCfg.Tmpfs, cfg.Tmpfs...)
		cfg.Passthrough = append(fileCfg.Passthrough, cfg.Passthrough...)
	}

	return cfg, cfg.validate()
}

func newSessionFromCLI(cmd *cobra.Command, flags *configFlags, rawTarget string) (*Session, error) {
	cfg, err := flags.resolve(cmd)
	if err != nil {
		return nil, err
	}

	target, err := canonicalTarget(rawTarget)
	if err != nil {
		return nil, err
	}

	rootLogger := logex.StandardLogger()

	return NewSession(target, cfg, snaprun.NewSystemRunner(logex.Prefix("run", rootLogger)), rootLogger), nil
}

// Target resolution happens once, here at the boundary; the core only ever
// sees the canonical path (which the fingerprint is also computed from).
func canonicalTarget(raw string) (safepath.Path, error) {
	abs, err := filepath.Abs(raw)
	if err != nil {
		return safepath.Path{}, err
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return safepath.Path{}, fmt.Errorf("target: %w", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return safepath.Path{}, err
	}
	if !info.IsDir() {
		return safepath.Path{}, fmt.Errorf("target is not a directory: %s", resolved)
	}

	return safepath.Parse(resolved)
}
