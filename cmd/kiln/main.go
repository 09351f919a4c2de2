// cmd/kiln/main.go
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	kerr "kiln/internal/errors"
	"kiln/internal/repo"
	"kiln/internal/workspace"
)

var projectName string

var rootCmd = &cobra.Command{
	Use:   "kiln",
	Short: "Kiln is a version store for binary and creative assets",
	Long: `Kiln snapshots a working directory of binary assets (images, 3D
scenes, audio), recalls any prior snapshot, forks independent projects
from a snapshot and prunes history, deduplicating content so identical
files are stored once.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectName, "project", "p", repo.DefaultProject, "Project to operate on")

	var initCmd = &cobra.Command{
		Use:   "init",
		Short: "Initialize a new Kiln repository",
		Long:  `Creates the repository layout in the current directory and records an initial version of its contents.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}

			r, err := repo.Init(dir, nil)
			if err != nil {
				return err
			}
			defer r.Close()

			fmt.Println("Initialized empty Kiln repository in", dir)
			return nil
		},
	}

	var saveCmd = &cobra.Command{
		Use:   "save [message]",
		Short: "Snapshot the working directory as a new version",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			message := ""
			if len(args) == 1 {
				message = args[0]
			}

			version, err := r.Save(projectName, message)
			if err != nil {
				return err
			}

			fmt.Printf("Saved version %d: %s\n", version.ID, version.Message)
			return nil
		},
	}

	var loadCmd = &cobra.Command{
		Use:   "load [id|label]",
		Short: "Restore the working directory to a version",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			ref := ""
			if len(args) == 1 {
				ref = args[0]
			} else {
				ref, err = selectVersion(r)
				if err != nil {
					return err
				}
			}

			version, err := r.Checkout(projectName, ref)
			if err != nil {
				return err
			}

			fmt.Printf("Restored version %d", version.ID)
			if version.Label != "" {
				fmt.Printf(" (%s)", version.Label)
			}
			fmt.Println()
			return nil
		},
	}

	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "List versions of the current project",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			versions, err := r.List(projectName)
			if err != nil {
				return err
			}
			if len(versions) == 0 {
				fmt.Println("No versions found")
				return nil
			}

			head, err := r.Graph.Head(projectName)
			if err != nil {
				return err
			}

			bold := color.New(color.Bold).SprintFunc()
			for _, v := range versions {
				marker := " "
				if v.ID == head {
					marker = "*"
				}
				line := fmt.Sprintf("%s %4d  %s", marker, v.ID, v.CreatedAt.Format("2006-01-02 15:04"))
				if v.Label != "" {
					line += fmt.Sprintf("  [%s]", v.Label)
				}
				if v.Message != "" {
					line += "  " + v.Message
				}
				if v.ID == head {
					fmt.Println(bold(line))
				} else {
					fmt.Println(line)
				}
			}
			return nil
		},
	}

	var labelCmd = &cobra.Command{
		Use:   "label [id|label] [name]",
		Short: "Assign a label to a version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			version, err := r.Label(projectName, args[0], args[1])
			if err != nil {
				return err
			}

			fmt.Printf("Labeled version %d as %q\n", version.ID, args[1])
			return nil
		},
	}

	var commentCmd = &cobra.Command{
		Use:   "comment [id|label] [message]",
		Short: "Set or replace the comment on a version",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			message := strings.Join(args[1:], " ")
			version, err := r.Comment(projectName, args[0], message)
			if err != nil {
				return err
			}

			fmt.Printf("Updated comment on version %d\n", version.ID)
			return nil
		},
	}

	var deleteYes bool
	var deleteCmd = &cobra.Command{
		Use:   "delete [id|label]",
		Short: "Delete a version and every version built on it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			report, err := r.PreviewDelete(projectName, args[0])
			if err != nil {
				return err
			}

			if !deleteYes {
				red := color.New(color.FgRed).SprintFunc()
				fmt.Printf("This will remove %d version(s):\n", len(report.Versions))
				for _, v := range report.Versions {
					line := fmt.Sprintf("  %d", v.ID)
					if v.Label != "" {
						line += fmt.Sprintf(" [%s]", v.Label)
					}
					if v.Message != "" {
						line += "  " + v.Message
					}
					fmt.Println(red(line))
				}
				if !confirm("Proceed?") {
					fmt.Println("Aborted")
					return nil
				}
			}

			committed, err := r.Delete(projectName, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Deleted %d version(s)\n", len(committed.Versions))
			return nil
		},
	}
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Skip the confirmation prompt")

	var splitCmd = &cobra.Command{
		Use:   "split [id|label] [name]",
		Short: "Fork a new project from a version's snapshot",
		Long: `Creates a new project whose root is the snapshot of the given version.
Ancestor history is not copied and file content is shared, so the new
project costs no additional storage.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			root, err := r.Split(projectName, args[0], args[1])
			if err != nil {
				return err
			}

			fmt.Printf("Split project %q from %s:%s (new version %d)\n",
				args[1], projectName, args[0], root.ID)
			return nil
		},
	}

	var diffCmd = &cobra.Command{
		Use:   "diff [a] [b]",
		Short: "Show changes between two versions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			changes, err := r.Diff(projectName, args[0], args[1])
			if err != nil {
				return err
			}

			printChanges(changes, true)
			return nil
		},
	}

	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show changes between the head version and the working directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			changes, err := r.Status(projectName)
			if err != nil {
				return err
			}

			if len(changes) == 0 {
				fmt.Println("No changes detected (working directory clean)")
				return nil
			}
			printChanges(changes, false)
			return nil
		},
	}

	var exportCmd = &cobra.Command{
		Use:   "export [id|label] [dest]",
		Short: "Write a version's files to a destination directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			version, err := r.Export(projectName, args[0], args[1])
			if err != nil {
				return err
			}

			fmt.Printf("Exported version %d to %s\n", version.ID, args[1])
			return nil
		},
	}

	var undoCmd = &cobra.Command{
		Use:   "undo",
		Short: "Revert the last graph-mutating operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			rec, err := r.UndoLast()
			if err != nil {
				return err
			}

			fmt.Printf("Undid %s on project %s\n", rec.Op, rec.Project)
			return nil
		},
	}

	var verifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Check the integrity of every reachable object",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			checked, err := r.Verify()
			if err != nil {
				return err
			}

			fmt.Printf("Verified %d object(s)\n", checked)
			return nil
		},
	}

	var gcCmd = &cobra.Command{
		Use:   "gc",
		Short: "Remove objects no live version references",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			removed, err := r.GC()
			if err != nil {
				return err
			}

			fmt.Printf("Removed %d unreferenced object(s)\n", removed)
			return nil
		},
	}

	var projectsCmd = &cobra.Command{
		Use:   "projects",
		Short: "List projects in the repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			projects, err := r.Projects()
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				fmt.Println("No projects found")
				return nil
			}

			for _, p := range projects {
				versions, err := r.List(p.Name)
				if err != nil {
					return err
				}
				fmt.Printf("%s  %d version(s)  head %d\n", p.Name, len(versions), p.Head)
			}
			return nil
		},
	}

	var watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Watch the working directory and re-print status on change",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			watcher, err := workspace.NewWatcher(r.Root, r.Config.Ignore, r.Logger)
			if err != nil {
				return err
			}
			defer watcher.Close()

			fmt.Println("Watching for changes (Ctrl-C to stop)")
			for batch := range watcher.Events() {
				fmt.Printf("\n%d path(s) changed\n", len(batch))
				changes, err := r.Status(projectName)
				if err != nil {
					return err
				}
				if len(changes) == 0 {
					fmt.Println("No changes detected (working directory clean)")
					continue
				}
				printChanges(changes, false)
			}
			return nil
		},
	}

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(labelCmd)
	rootCmd.AddCommand(commentCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(watchCmd)
}

func openRepo() (*repo.Repo, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting current directory: %w", err)
	}

	root, err := workspace.FindRoot(cwd)
	if err != nil {
		return nil, err
	}

	// The log level comes from the repository config.
	return repo.Open(root, nil)
}

// selectVersion prints the version list and reads a choice from stdin;
// used when load is invoked without an argument.
func selectVersion(r *repo.Repo) (string, error) {
	versions, err := r.List(projectName)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", fmt.Errorf("no versions to load")
	}

	for _, v := range versions {
		line := fmt.Sprintf("%4d  %s", v.ID, v.CreatedAt.Format("2006-01-02 15:04"))
		if v.Label != "" {
			line += fmt.Sprintf("  [%s]", v.Label)
		}
		if v.Message != "" {
			line += "  " + v.Message
		}
		fmt.Println(line)
	}

	fmt.Print("Version to load: ")
	reader := bufio.NewReader(os.Stdin)
	choice, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading selection: %w", err)
	}
	return strings.TrimSpace(choice), nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if kerr.Fatal(err) {
			fmt.Fprintln(os.Stderr, "the repository may be damaged; inspect it before retrying")
		}
		os.Exit(1)
	}
}
