package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sjmog/vibesuite/internal/actionlog"
	"github.com/sjmog/vibesuite/internal/config"
	"github.com/sjmog/vibesuite/internal/db"
	"github.com/sjmog/vibesuite/internal/domain"
	"github.com/sjmog/vibesuite/internal/ledger"
	"github.com/sjmog/vibesuite/internal/migrate"
	"github.com/sjmog/vibesuite/internal/repo"
	"github.com/sjmog/vibesuite/internal/server"
	"github.com/sjmog/vibesuite/internal/status"
)

var rootCmd = &cobra.Command{
	Use:   "vibesuite",
	Short: "VibeSuite CLI",
	Long: `VibeSuite keeps a reputation ledger for autonomous persona agents.
- Personas: agents instantiated from templates (Developer, QA Engineer, ...), one per template per project.
- Activities: the append-only ledger; each entry carries scoring deltas resolved from vibesuite.yml.
- Scores: professionalism and quality, always equal to the sum of a persona's activity deltas.
- Quotas: kudos/wtf allowances that reset on a rolling 24h window.
- Actions: fine-grained telemetry (tool calls, file edits) with artifacts as evidence; never scored.
- Task status: derived from attempt and process history on every read, never stored.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("VIBESUITE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(personaCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(actionCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectID(cfg *config.Config) string {
	if p := viper.GetString("project"); p != "" {
		return p
	}
	return cfg.Project.ID
}

// --- templates ---

func templateCmd() *cobra.Command {
	tpl := &cobra.Command{Use: "template", Short: "Manage persona templates"}
	tpl.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				items, err := l.Repo.ListTemplates(ctx, false)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Kudos/day", "System"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Name, t.RoleType, t.KudosQuotaDaily, t.IsSystem})
				}
				tw.Render()
				return nil
			})
		},
	})
	tpl.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Sync configured templates into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				items, err := l.SyncTemplates(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	return tpl
}

// --- personas ---

func personaCmd() *cobra.Command {
	p := &cobra.Command{Use: "persona", Short: "Manage personas"}
	p.AddCommand(personaListCmd())
	p.AddCommand(personaCreateCmd())
	p.AddCommand(personaImportCmd())
	p.AddCommand(personaShowCmd())
	p.AddCommand(personaUpdateCmd())
	p.AddCommand(personaDeleteCmd())
	return p
}

func personaListCmd() *cobra.Command {
	var includeInactive bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List personas with scores",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				items, err := l.Repo.ListPersonas(ctx, projectID(l.Config), includeInactive)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Template", "Name", "Prof", "Quality", "Kudos used", "WTF used", "Active"})
				for _, p := range items {
					name := ""
					if p.CustomName != nil {
						name = *p.CustomName
					}
					tw.AppendRow(table.Row{p.ID, p.TemplateID, name,
						fmt.Sprintf("%.1f", p.ProfessionalismScore), fmt.Sprintf("%.1f", p.QualityScore),
						p.KudosQuotaUsed, p.WtfQuotaUsed, p.IsActive})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&includeInactive, "all", false, "include inactive personas")
	return cmd
}

func personaCreateCmd() *cobra.Command {
	var templateName, customName, instructions string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a persona from a template",
		RunE: func(cmd *cobra.Command, args []string) error {
			if templateName == "" {
				return fmt.Errorf("--template required")
			}
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				tpl, err := l.Repo.GetTemplateByName(ctx, templateName)
				if err != nil {
					return fmt.Errorf("template %q: %w (run 'vibesuite template sync' first)", templateName, err)
				}
				p, err := l.CreatePersona(ctx, ledger.CreatePersonaOptions{
					ProjectID:          projectID(l.Config),
					TemplateID:         tpl.ID,
					CustomName:         optionalString(customName),
					CustomInstructions: optionalString(instructions),
					ActorID:            viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&templateName, "template", "", "template name")
	cmd.Flags().StringVar(&customName, "name", "", "custom persona name")
	cmd.Flags().StringVar(&instructions, "instructions", "", "custom instructions")
	return cmd
}

func personaImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Create personas for every configured template",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				created, err := l.ImportDefaultPersonas(ctx, projectID(l.Config), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				fmt.Printf("imported %d persona(s)\n", len(created))
				if viper.GetBool("json") {
					return printJSON(created)
				}
				return nil
			})
		},
	}
}

func personaShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <persona-id>",
		Short: "Show a persona",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				p, err := l.Repo.GetPersona(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func personaUpdateCmd() *cobra.Command {
	var name, instructions string
	var activate, deactivate bool
	cmd := &cobra.Command{
		Use:   "update <persona-id>",
		Short: "Update a persona",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if activate && deactivate {
				return fmt.Errorf("--activate and --deactivate are mutually exclusive")
			}
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				u := repo.PersonaUpdate{
					CustomName:         optionalString(name),
					CustomInstructions: optionalString(instructions),
				}
				if activate {
					v := true
					u.IsActive = &v
				}
				if deactivate {
					v := false
					u.IsActive = &v
				}
				p, err := l.UpdatePersona(ctx, args[0], u, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "custom persona name")
	cmd.Flags().StringVar(&instructions, "instructions", "", "custom instructions")
	cmd.Flags().BoolVar(&activate, "activate", false, "mark active")
	cmd.Flags().BoolVar(&deactivate, "deactivate", false, "mark inactive")
	return cmd
}

func personaDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <persona-id>",
		Short: "Delete a persona (activities are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				if err := l.DeletePersona(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

// --- activities ---

func activityCmd() *cobra.Command {
	a := &cobra.Command{Use: "activity", Short: "Record and inspect the reputation ledger"}
	a.AddCommand(activityRecordCmd())
	a.AddCommand(activityListCmd())
	a.AddCommand(activityAdjustCmd())
	return a
}

func activityRecordCmd() *cobra.Command {
	var kind, taskID, taskSize, description string
	cmd := &cobra.Command{
		Use:   "record <persona-id>",
		Short: "Append a scored activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind == "" {
				return fmt.Errorf("--kind required")
			}
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				act, err := l.RecordActivity(ctx, ledger.RecordActivityOptions{
					PersonaID:   args[0],
					Kind:        domain.ActivityKind(kind),
					TaskID:      optionalString(taskID),
					TaskSize:    domain.TaskSize(taskSize),
					Description: description,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(act)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "activity kind (task_completed, kudos_received, ...)")
	cmd.Flags().StringVar(&taskID, "task", "", "related task id")
	cmd.Flags().StringVar(&taskSize, "size", "standard", "task size (small|standard)")
	cmd.Flags().StringVar(&description, "description", "", "what happened")
	return cmd
}

func activityListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list <persona-id>",
		Short: "List activities, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				items, err := l.Repo.ListActivities(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "Kind", "Prof Δ", "Quality Δ", "Description"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.CreatedAt, a.Kind,
						fmt.Sprintf("%+.1f", a.ProfessionalismDelta), fmt.Sprintf("%+.1f", a.QualityDelta),
						a.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries")
	return cmd
}

func activityAdjustCmd() *cobra.Command {
	var prof, quality float64
	var reason string
	cmd := &cobra.Command{
		Use:   "adjust <persona-id>",
		Short: "Record a manual score adjustment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reason == "" {
				return fmt.Errorf("--reason required")
			}
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				act, err := l.AdjustScore(ctx, args[0], prof, quality, reason, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(act)
			})
		},
	}
	cmd.Flags().Float64Var(&prof, "professionalism", 0, "professionalism delta")
	cmd.Flags().Float64Var(&quality, "quality", 0, "quality delta")
	cmd.Flags().StringVar(&reason, "reason", "", "why the correction is needed")
	return cmd
}

// --- actions ---

func actionCmd() *cobra.Command {
	a := &cobra.Command{Use: "action", Short: "Record and inspect persona actions"}
	a.AddCommand(actionRecordCmd())
	a.AddCommand(actionCompleteCmd())
	a.AddCommand(actionListCmd())
	return a
}

func actionRecordCmd() *cobra.Command {
	var kind, category, tool, taskID, description string
	cmd := &cobra.Command{
		Use:   "record <persona-id>",
		Short: "Log an action (provisionally successful)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind == "" || category == "" {
				return fmt.Errorf("--kind and --category required")
			}
			return withActionLog(cmd.Context(), func(ctx context.Context, al actionlog.Log) error {
				act, err := al.RecordAction(ctx, actionlog.RecordActionOptions{
					PersonaID:   args[0],
					Kind:        domain.ActionKind(kind),
					Category:    domain.ActionCategory(category),
					ToolName:    optionalString(tool),
					TaskID:      optionalString(taskID),
					Description: description,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(act)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "action kind (bash_command, file_edit, ...)")
	cmd.Flags().StringVar(&category, "category", "", "action category (tool_usage, file_operation, ...)")
	cmd.Flags().StringVar(&tool, "tool", "", "tool name")
	cmd.Flags().StringVar(&taskID, "task", "", "related task id")
	cmd.Flags().StringVar(&description, "description", "", "what the action did")
	return cmd
}

func actionCompleteCmd() *cobra.Command {
	var result string
	var durationMs int64
	cmd := &cobra.Command{
		Use:   "complete <action-id>",
		Short: "Record an action's final outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActionLog(cmd.Context(), func(ctx context.Context, al actionlog.Log) error {
				var ms *int64
				if durationMs > 0 {
					ms = &durationMs
				}
				act, err := al.CompleteAction(ctx, args[0], domain.ResultStatus(result), ms)
				if err != nil {
					return err
				}
				return printJSONOrTable(act)
			})
		},
	}
	cmd.Flags().StringVar(&result, "result", "success", "result status (success|failure|partial|cancelled)")
	cmd.Flags().Int64Var(&durationMs, "duration-ms", 0, "execution time in ms")
	return cmd
}

func actionListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list <persona-id>",
		Short: "List actions with artifacts, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActionLog(cmd.Context(), func(ctx context.Context, al actionlog.Log) error {
				items, err := al.ListActions(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "Kind", "Category", "Result", "Artifacts", "Description"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.CreatedAt, a.Kind, a.Category, a.ResultStatus, len(a.Artifacts), a.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "max entries")
	return cmd
}

// --- tasks ---

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Inspect tasks and derived status"}
	t.AddCommand(taskListCmd())
	t.AddCommand(taskCreateCmd())
	t.AddCommand(taskStatusCmd())
	return t
}

func taskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks with derived status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				res := status.Resolver{Repo: l.Repo}
				items, err := res.ListTasks(ctx, projectID(l.Config))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "In progress", "Merged", "Last failed", "Executor"})
				for _, t := range items {
					executor := ""
					if t.LatestAttemptExecutor != nil {
						executor = *t.LatestAttemptExecutor
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.InProgress, t.Merged, t.LastAttemptFailed, executor})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func taskCreateCmd() *cobra.Command {
	var title, description, assignee string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title required")
			}
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				ts := time.Now().UTC().Format(time.RFC3339)
				t := domain.Task{
					ID:                uuid.NewString(),
					ProjectID:         projectID(l.Config),
					Title:             title,
					Description:       description,
					Status:            "todo",
					AssignedPersonaID: optionalString(assignee),
					CreatedAt:         ts,
					UpdatedAt:         ts,
				}
				if err := l.CreateTask(ctx, t); err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().StringVar(&assignee, "assign", "", "assigned persona id")
	return cmd
}

func taskStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Resolve a task's derived status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				res := status.Resolver{Repo: l.Repo}
				t, err := res.ResolveTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

// --- config ---

func configCmd() *cobra.Command {
	c := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	c.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig()
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default vibesuite.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			project := viper.GetString("project")
			if project == "" {
				project = "default"
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(project)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Validate and install a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			if file == "" {
				return fmt.Errorf("--file required")
			}
			cfg, err := config.FromFile(file)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			path := config.Path(viper.GetString("workspace"))
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return err
			}
			fmt.Printf("installed config for project %s at %s\n", cfg.Project.ID, path)
			return nil
		},
	}
	importCmd.Flags().String("file", "", "config file to import")
	c.AddCommand(importCmd)
	return c
}

// --- events ---

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Inspect the audit event stream"}
	var after int64
	var limit int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show events after a cursor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.ListEvents(ctx, after, limit)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	tail.Flags().Int64Var(&after, "after", 0, "event id cursor")
	tail.Flags().IntVar(&limit, "n", 20, "number of events")
	l.AddCommand(tail)
	return l
}

// --- api keys ---

func apikeyCmd() *cobra.Command {
	a := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var actorID, name, key string
	create := &cobra.Command{
		Use:   "create",
		Short: "Store a hashed API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorID == "" || key == "" {
				return fmt.Errorf("--actor and --key required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				k := domain.APIKey{
					ID:      uuid.NewString(),
					ActorID: actorID,
					Name:    name,
					KeyHash: repo.HashAPIKey(key),
				}
				if err := r.InsertAPIKey(ctx, k); err != nil {
					return err
				}
				return printJSONOrTable(k)
			})
		},
	}
	create.Flags().StringVar(&actorID, "actor", "", "actor the key authenticates")
	create.Flags().StringVar(&name, "name", "", "key label")
	create.Flags().StringVar(&key, "key", "", "plaintext key to hash")
	a.AddCommand(create)

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	a.AddCommand(list)

	a.AddCommand(&cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	})
	return a
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacyActor bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := resolveConfig()
			if err != nil {
				return err
			}
			led := ledger.New(conn, cfg)
			if _, err := led.SyncTemplates(cmd.Context()); err != nil {
				return err
			}
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("VIBESUITE_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacyActor,
			}
			if authCfg.JWTSecret == "" && !allowLegacyActor {
				return fmt.Errorf("VIBESUITE_JWT_SECRET is required for bearer auth (or pass --allow-legacy-actor)")
			}
			handler, err := server.New(server.Config{
				Ledger:   led,
				Actions:  actionlog.New(conn),
				Status:   status.New(conn),
				BasePath: basePath,
				Auth:     authCfg,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving VibeSuite API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacyActor, "allow-legacy-actor", false, "accept X-Actor-Id without auth")
	return cmd
}

// --- helpers ---

func resolveConfig() (*config.Config, error) {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		project := viper.GetString("project")
		if project == "" {
			project = "default"
		}
		cfg = config.Default(project)
	}
	return cfg, nil
}

func withLedger(ctx context.Context, fn func(context.Context, ledger.Ledger) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	return fn(ctx, ledger.New(conn, cfg))
}

func withActionLog(ctx context.Context, fn func(context.Context, actionlog.Log) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, actionlog.New(conn))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
