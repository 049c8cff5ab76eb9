package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dshills/promptwizard/internal/engine"
	"github.com/spf13/cobra"
)

var (
	goal        string
	answersFile string
	templateArg string
	setValues   []string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Print the prompt template for a goal",
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(goal) == "" {
			return fmt.Errorf("--goal is required")
		}
		answers := engine.NewAnswers()
		if answersFile != "" {
			data, err := os.ReadFile(answersFile)
			if err != nil {
				return fmt.Errorf("read answers: %w", err)
			}
			if answers, err = parseAnswers(data); err != nil {
				return err
			}
		}

		tmpl, _ := engine.SafeGenerate(strings.TrimSpace(goal), answers)
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, tmpl)
		if vars := engine.Distinct(engine.ExtractVariables(tmpl)); len(vars) > 0 {
			fmt.Fprintf(out, "\nVariables: %s\n", strings.Join(vars, ", "))
		}
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Substitute variable values into a template file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if templateArg == "" {
			return fmt.Errorf("--template is required")
		}
		data, err := os.ReadFile(templateArg)
		if err != nil {
			return fmt.Errorf("read template: %w", err)
		}
		values, err := parseSet(setValues)
		if err != nil {
			return err
		}

		tmpl := string(data)
		vars := engine.ExtractVariables(tmpl)
		fmt.Fprint(cmd.OutOrStdout(), engine.Resolve(tmpl, vars, values))
		if missing := engine.Unresolved(vars, values); len(missing) > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "unresolved: %s\n", strings.Join(missing, ", "))
		}
		return nil
	},
}

// parseSet splits NAME=value pairs. Values may contain '='.
func parseSet(pairs []string) (map[string]string, error) {
	values := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q: want NAME=value", p)
		}
		values[name] = value
	}
	return values, nil
}

func init() {
	generateCmd.Flags().StringVar(&goal, "goal", "", "what the prompt should accomplish")
	generateCmd.Flags().StringVar(&answersFile, "answers", "", "YAML or JSON file of answers keyed by question id")

	resolveCmd.Flags().StringVar(&templateArg, "template", "", "template file containing [NAME] markers")
	resolveCmd.Flags().StringArrayVar(&setValues, "set", nil, "variable value as NAME=value (repeatable)")

	rootCmd.AddCommand(generateCmd, resolveCmd)
}
