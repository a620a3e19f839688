package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gmail-mcp/internal/instrumentation"
	"github.com/teemow/gmail-mcp/internal/server"
	"github.com/teemow/gmail-mcp/internal/tools/gmail_tools"
)

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Print a markdown reference of every tool the server advertises,
built from the registered tool definitions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(outputFile)
		},
	}
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func runGenerateDocs(outputFile string) error {
	tools, err := registeredTools()
	if err != nil {
		return err
	}
	markdown := generateToolsMarkdown(tools)

	if outputFile == "" {
		_, err := fmt.Fprint(os.Stdout, markdown)
		return err
	}
	if err := os.WriteFile(outputFile, []byte(markdown), 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Documentation written to: %s\n", outputFile)
	return nil
}

// registeredTools registers the tool set on a throwaway server without a
// Gmail client and returns what the server would advertise.
func registeredTools() ([]mcp.Tool, error) {
	sc := server.NewServerContext(context.Background())
	defer func() { _ = sc.Shutdown() }()

	mcpSrv := mcpserver.NewMCPServer("gmail-mcp", version, mcpserver.WithToolCapabilities(false))
	if _, err := gmail_tools.RegisterGmailTools(mcpSrv, sc, nil); err != nil {
		return nil, err
	}

	var tools []mcp.Tool
	for _, st := range mcpSrv.ListTools() {
		tools = append(tools, st.Tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools, nil
}

func generateToolsMarkdown(tools []mcp.Tool) string {
	byCategory := map[string][]mcp.Tool{}
	for _, tool := range tools {
		category := getCategoryFromToolName(tool.Name)
		byCategory[category] = append(byCategory[category], tool)
	}
	categories := make([]string, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var b strings.Builder
	b.WriteString("# MCP Tools Reference\n\n")
	b.WriteString("Tools served by gmail-mcp. Generated from the tool definitions by `gmail-mcp generate-docs`.\n\n")

	b.WriteString("## Table of Contents\n\n")
	for _, category := range categories {
		fmt.Fprintf(&b, "- [%s](#%s)\n", category, strings.ToLower(strings.ReplaceAll(category, " ", "-")))
	}
	b.WriteString("\n")

	writeErrorSection(&b)

	for _, category := range categories {
		fmt.Fprintf(&b, "## %s\n\n", category)
		group := byCategory[category]
		sort.Slice(group, func(i, j int) bool { return group[i].Name < group[j].Name })
		for _, tool := range group {
			b.WriteString(generateToolMarkdown(tool))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func writeErrorSection(b *strings.Builder) {
	b.WriteString("## Errors\n\n")
	b.WriteString("A failed call returns an error result whose text is a JSON object:\n\n")
	b.WriteString("```json\n{\"error\": {\"kind\": \"ProviderError.NotFound\", \"message\": \"...\"}}\n```\n\n")

	kinds := make([]string, len(instrumentation.ErrorKinds))
	for i, kind := range instrumentation.ErrorKinds {
		kinds[i] = "`" + kind + "`"
	}
	fmt.Fprintf(b, "`kind` is one of %s.\n\n", strings.Join(kinds, ", "))
}

// getCategoryFromToolName maps the namespace before the first dot to a
// section heading.
func getCategoryFromToolName(name string) string {
	if prefix, _, ok := strings.Cut(name, "."); ok && prefix == "gmail" {
		return "Gmail Tools"
	}
	return "Other"
}

func generateToolMarkdown(tool mcp.Tool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n\n", tool.Name)
	if tool.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", tool.Description)
	}
	if hint := tool.Annotations.ReadOnlyHint; hint != nil && *hint {
		b.WriteString("_Read-only._\n\n")
	}

	props := tool.InputSchema.Properties
	if len(props) == 0 {
		return b.String()
	}

	b.WriteString("**Arguments:**\n")
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		typ, _ := prop["type"].(string)
		if typ == "" {
			typ = "any"
		}
		presence := "optional"
		if slices.Contains(tool.InputSchema.Required, name) {
			presence = "required"
		}
		desc, _ := prop["description"].(string)
		fmt.Fprintf(&b, "- `%s` (%s, %s): %s\n", name, typ, presence, desc)
	}
	b.WriteString("\n")
	return b.String()
}
