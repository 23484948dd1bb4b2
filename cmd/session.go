package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"clinicsync/crm"
	"clinicsync/importer"
)

// sessionFlags are shared by the columns, validate and import commands.
type sessionFlags struct {
	input string
	kind  string
	sheet string
	maps  []string
}

func openSession(ctx context.Context, service *importer.Service, flags sessionFlags) (*importer.Session, error) {
	kind, err := crm.ParseKind(flags.kind)
	if err != nil {
		return nil, err
	}
	overrides, err := parseMappingFlags(flags.maps)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(flags.input)
	if err != nil {
		return nil, fmt.Errorf("read input %s: %w", flags.input, err)
	}

	session, err := service.Open(ctx, kind, filepath.Base(flags.input), data, strings.TrimSpace(flags.sheet))
	if err != nil {
		return nil, err
	}
	if err := session.ApplyMapping(overrides); err != nil {
		return nil, err
	}
	return session, nil
}

// parseMappingFlags reads field=Header pairs; "field=" unmaps the field.
func parseMappingFlags(values []string) (map[string]string, error) {
	overrides := make(map[string]string, len(values))
	for _, value := range values {
		field, header, ok := strings.Cut(value, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid --map value %q (expected field=Header)", value)
		}
		overrides[field] = strings.TrimSpace(header)
	}
	return overrides, nil
}

func printMapping(session *importer.Session) {
	mapping := session.Mapping()
	fmt.Printf("Sheet: %s (%d rows)\n", session.Sheet.Name, len(session.Sheet.Rows))
	for _, field := range session.Schema.Fields {
		header := mapping.Header(field.Name)
		marker := " "
		if field.Required {
			marker = "*"
		}
		if header == "" {
			header = "-"
		}
		fmt.Printf("  %s %-14s <- %s\n", marker, field.Name, header)
	}
	if missing := mapping.Missing(session.Schema); len(missing) > 0 {
		sort.Strings(missing)
		fmt.Printf("Missing required fields: %s\n", strings.Join(missing, ", "))
	}
}

func printIssues(label string, issues []importer.Issue, total int) {
	if total == 0 {
		return
	}
	fmt.Printf("%s (%d):\n", label, total)
	for _, issue := range issues {
		if issue.Row > 0 {
			fmt.Printf("  row %d [%s] %s\n", issue.Row, issue.Code, issue.Message)
			continue
		}
		fmt.Printf("  [%s] %s\n", issue.Code, issue.Message)
	}
	if hidden := total - len(issues); hidden > 0 {
		fmt.Printf("  ... and %d more\n", hidden)
	}
}
