package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"clinicsync/config"
)

func TestDirectoryFromConfigSyncsAndPrints(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	teams, people, aliases := directoryFromConfig(config.DirectoryConfig{
		Teams:   []config.TeamConfig{{ID: 1, Name: " Comercial "}},
		People:  []config.PersonConfig{{UserID: 1, FullName: "Administrador", TeamID: 1}, {UserID: 7, FullName: "Mariana Souza", TeamID: 1}},
		Aliases: []config.AliasConfig{{Name: "Mari", UserID: 7}},
	})
	if teams[0].Name != "Comercial" {
		t.Fatalf("expected trimmed team name, got %q", teams[0].Name)
	}

	counts, err := a.store.ReplaceDirectory(ctx, teams, people, aliases)
	if err != nil {
		t.Fatalf("replace directory: %v", err)
	}
	if counts.Teams != 1 || counts.People != 2 || counts.Aliases != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}

	var out bytes.Buffer
	if err := printDirectory(ctx, &out, a.store); err != nil {
		t.Fatalf("print directory: %v", err)
	}
	text := out.String()
	for _, want := range []string{"Teams (1):", "People (2):", "7 Mariana Souza (team 1)", "Mari -> 7"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, text)
		}
	}
}
