// Package main implements the genconfig tool that writes podmpd.default.toml
// from config.ExampleConfig().
//
// It is invoked by go generate via the directive in internal/config/config.go.
package main

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/podmpd/internal/config"
)

func main() {
	result, err := render(config.ExampleConfig(), config.ConfigDocs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "render: %v\n", err)
		os.Exit(1)
	}

	// go generate runs from the package directory (internal/config/).
	// With go.mod at root, ../../ reaches the repo root where configdata.go
	// embeds podmpd.default.toml.
	outPath := "../../podmpd.default.toml"
	if err := os.WriteFile(outPath, []byte(result), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Printf("wrote podmpd.default.toml\n")
}

// sectionTitles lists the config's tables in file order with the banner
// title printed above each. podmpd.toml has no nested tables.
var sectionTitles = map[string]string{
	"daemon":  "Daemon",
	"log":     "Log",
	"library": "Library",
	"streams": "Streams",
}

// render encodes cfg as TOML and annotates every key with its entry in docs.
// It fails when a key has no docs entry, when a docs entry names no key, or
// when the encoder emits a table without a banner title, so the generated file
// cannot drift from the Config struct.
func render(cfg *config.Config, docs map[string]config.FieldDoc) (string, error) {
	var raw bytes.Buffer
	if err := toml.NewEncoder(&raw).Encode(cfg); err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	out := []string{
		"# ///////////////////////////////////////////////",
		"# podmpd Configuration",
		"# ///////////////////////////////////////////////",
		"",
	}

	var section string
	seen := map[string]bool{}

	for _, line := range strings.Split(raw.String(), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "[") {
			section = strings.Trim(trimmed, "[] ")
			title, ok := sectionTitles[section]
			if !ok {
				return "", fmt.Errorf("table [%s] has no banner title", section)
			}
			out = append(out, "", "# ///// "+title+" /////", "")
			if doc := docs[section]; doc.Comment != "" {
				out = appendComment(out, doc.Comment)
			}
			out = append(out, trimmed)
			continue
		}

		key, _, ok := strings.Cut(trimmed, "=")
		if !ok {
			out = append(out, trimmed)
			continue
		}
		path := strings.TrimSpace(key)
		if section != "" {
			path = section + "." + path
		}
		doc, ok := docs[path]
		if !ok {
			return "", fmt.Errorf("key %s is not documented in config.ConfigDocs", path)
		}
		seen[path] = true

		if doc.Comment != "" {
			out = appendComment(out, doc.Comment)
		}
		out = append(out, trimmed)
		for _, alt := range doc.Alternatives {
			out = append(out, "# "+alt)
		}
	}

	if stale := staleDocs(docs, seen); len(stale) > 0 {
		return "", fmt.Errorf("documented keys missing from config: %s", strings.Join(stale, ", "))
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n") + "\n", nil
}

func appendComment(out []string, comment string) []string {
	for _, cl := range strings.Split(comment, "\n") {
		out = append(out, "# "+cl)
	}
	return out
}

// staleDocs returns the sorted docs keys that are neither an emitted key nor
// a table with a banner.
func staleDocs(docs map[string]config.FieldDoc, seen map[string]bool) []string {
	var stale []string
	for path := range docs {
		if seen[path] {
			continue
		}
		if _, table := sectionTitles[path]; table {
			continue
		}
		stale = append(stale, path)
	}
	sort.Strings(stale)
	return stale
}
