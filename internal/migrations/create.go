package migrations

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"
)

var migrationTmpl = template.Must(template.New("migration").Parse(`-- {{.Name}}, created {{.Created}}

-- +goose Up
-- +goose StatementBegin
SELECT 1;
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
SELECT 1;
-- +goose StatementEnd
`))

var unsafeName = regexp.MustCompile(`[^a-z0-9]+`)

// Create writes an empty migration named <timestamp>_<name>.sql in dir and
// returns its path. Existing files are never overwritten.
func Create(dir, name string, now time.Time) (string, error) {
	slug := strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	dst := filepath.Join(dir, now.UTC().Format("20060102150405")+"_"+slug+".sql")
	if _, err := os.Stat(dst); err == nil {
		return "", fmt.Errorf("file exists: %s", dst)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	data := map[string]string{"Name": slug, "Created": now.UTC().Format(time.RFC3339)}
	if err := migrationTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return dst, os.WriteFile(dst, buf.Bytes(), 0o644)
}
