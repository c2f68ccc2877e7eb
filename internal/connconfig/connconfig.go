// Package connconfig renders and writes the web.ConnectionStrings.config file
// that points a Rock instance at its database on the shared LocalDB engine.
package connconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// FileName is the config file name inside an instance web root.
const FileName = "web.ConnectionStrings.config"

const template = `<?xml version="1.0"?>
<connectionStrings>
    <add name="RockContext" connectionString="Data Source=(LocalDB)\%s;AttachDbFileName=|DataDirectory|\Database.mdf; Initial Catalog=%s; Integrated Security=true; MultipleActiveResultSets=true" providerName="System.Data.SqlClient"/>
</connectionStrings>
`

// Render returns the config file contents for the given engine and database.
func Render(engineName, databaseName string) string {
	return fmt.Sprintf(template, engineName, databaseName)
}

// Path returns the config file path for a web root.
func Path(webRoot string) string {
	return filepath.Join(webRoot, FileName)
}

// Write removes any existing file at path and writes text in its place.
func Write(fs afero.Fs, path, text string) error {
	if err := fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old connection config: %w", err)
	}

	if err := afero.WriteFile(fs, path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write connection config: %w", err)
	}

	return nil
}
