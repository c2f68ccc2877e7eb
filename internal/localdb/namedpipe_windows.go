//go:build windows

package localdb

// LocalDB only listens on a named pipe.
import _ "github.com/microsoft/go-mssqldb/namedpipe"
