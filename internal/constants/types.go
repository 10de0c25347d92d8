package constants

// database/sql driver names.
const (
	// DriverMattn is github.com/mattn/go-sqlite3 (cgo, backup API, extensions).
	DriverMattn = "sqlite3"
	// DriverModernc is modernc.org/sqlite (pure Go).
	DriverModernc = "sqlite"
)

// Server transports.
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

// Caller-side connection kinds.
const (
	ConnectHTTP    = "http"
	ConnectMCPHTTP = "mcp-http"
	ConnectStdio   = "stdio"
)
