// Package all registers every engine backend with the engine factory.
// Blank-import it from mains; library code should import only the backends
// it actually needs.
package all

import (
	_ "aggregator/internal/engine/bigquery"
	_ "aggregator/internal/engine/mssql"
	_ "aggregator/internal/engine/postgres"
	_ "aggregator/internal/engine/sqlite"
)
